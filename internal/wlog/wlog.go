// Package wlog is the write-command core's logging shim. It mirrors the
// driver's internal/logger package: a LogSink interface shaped like
// go-logr/logr's, a small set of components, and level filtering driven by
// environment variables so the core can be embedded without forcing a
// logging dependency on callers who don't want one.
package wlog

import (
	"fmt"
	"os"
	"strconv"
)

// Component identifies which part of the write-command core emitted a
// message, mirroring the driver's per-component log levels.
type Component int

const (
	ComponentDispatch Component = iota
	ComponentCommandExec
	ComponentLegacyExec
)

func (c Component) String() string {
	switch c {
	case ComponentDispatch:
		return "dispatch"
	case ComponentCommandExec:
		return "cmdexec"
	case ComponentLegacyExec:
		return "legacyexec"
	default:
		return "unknown"
	}
}

// Level is a verbosity level, lower is more severe; mirrors logr's
// integer verbosity convention (0 = always logged, higher = more verbose).
type Level int

const (
	LevelOff Level = iota - 1
	LevelInfo
	LevelDebug
)

const envLevelPrefix = "MWRITE_LOG_LEVEL_"

// Sink is the subset of go-logr/logr.LogSink this package relies on, kept
// narrow so any logr-compatible sink (zerologr, zapr, ...) can be plugged
// in directly.
type Sink interface {
	Info(level int, msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
}

// Logger dispatches component-scoped messages to a Sink, applying
// per-component level filtering. A nil Logger (or nil Sink) is a silent
// no-op, so the write-command core can be used without any logging
// configured at all.
type Logger struct {
	Sink            Sink
	ComponentLevels map[Component]Level
}

// New constructs a Logger. componentLevels overrides take precedence over
// environment variables of the form MWRITE_LOG_LEVEL_<COMPONENT>=<int>.
func New(sink Sink, componentLevels map[Component]Level) *Logger {
	levels := map[Component]Level{}
	for c, l := range componentLevels {
		levels[c] = l
	}
	for _, c := range []Component{ComponentDispatch, ComponentCommandExec, ComponentLegacyExec} {
		if _, ok := levels[c]; ok {
			continue
		}
		if raw, ok := os.LookupEnv(envLevelPrefix + fmt.Sprint(c)); ok {
			if n, err := strconv.Atoi(raw); err == nil {
				levels[c] = Level(n)
			}
		}
	}
	return &Logger{Sink: sink, ComponentLevels: levels}
}

func (l *Logger) level(c Component) Level {
	if l == nil {
		return LevelOff
	}
	if lv, ok := l.ComponentLevels[c]; ok {
		return lv
	}
	return LevelOff
}

// Info logs an informational message for a component if its level permits.
func (l *Logger) Info(c Component, msg string, keysAndValues ...interface{}) {
	if l == nil || l.Sink == nil || l.level(c) < LevelInfo {
		return
	}
	l.Sink.Info(int(LevelInfo), msg, append([]interface{}{"component", c.String()}, keysAndValues...)...)
}

// Debug logs a verbose message for a component if its level permits.
func (l *Logger) Debug(c Component, msg string, keysAndValues ...interface{}) {
	if l == nil || l.Sink == nil || l.level(c) < LevelDebug {
		return
	}
	l.Sink.Info(int(LevelDebug), msg, append([]interface{}{"component", c.String()}, keysAndValues...)...)
}

// Error logs an error for a component unconditionally (errors are always
// surfaced regardless of configured level, matching the driver's logger).
func (l *Logger) Error(c Component, err error, msg string, keysAndValues ...interface{}) {
	if l == nil || l.Sink == nil {
		return
	}
	l.Sink.Error(err, msg, append([]interface{}{"component", c.String()}, keysAndValues...)...)
}
