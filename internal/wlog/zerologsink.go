package wlog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// logrSink adapts a go-logr/logr.Logger to this package's narrower Sink
// interface.
type logrSink struct {
	l logr.Logger
}

func (s logrSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.l.V(level).Info(msg, keysAndValues...)
}

func (s logrSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.l.Error(err, msg, keysAndValues...)
}

// NewZerologSink builds a Sink backed by rs/zerolog via go-logr/zerologr,
// mirroring the reference driver's examples/_logger/zerolog wiring
// (zerologr.New(&zl) handed to a go-logr/logr.Logger).
func NewZerologSink(zl zerolog.Logger) Sink {
	zerologr.SetMaxV(int(LevelDebug))
	return logrSink{l: zerologr.New(&zl)}
}
