// Package writeconcern models the durability/acknowledgement policy object
// the write-command core treats as an external collaborator. Shape and the
// AckWrite/Acknowledged helpers mirror how the reference
// driver's writeconcern package is consulted from core/command/insert.go
// and core/dispatch/{insert,update}.go ("writeconcern.AckWrite(cmd.WriteConcern)").
package writeconcern

import "go.mongodb.org/mongo-driver/bson"

// WriteConcern describes the acknowledgement a caller requires for a write.
// A nil *WriteConcern or the zero value both mean "server default", which
// this core treats as acknowledged (majority of drivers default to w:1).
type WriteConcern struct {
	W        interface{} // int or string ("majority", tag set name, ...)
	WTimeout int32       // milliseconds
	Journal  *bool
	FSync    *bool

	unacknowledged bool
}

// Unacknowledged returns the well-known w:0 write concern.
func Unacknowledged() *WriteConcern {
	return &WriteConcern{W: 0, unacknowledged: true}
}

// Empty is the shared read-only default used whenever no write concern is
// supplied. Callers must treat this value as immutable; it exists so every
// command document that needs a writeConcern field but has none to apply
// can reference the same empty document instead of allocating one.
var Empty = bson.D{}

// Acknowledged reports whether the caller wants the server to wait for and
// report the outcome of the write at all.
func (wc *WriteConcern) Acknowledged() bool {
	if wc == nil {
		return true
	}
	if wc.unacknowledged {
		return false
	}
	if w, ok := wc.W.(int); ok && w == 0 {
		return false
	}
	return true
}

// Validate reports an error if the write concern is self-contradictory,
// e.g. requesting journal acknowledgement with w:0. This is the one
// validation the Dispatcher performs before any I/O.
func (wc *WriteConcern) Validate() error {
	if wc == nil {
		return nil
	}
	if !wc.Acknowledged() {
		if wc.Journal != nil && *wc.Journal {
			return errInvalidUnacknowledgedJournal
		}
	}
	return nil
}

// AckWrite reports whether wc requires the executor to wait for and parse
// a server reply at all. Named to match the reference driver's
// writeconcern.AckWrite free function.
func AckWrite(wc *WriteConcern) bool {
	return wc.Acknowledged()
}

// Document renders the write concern as the BSON document to embed under
// the "writeConcern" key of a command, or Empty when none is needed.
func (wc *WriteConcern) Document() interface{} {
	if wc == nil {
		return Empty
	}
	d := bson.D{}
	if wc.W != nil {
		d = append(d, bson.E{Key: "w", Value: wc.W})
	}
	if wc.WTimeout != 0 {
		d = append(d, bson.E{Key: "wtimeout", Value: wc.WTimeout})
	}
	if wc.Journal != nil {
		d = append(d, bson.E{Key: "j", Value: *wc.Journal})
	}
	if wc.FSync != nil {
		d = append(d, bson.E{Key: "fsync", Value: *wc.FSync})
	}
	if len(d) == 0 {
		return Empty
	}
	return d
}

var errInvalidUnacknowledgedJournal = invalidError("journal acknowledgement requested with an unacknowledged write concern")

type invalidError string

func (e invalidError) Error() string { return string(e) }
