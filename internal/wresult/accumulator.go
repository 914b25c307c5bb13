// Package wresult implements the Result Accumulator (component C3): it
// merges per-request server replies, from either the
// command or legacy wire path, into a single user-facing result document.
//
// The counter names follow mgo's ChangeInfo/BulkResult (legacy_types.go)
// and the error aggregation follows its BulkError/BulkErrorCase shape,
// generalized here into a single accumulator instead of one result type
// per kind.
package wresult

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/werror"
)

// Upserted is one {index, _id} record, where index is the position in the
// caller's original logical batch.
type Upserted struct {
	Index int32
	ID    interface{}
}

// WriteError is one per-operation error record. Doc holds the full
// original server document with its "index" field already rewritten to
// the global offset; all other fields (code, errmsg, errInfo, ...) are
// preserved verbatim.
type WriteError struct {
	Doc bson.D
}

// Index returns the (already offset-corrected) index field of the error.
func (w WriteError) Index() int32 {
	for _, e := range w.Doc {
		if e.Key == "index" {
			return toInt32(e.Value)
		}
	}
	return 0
}

// Code returns the error's code field, or 0 if absent.
func (w WriteError) Code() int32 {
	for _, e := range w.Doc {
		if e.Key == "code" {
			return toInt32(e.Value)
		}
	}
	return 0
}

// ErrMsg returns the error's errmsg field, or "" if absent.
func (w WriteError) ErrMsg() string {
	for _, e := range w.Doc {
		if e.Key == "errmsg" {
			if s, ok := e.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Accumulator is the Result Accumulator. Zero value is ready to use once
// Kind is set via NewAccumulator.
type Accumulator struct {
	Kind wbuffer.Kind

	NInserted int32
	NMatched  int32
	NModified int32
	NRemoved  int32
	NUpserted int32

	Upserted    []Upserted
	WriteErrors []WriteError

	WriteConcernError bson.D

	Failed        bool
	OmitNModified bool

	Error *werror.Error
}

// NewAccumulator constructs a zero-initialized Accumulator for the given
// operation kind.
func NewAccumulator(kind wbuffer.Kind) *Accumulator {
	return &Accumulator{Kind: kind}
}

// MergeCommand merges a single command-path reply document into the
// accumulator. offset is the number of logical operations in the caller's
// original batch that preceded this server sub-batch.
func (a *Accumulator) MergeCommand(reply bson.Raw, offset int32) error {
	doc, err := rawToD(reply)
	if err != nil {
		return err
	}

	n := fieldInt32(doc, "n", 0)

	if errs, ok := fieldArray(doc, "writeErrors"); ok && len(errs) > 0 {
		a.Failed = true
	}

	switch a.Kind {
	case wbuffer.KindInsert:
		a.NInserted += n
	case wbuffer.KindDelete:
		a.NRemoved += n
	case wbuffer.KindUpdate:
		if ups, ok := fieldArray(doc, "upserted"); ok {
			var u int32
			for _, raw := range ups {
				ud, err := rawToD(raw)
				if err != nil {
					continue
				}
				idx := fieldInt32(ud, "index", 0)
				id := fieldValue(ud, "_id")
				a.appendUpsert(offset+idx, id)
				u++
			}
			a.NUpserted += u
			matched := n - u
			if matched < 0 {
				matched = 0
			}
			// nMatched needs some checking: this subtraction is preserved
			// verbatim from observed server behavior; do not "fix" it
			// without a server-protocol reference.
			a.NMatched += matched
		} else {
			a.NMatched += n
		}

		if nm, ok := fieldValueOK(doc, "nModified"); ok {
			if v, ok := nm.(int32); ok {
				a.NModified += v
			} else {
				a.OmitNModified = true
			}
		} else {
			a.OmitNModified = true
		}
	}

	if errs, ok := fieldArray(doc, "writeErrors"); ok {
		for _, raw := range errs {
			ed, err := rawToD(raw)
			if err != nil {
				continue
			}
			a.appendWriteError(ed, offset)
		}
	}

	if wce, ok := fieldDocument(doc, "writeConcernError"); ok {
		a.WriteConcernError = wce
	}

	return nil
}

// MergeLegacy merges a single getLastError reply into the accumulator.
// offset has the same meaning as in MergeCommand.
func (a *Accumulator) MergeLegacy(reply bson.Raw, offset int32) error {
	doc, err := rawToD(reply)
	if err != nil {
		return err
	}

	n := fieldInt32(doc, "n", 0)
	errStr, hasErr := fieldString(doc, "err")
	code, hasCode := fieldInt32OK(doc, "code")

	if hasErr && hasCode {
		a.Failed = true
		synth := bson.D{
			{Key: "index", Value: int32(0)},
			{Key: "code", Value: code},
			{Key: "errmsg", Value: errStr},
		}
		a.appendWriteError(synth, offset)
	}

	switch a.Kind {
	case wbuffer.KindInsert:
		a.NInserted += n
	case wbuffer.KindDelete:
		a.NRemoved += n
	case wbuffer.KindUpdate:
		updatedExisting, hasUE := fieldBoolOK(doc, "updatedExisting")
		if ups, ok := fieldValueOK(doc, "upserted"); ok {
			switch v := ups.(type) {
			case bson.A:
				// newer servers: array of {index,_id}; only the first
				// entry's _id is recorded (at offset), and n is added to
				// nUpserted.
				a.appendUpsert(offset, firstUpsertID(v))
				a.NUpserted += n
			default:
				// old servers: upserted is a scalar _id value.
				a.appendUpsert(offset, v)
				a.NUpserted += n
			}
		} else if n == 1 && hasUE && !updatedExisting {
			a.NUpserted += n
		} else {
			a.NMatched += n
		}
	}

	a.OmitNModified = true

	return nil
}

func firstUpsertID(arr bson.A) interface{} {
	if len(arr) == 0 {
		return nil
	}
	d, ok := arr[0].(bson.D)
	if !ok {
		return arr[0]
	}
	return fieldValue(d, "_id")
}

func (a *Accumulator) appendUpsert(index int32, id interface{}) {
	a.Upserted = append(a.Upserted, Upserted{Index: index, ID: id})
}

func (a *Accumulator) appendWriteError(doc bson.D, offset int32) {
	rewritten := make(bson.D, 0, len(doc))
	found := false
	for _, e := range doc {
		if e.Key == "index" {
			rewritten = append(rewritten, bson.E{Key: "index", Value: toInt32(e.Value) + offset})
			found = true
			continue
		}
		rewritten = append(rewritten, e)
	}
	if !found {
		rewritten = append(bson.D{{Key: "index", Value: offset}}, rewritten...)
	}
	a.WriteErrors = append(a.WriteErrors, WriteError{Doc: rewritten})
}

// Finalize renders the accumulated state into the user-visible result
// document. wantError mirrors "the caller requested an error record": when
// true and no terminal error has been set but exactly one write error
// exists, the result's first write error is promoted into a.Error. It
// returns the finalized document and the overall success flag. Finalize is
// idempotent: calling it more than once yields identical results.
func (a *Accumulator) Finalize(wantError bool) (bson.D, bool) {
	if wantError && a.Error == nil && len(a.WriteErrors) == 1 {
		we := a.WriteErrors[0]
		a.Error = werror.New(werror.ServerWriteError, we.Code(), we.ErrMsg())
	}

	out := bson.D{
		{Key: "nInserted", Value: a.NInserted},
		{Key: "nMatched", Value: a.NMatched},
	}
	if !a.OmitNModified {
		out = append(out, bson.E{Key: "nModified", Value: a.NModified})
	}
	out = append(out,
		bson.E{Key: "nRemoved", Value: a.NRemoved},
		bson.E{Key: "nUpserted", Value: a.NUpserted},
	)

	if len(a.Upserted) > 0 {
		arr := make(bson.A, 0, len(a.Upserted))
		for _, u := range a.Upserted {
			arr = append(arr, bson.D{{Key: "index", Value: u.Index}, {Key: "_id", Value: u.ID}})
		}
		out = append(out, bson.E{Key: "upserted", Value: arr})
	}

	errs := make(bson.A, 0, len(a.WriteErrors))
	for _, we := range a.WriteErrors {
		errs = append(errs, we.Doc)
	}
	out = append(out, bson.E{Key: "writeErrors", Value: errs})

	if len(a.WriteConcernError) > 0 {
		out = append(out, bson.E{Key: "writeConcernError", Value: a.WriteConcernError})
	}

	ok := !a.Failed && len(a.WriteConcernError) == 0 && len(a.WriteErrors) == 0
	return out, ok
}
