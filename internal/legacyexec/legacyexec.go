// Package legacyexec implements the Legacy Executor (component C4): it
// drives OP_INSERT / OP_UPDATE / OP_DELETE frames against pre-2.6-era
// servers, optionally followed by a getLastError round trip, and merges
// the results through wresult.Accumulator.MergeLegacy.
//
// Frame construction follows the header/flag layout documented in
// mongodb/mongo-tools's mongoproto package (op_insert.go, op_update.go,
// op_delete.go, message.go); the three-limit insert batching (per-document
// size, per-batch count, per-message size) and the pre-2.6 upsert ObjectId
// back-fill match documented server behavior from that era.
package legacyexec

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transport"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/werror"
	"github.com/writecore/mwrite/internal/wiremessage"
	"github.com/writecore/mwrite/internal/wlog"
	"github.com/writecore/mwrite/internal/wresult"
	"github.com/writecore/mwrite/internal/writeconcern"
)

var requestIDCounter int32

func nextRequestID() int32 {
	return atomic.AddInt32(&requestIDCounter, 1)
}

// Execute dispatches to the per-kind legacy handler for buf.Kind.
func Execute(
	ctx context.Context,
	tr transport.Transport,
	hint transport.Hint,
	db, coll string,
	buf *wbuffer.Buffer,
	wc *writeconcern.WriteConcern,
	startOffset int32,
	caps description.Server,
	acc *wresult.Accumulator,
	log *wlog.Logger,
) error {
	if buf.Count() == 0 {
		acc.Failed = true
		acc.Error = werror.New(werror.EmptyBatch, 0, "legacy executor invoked with zero operations")
		return acc.Error
	}

	ns := db + "." + coll
	if err := checkNamespace(ns); err != nil {
		acc.Failed = true
		acc.Error = werror.New(werror.InvalidArg, 0, err.Error())
		return acc.Error
	}

	switch buf.Kind {
	case wbuffer.KindDelete:
		return execDelete(ctx, tr, hint, db, ns, buf, wc, startOffset, acc, log)
	case wbuffer.KindInsert:
		return execInsert(ctx, tr, hint, db, ns, buf, wc, startOffset, caps, acc, log)
	case wbuffer.KindUpdate:
		return execUpdate(ctx, tr, hint, db, ns, buf, wc, startOffset, acc, log)
	default:
		return fmt.Errorf("legacyexec: unknown buffer kind")
	}
}

func checkNamespace(ns string) error {
	if len(ns) == 0 || len(ns) > wiremessage.MaxNamespaceLen {
		return fmt.Errorf("legacyexec: namespace %q exceeds protocol maximum length", ns)
	}
	return nil
}

func docField(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func asD(v interface{}) bson.D {
	switch d := v.(type) {
	case bson.D:
		return d
	case bson.M:
		out := make(bson.D, 0, len(d))
		for k, val := range d {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out
	default:
		return bson.D{}
	}
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

// ---------------------------- Delete ----------------------------

func execDelete(
	ctx context.Context,
	tr transport.Transport,
	hint transport.Hint,
	db, ns string,
	buf *wbuffer.Buffer,
	wc *writeconcern.WriteConcern,
	startOffset int32,
	acc *wresult.Accumulator,
	log *wlog.Logger,
) error {
	ack := writeconcern.AckWrite(wc)

	for i, entry := range buf.Documents {
		d := asD(entry)
		q, _ := docField(d, "q")
		limit, _ := docField(d, "limit")

		var flags int32
		if asInt(limit) == 1 {
			flags |= wiremessage.DeleteSingleRemove
		}

		selector, err := bson.Marshal(q)
		if err != nil {
			return err
		}

		frame, err := wiremessage.EncodeDelete(nextRequestID(), ns, flags, selector)
		if err != nil {
			return err
		}

		newHint, sendErr := tr.Send(ctx, frame, hint, wc)
		if sendErr != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, sendErr, "OP_DELETE send failed")
			log.Error(wlog.ComponentLegacyExec, sendErr, "OP_DELETE send failed", "index", i)
			return acc.Error
		}
		hint = newHint

		if ack {
			reply, recvErr := tr.RecvGLE(ctx, hint)
			if recvErr != nil {
				acc.Failed = true
				acc.Error = werror.Wrap(werror.TransportFailure, recvErr, "getLastError recv failed")
				return acc.Error
			}
			if err := acc.MergeLegacy(reply, startOffset+int32(i)); err != nil {
				return err
			}
			if acc.Failed && buf.Ordered {
				return nil
			}
		}
	}

	return nil
}

// ---------------------------- Insert ----------------------------

func execInsert(
	ctx context.Context,
	tr transport.Transport,
	hint transport.Hint,
	db, ns string,
	buf *wbuffer.Buffer,
	wc *writeconcern.WriteConcern,
	startOffset int32,
	caps description.Server,
	acc *wresult.Accumulator,
	log *wlog.Logger,
) error {
	ack := writeconcern.AckWrite(wc)
	maxBatchDocs := len(buf.Documents)
	if !buf.AllowBulk {
		maxBatchDocs = 1
	}

	currentOffset := startOffset
	i := 0
	for i < len(buf.Documents) {
		var frameDocs [][]byte
		frameSize := 0
		batchStart := i

		for i < len(buf.Documents) {
			raw, err := bson.Marshal(buf.Documents[i])
			if err != nil {
				return err
			}

			if int32(len(raw)) > caps.MaxBSONObjectSize {
				acc.Failed = true
				acc.WriteErrors = append(acc.WriteErrors, wresult.WriteError{Doc: bson.D{
					{Key: "index", Value: startOffset + int32(i)},
					{Key: "code", Value: werror.TooLargeCode},
					{Key: "errmsg", Value: "document exceeds max_bson_obj_size"},
				}})
				if buf.Ordered {
					return flushAndReturn(ctx, tr, hint, ns, wc, ack, buf.Ordered, frameDocs, currentOffset, batchStart, i, acc, log)
				}
				i++
				continue
			}

			if len(frameDocs) >= maxBatchDocs {
				break
			}
			if len(frameDocs) > 0 && frameSize+len(raw) > int(caps.MaxMessageSizeBytes) {
				break
			}

			frameDocs = append(frameDocs, raw)
			frameSize += len(raw)
			i++
		}

		if len(frameDocs) == 0 {
			continue
		}

		var flags int32
		if !buf.Ordered {
			flags |= wiremessage.InsertContinueOnError
		}

		frame, err := wiremessage.EncodeInsert(nextRequestID(), ns, flags, frameDocs)
		if err != nil {
			return err
		}

		newHint, sendErr := tr.Send(ctx, frame, hint, wc)
		if sendErr != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, sendErr, "OP_INSERT send failed")
			log.Error(wlog.ComponentLegacyExec, sendErr, "OP_INSERT send failed")
			return acc.Error
		}
		hint = newHint

		if ack {
			reply, recvErr := tr.RecvGLE(ctx, hint)
			if recvErr != nil {
				acc.Failed = true
				acc.Error = werror.Wrap(werror.TransportFailure, recvErr, "getLastError recv failed")
				return acc.Error
			}
			reply = overwriteInsertCount(reply, len(frameDocs))
			if err := acc.MergeLegacy(reply, currentOffset); err != nil {
				return err
			}
			if acc.Failed && buf.Ordered {
				return nil
			}
		}

		currentOffset = startOffset + int32(i)
	}

	return nil
}

func flushAndReturn(
	ctx context.Context,
	tr transport.Transport,
	hint transport.Hint,
	ns string,
	wc *writeconcern.WriteConcern,
	ack, ordered bool,
	frameDocs [][]byte,
	currentOffset int32,
	batchStart, processed int,
	acc *wresult.Accumulator,
	log *wlog.Logger,
) error {
	if len(frameDocs) == 0 {
		return nil
	}
	var flags int32
	if !ordered {
		flags |= wiremessage.InsertContinueOnError
	}
	frame, err := wiremessage.EncodeInsert(nextRequestID(), ns, flags, frameDocs)
	if err != nil {
		return err
	}
	newHint, sendErr := tr.Send(ctx, frame, hint, wc)
	if sendErr != nil {
		acc.Failed = true
		acc.Error = werror.Wrap(werror.TransportFailure, sendErr, "OP_INSERT send failed")
		log.Error(wlog.ComponentLegacyExec, sendErr, "OP_INSERT send failed")
		return acc.Error
	}
	if ack {
		reply, recvErr := tr.RecvGLE(ctx, newHint)
		if recvErr != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, recvErr, "getLastError recv failed")
			return acc.Error
		}
		reply = overwriteInsertCount(reply, len(frameDocs))
		return acc.MergeLegacy(reply, currentOffset)
	}
	return nil
}

// overwriteInsertCount implements the legacy insert acknowledgement quirk:
// the server returns n:0 for a successful legacy insert, so when err is
// absent and n is 0 we overwrite n with the batch's document count before
// merging.
func overwriteInsertCount(reply bson.Raw, batchCount int) bson.Raw {
	var d bson.D
	if err := bson.Unmarshal(reply, &d); err != nil {
		return reply
	}
	_, hasErr := docField(d, "err")
	n := 0
	for _, e := range d {
		if e.Key == "n" {
			n = asInt(e.Value)
		}
	}
	if hasErr || n != 0 {
		return reply
	}
	out := make(bson.D, 0, len(d))
	replaced := false
	for _, e := range d {
		if e.Key == "n" {
			out = append(out, bson.E{Key: "n", Value: int32(batchCount)})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, bson.E{Key: "n", Value: int32(batchCount)})
	}
	raw, err := bson.Marshal(out)
	if err != nil {
		return reply
	}
	return bson.Raw(raw)
}

// ---------------------------- Update ----------------------------

func execUpdate(
	ctx context.Context,
	tr transport.Transport,
	hint transport.Hint,
	db, ns string,
	buf *wbuffer.Buffer,
	wc *writeconcern.WriteConcern,
	startOffset int32,
	acc *wresult.Accumulator,
	log *wlog.Logger,
) error {
	// Pre-flight validation pass: a non-operator replacement document may
	// not contain dollar-prefixed or dotted top-level keys, nor invalid
	// UTF-8 (embedded NULs are permitted). Any violation aborts the whole
	// buffer before a single frame is sent.
	for i, entry := range buf.Documents {
		d := asD(entry)
		u, _ := docField(d, "u")
		ud := asD(u)
		if len(ud) == 0 {
			continue
		}
		if strings.HasPrefix(ud[0].Key, "$") {
			continue // update-operator document, not a replacement
		}
		for _, e := range ud {
			if strings.HasPrefix(e.Key, "$") || strings.Contains(e.Key, ".") {
				acc.Failed = true
				acc.Error = werror.New(werror.MalformedUpdate, 0,
					fmt.Sprintf("replacement document at index %d has invalid key %q", i, e.Key))
				return acc.Error
			}
			if !wbuffer.ValidUTF8NullsOK(e.Key) {
				acc.Failed = true
				acc.Error = werror.New(werror.MalformedUpdate, 0,
					fmt.Sprintf("replacement document at index %d has invalid UTF-8 in key %q", i, e.Key))
				return acc.Error
			}
		}
	}

	ack := writeconcern.AckWrite(wc)

	for i, entry := range buf.Documents {
		d := asD(entry)
		q, _ := docField(d, "q")
		u, _ := docField(d, "u")
		multiV, _ := docField(d, "multi")
		upsertV, _ := docField(d, "upsert")
		isUpsert := asBool(upsertV)

		var flags int32
		if isUpsert {
			flags |= wiremessage.UpdateUpsert
		}
		if asBool(multiV) {
			flags |= wiremessage.UpdateMulti
		}

		selector, err := bson.Marshal(q)
		if err != nil {
			return err
		}
		update, err := bson.Marshal(u)
		if err != nil {
			return err
		}

		frame, err := wiremessage.EncodeUpdate(nextRequestID(), ns, flags, selector, update)
		if err != nil {
			return err
		}

		newHint, sendErr := tr.Send(ctx, frame, hint, wc)
		if sendErr != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, sendErr, "OP_UPDATE send failed")
			log.Error(wlog.ComponentLegacyExec, sendErr, "OP_UPDATE send failed", "index", i)
			return acc.Error
		}
		hint = newHint

		if ack {
			reply, recvErr := tr.RecvGLE(ctx, hint)
			if recvErr != nil {
				acc.Failed = true
				acc.Error = werror.Wrap(werror.TransportFailure, recvErr, "getLastError recv failed")
				return acc.Error
			}

			reply = backfillUpsertID(reply, isUpsert, q, u)

			if err := acc.MergeLegacy(reply, startOffset+int32(i)); err != nil {
				return err
			}
			if acc.Failed && buf.Ordered {
				return nil
			}
		}
	}

	return nil
}

// backfillUpsertID implements the pre-2.6 upsert ObjectId back-fill: when
// is_upsert && n > 0 && the reply has no 'upserted' field &&
// updatedExisting is false, synthesize an 'upserted' field on the reply by
// copying _id from the update document if present, otherwise from the
// selector.
func backfillUpsertID(reply bson.Raw, isUpsert bool, q, u interface{}) bson.Raw {
	if !isUpsert {
		return reply
	}
	var d bson.D
	if err := bson.Unmarshal(reply, &d); err != nil {
		return reply
	}

	n := 0
	for _, e := range d {
		if e.Key == "n" {
			n = asInt(e.Value)
		}
	}
	if n <= 0 {
		return reply
	}
	if _, ok := docField(d, "upserted"); ok {
		return reply
	}
	updatedExisting, hasUE := docField(d, "updatedExisting")
	if !hasUE || asBool(updatedExisting) {
		return reply
	}

	var id interface{}
	if ud, ok := docField(asD(u), "_id"); ok {
		id = ud
	} else if qd, ok := docField(asD(q), "_id"); ok {
		id = qd
	} else {
		return reply
	}

	out := append(bson.D{}, d...)
	out = append(out, bson.E{Key: "upserted", Value: id})
	raw, err := bson.Marshal(out)
	if err != nil {
		return reply
	}
	return bson.Raw(raw)
}
