// Package cmdexec implements the Command Executor (component C5): it
// wraps a CommandBuffer into one or more insert/update/delete command
// documents, sends each as a single RPC, and merges replies, looping to
// cover batches too large for one command.
//
// Grounded on the reference driver's command.Insert/command.Update
// Encode/split/RoundTrip pipeline (core/command/insert.go,
// core/command/update.go): split the buffer under the size estimator,
// build one wire exchange per sub-batch, decode and merge each reply in
// turn.
package cmdexec

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transport"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/werror"
	"github.com/writecore/mwrite/internal/wlog"
	"github.com/writecore/mwrite/internal/wresult"
	"github.com/writecore/mwrite/internal/writeconcern"
)

// perArrayElementOverhead accounts for the BSON array-element header (type
// byte + stringified index key + NUL) when estimating the slow-path
// cumulative size: +2 alongside the key length, for the type byte and
// terminator.
const perArrayElementOverhead = 2

func cmdNameAndField(kind wbuffer.Kind) (cmdName, field string) {
	switch kind {
	case wbuffer.KindInsert:
		return "insert", "documents"
	case wbuffer.KindUpdate:
		return "update", "updates"
	case wbuffer.KindDelete:
		return "delete", "deletes"
	default:
		return "", ""
	}
}

// Execute drives buf to completion against hint, merging every reply into
// acc starting at startOffset. It returns the transport error, if any,
// that ended execution early; per-operation server errors are recorded in
// acc, not returned.
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
		acc.Error = werror.New(werror.EmptyBatch, 0, "command executor invoked with zero operations")
		return acc.Error
	}

	cmdName, field := cmdNameAndField(buf.Kind)

	offset := startOffset
	start := 0
	priorSucceeded := true

	for start < buf.Count() {
		batch, i, tooLargeAtStart, err := splitBatch(buf, start, caps)
		if err != nil {
			return err
		}

		if tooLargeAtStart {
			acc.Failed = true
			errDoc := bson.D{
				{Key: "index", Value: offset},
				{Key: "code", Value: werror.TooLargeCode},
				{Key: "errmsg", Value: "document too large to fit in a single command batch"},
			}
			acc.WriteErrors = append(acc.WriteErrors, wresult.WriteError{Doc: errDoc})
			if buf.Ordered {
				return nil
			}
			start++
			offset++
			continue
		}

		hasMore := start+i < buf.Count()

		cmd := bson.D{
			{Key: cmdName, Value: coll},
			{Key: "writeConcern", Value: wc.Document()},
			{Key: "ordered", Value: buf.Ordered},
			{Key: field, Value: batch},
		}

		log.Debug(wlog.ComponentCommandExec, "sending write command", "cmd", cmdName, "batchSize", i, "offset", offset)

		reply, sendErr := tr.CommandSimple(ctx, db, cmd, hint)
		if sendErr != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, sendErr, "command executor send failed")
			log.Error(wlog.ComponentCommandExec, sendErr, "write command send failed")
			return acc.Error
		}

		if err := acc.MergeCommand(reply, offset); err != nil {
			acc.Failed = true
			acc.Error = werror.Wrap(werror.TransportFailure, err, "command executor reply decode failed")
			return acc.Error
		}

		priorSucceeded = !acc.Failed
		offset += int32(i)
		start += i

		if !hasMore {
			break
		}
		if !priorSucceeded && buf.Ordered {
			break
		}
	}

	return nil
}

// splitBatch builds the BSON array value for one command sub-batch
// starting at index start, returning the array, how many entries it
// covers, and whether even a single item didn't fit.
func splitBatch(buf *wbuffer.Buffer, start int, caps description.Server) (batch bson.A, count int, tooLargeAtStart bool, err error) {
	remaining := buf.Documents[start:]

	// Fast path: check whether the full remainder fits as one bulk copy.
	whole, wholeSize, err := marshalAll(remaining)
	if err != nil {
		return nil, 0, false, err
	}
	if !wbuffer.Overflow(0, wholeSize, len(remaining), caps.MaxBSONObjectSize, caps.MaxWriteBatchSize) {
		return whole, len(remaining), false, nil
	}

	// Slow path: append one entry at a time until the estimator says stop.
	out := make(bson.A, 0, len(remaining))
	size := 0
	for idx, doc := range remaining {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, 0, false, fmt.Errorf("cmdexec: marshaling entry %d: %w", start+idx, err)
		}
		itemCost := len(raw) + digitsIn(len(out)) + perArrayElementOverhead
		if wbuffer.Overflow(size, itemCost, len(out), caps.MaxBSONObjectSize, caps.MaxWriteBatchSize) {
			break
		}
		size += itemCost
		out = append(out, doc)
	}

	if len(out) == 0 {
		return nil, 0, true, nil
	}

	return out, len(out), false, nil
}

func marshalAll(docs []interface{}) (bson.A, int, error) {
	out := make(bson.A, 0, len(docs))
	size := 0
	for i, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, 0, fmt.Errorf("cmdexec: marshaling entry %d: %w", i, err)
		}
		size += len(raw) + digitsIn(i) + perArrayElementOverhead
		out = append(out, doc)
	}
	return out, size, nil
}

func digitsIn(n int) int {
	if n == 0 {
		return 1
	}
	d := 0
	for n > 0 {
		d++
		n /= 10
	}
	return d
}
