// Package dispatch implements the Dispatcher (component C6), the single
// public entry point of the write-command core. It selects a
// node, reads that node's capabilities, chooses the command or legacy
// protocol front end, and returns the accumulated result.
//
// Grounded directly on the reference driver's core/dispatch/insert.go and
// core/dispatch/update.go: select a server, open a connection, check
// whether the write is acknowledged, and round-trip the command. Every path
// runs synchronously; unacknowledged writes against opcode-only servers go
// down the legacy path, which sends frames without reading a getLastError
// reply.
package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/cmdexec"
	"github.com/writecore/mwrite/internal/legacyexec"
	"github.com/writecore/mwrite/internal/transport"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/werror"
	"github.com/writecore/mwrite/internal/wlog"
	"github.com/writecore/mwrite/internal/wresult"
	"github.com/writecore/mwrite/internal/writeconcern"
)

func intentFor(kind wbuffer.Kind) transport.OpIntent {
	switch kind {
	case wbuffer.KindInsert:
		return transport.IntentInsert
	case wbuffer.KindUpdate:
		return transport.IntentUpdate
	default:
		return transport.IntentDelete
	}
}

// Options configures one Execute call.
type Options struct {
	DB, Collection string
	WriteConcern   *writeconcern.WriteConcern
	// Hint, when non-nil, skips node preselection and is used directly.
	Hint transport.Hint
	// Offset is the caller's notion of "position in the overall user
	// batch" threaded through every merge.
	Offset int32
	Log    *wlog.Logger
}

// Execute runs buf to completion against tr, returning the finalized
// result document and whether the write succeeded overall, following the
// Dispatcher's state machine:
//
//	INITIAL - validate -> SELECTED - exec -> DONE
//	  |                       |
//	  +- invalid_wc ----------+- transport_fail -> DONE(failed)
func Execute(ctx context.Context, tr transport.Transport, buf *wbuffer.Buffer, opts Options) (bson.D, bool, error) {
	acc := wresult.NewAccumulator(buf.Kind)
	log := opts.Log

	if err := opts.WriteConcern.Validate(); err != nil {
		acc.Failed = true
		acc.Error = werror.New(werror.InvalidArg, 0, err.Error())
		out, ok := acc.Finalize(true)
		return out, ok, nil
	}

	hint := opts.Hint
	if hint == nil {
		selected, err := tr.Preselect(ctx, intentFor(buf.Kind), opts.WriteConcern)
		if err != nil || selected == nil {
			acc.Failed = true
			out, _ := acc.Finalize(false)
			return out, false, err
		}
		hint = selected
	}

	caps := tr.NodeCaps(ctx, hint)
	if caps.IsUnknown() {
		// The node is unreachable or its capabilities are unknown; the
		// transport has already recorded the underlying error, so the
		// Dispatcher returns without synthesizing one of its own.
		acc.Failed = true
		out, _ := acc.Finalize(false)
		return out, false, nil
	}

	if caps.SupportsCommandWrites() {
		if caps.OpcodeOnly() && !opts.WriteConcern.Acknowledged() {
			// Avoid waiting on a reply that would go unused against a
			// server that only understands opcodes.
			if err := legacyexec.Execute(ctx, tr, hint, opts.DB, opts.Collection, buf, opts.WriteConcern, opts.Offset, caps, acc, log); err != nil {
				out, ok := acc.Finalize(true)
				return out, ok, err
			}
		} else if err := cmdexec.Execute(ctx, tr, hint, opts.DB, opts.Collection, buf, opts.WriteConcern, opts.Offset, caps, acc, log); err != nil {
			out, ok := acc.Finalize(true)
			return out, ok, err
		}
	} else if err := legacyexec.Execute(ctx, tr, hint, opts.DB, opts.Collection, buf, opts.WriteConcern, opts.Offset, caps, acc, log); err != nil {
		out, ok := acc.Finalize(true)
		return out, ok, err
	}

	out, ok := acc.Finalize(true)
	return out, ok, nil
}
