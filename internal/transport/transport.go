// Package transport declares the five operations the write-command core
// needs from the network/topology layer. The core never talks to a socket
// directly; it calls these methods on whatever NodeHint/Node the caller's
// transport implementation provides. This mirrors the
// reference driver's pattern of hiding connection and topology selection
// behind narrow interfaces (core/connection.Connection,
// core/topology.SelectedServer) so the write core can be tested with a
// fake that replays canned replies instead of real sockets.
package transport

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/writeconcern"
)

// Hint identifies a previously selected node/connection. The zero value
// (nil) means "no node selected yet"; Send returns nil on failure.
type Hint interface{}

// OpIntent distinguishes which kind of write a preselect call is for, since
// some topologies route inserts/updates/deletes to different members.
type OpIntent int

const (
	IntentInsert OpIntent = iota
	IntentUpdate
	IntentDelete
)

// Transport is the full set of operations the core consumes. A production
// implementation backs this with real connections and a topology
// description cache; tests back it with an in-memory fake
// (internal/transporttest).
type Transport interface {
	// Send writes a single legacy opcode frame (already wire-encoded) to
	// the node identified by hint, returning the possibly-updated hint, or
	// nil on failure.
	Send(ctx context.Context, frame []byte, hint Hint, wc *writeconcern.WriteConcern) (Hint, error)

	// RecvGLE reads a single getLastError-shaped reply document following
	// an unacknowledged legacy write.
	RecvGLE(ctx context.Context, hint Hint) (bson.Raw, error)

	// CommandSimple sends cmd as a single command round trip against db
	// and returns the single reply document.
	CommandSimple(ctx context.Context, db string, cmd interface{}, hint Hint) (bson.Raw, error)

	// Preselect asks the transport to choose a node appropriate for the
	// given write intent and write concern, returning nil on failure.
	Preselect(ctx context.Context, intent OpIntent, wc *writeconcern.WriteConcern) (Hint, error)

	// NodeCaps returns the capability snapshot for the node identified by
	// hint. description.Server.IsUnknown() is true when the node could not
	// be reached.
	NodeCaps(ctx context.Context, hint Hint) description.Server
}
