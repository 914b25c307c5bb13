// Package transporttest provides an in-memory transport.Transport double
// that replays canned replies instead of talking to sockets, enabling
// property-based tests without opening real connections.
package transporttest

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transport"
	"github.com/writecore/mwrite/internal/writeconcern"
)

type fakeHint int

// Fake is a scripted transport.Transport. Set Caps and the reply queues
// before use; CommandReplies/GLEReplies are popped in order as
// CommandSimple/RecvGLE are called, one response per call.
type Fake struct {
	Caps           description.Server
	CommandReplies []bson.Raw
	GLEReplies     []bson.Raw
	PreselectErr   error
	SendErr        error

	SentFrames   [][]byte
	SentCommands []interface{}

	commandCalls int
	gleCalls     int
}

var _ transport.Transport = (*Fake)(nil)

func (f *Fake) Send(_ context.Context, frame []byte, hint transport.Hint, _ *writeconcern.WriteConcern) (transport.Hint, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.SentFrames = append(f.SentFrames, frame)
	if hint == nil {
		hint = fakeHint(1)
	}
	return hint, nil
}

func (f *Fake) RecvGLE(_ context.Context, _ transport.Hint) (bson.Raw, error) {
	if f.gleCalls >= len(f.GLEReplies) {
		return nil, fmt.Errorf("transporttest: no more GLE replies scripted")
	}
	r := f.GLEReplies[f.gleCalls]
	f.gleCalls++
	return r, nil
}

func (f *Fake) CommandSimple(_ context.Context, _ string, cmd interface{}, _ transport.Hint) (bson.Raw, error) {
	f.SentCommands = append(f.SentCommands, cmd)
	if f.commandCalls >= len(f.CommandReplies) {
		return nil, fmt.Errorf("transporttest: no more command replies scripted")
	}
	r := f.CommandReplies[f.commandCalls]
	f.commandCalls++
	return r, nil
}

func (f *Fake) Preselect(_ context.Context, _ transport.OpIntent, _ *writeconcern.WriteConcern) (transport.Hint, error) {
	if f.PreselectErr != nil {
		return nil, f.PreselectErr
	}
	return fakeHint(1), nil
}

func (f *Fake) NodeCaps(_ context.Context, _ transport.Hint) description.Server {
	return f.Caps
}

// MustDoc marshals v into a bson.Raw, panicking on error; a convenience for
// building scripted replies in tests.
func MustDoc(v interface{}) bson.Raw {
	raw, err := bson.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bson.Raw(raw)
}
