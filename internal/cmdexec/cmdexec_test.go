package cmdexec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/cmdexec"
	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transporttest"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/wresult"
	"github.com/writecore/mwrite/internal/writeconcern"
)

func caps(maxBatch int32) description.Server {
	return description.Server{
		MinWireVersion:      2,
		MaxWireVersion:      6,
		MaxBSONObjectSize:   16 * 1024 * 1024,
		MaxMessageSizeBytes: 48 * 1024 * 1024,
		MaxWriteBatchSize:   maxBatch,
	}
}

func TestExecuteSingleRoundTrip(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true,
		bson.D{{Key: "x", Value: 1}},
		bson.D{{Key: "x", Value: 2}},
		bson.D{{Key: "x", Value: 3}},
	)
	require.NoError(t, err)

	fake := &transporttest.Fake{
		CommandReplies: []bson.Raw{transporttest.MustDoc(bson.D{{Key: "n", Value: int32(3)}, {Key: "ok", Value: 1}})},
	}
	acc := wresult.NewAccumulator(wbuffer.KindInsert)
	err = cmdexec.Execute(context.Background(), fake, 1, "db", "coll", buf, &writeconcern.WriteConcern{W: 1}, 0, caps(1000), acc, nil)
	require.NoError(t, err)
	require.Len(t, fake.SentCommands, 1)

	out, ok := acc.Finalize(true)
	require.True(t, ok)
	require.Equal(t, int32(3), fieldOf(out, "nInserted"))
}

func TestExecuteSplitsOnMaxBatchSize(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true,
		bson.D{{Key: "x", Value: 1}},
		bson.D{{Key: "x", Value: 2}},
		bson.D{{Key: "x", Value: 3}},
	)
	require.NoError(t, err)

	fake := &transporttest.Fake{
		CommandReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(1)}}),
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(1)}}),
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(1)}}),
		},
	}
	acc := wresult.NewAccumulator(wbuffer.KindInsert)
	err = cmdexec.Execute(context.Background(), fake, 1, "db", "coll", buf, &writeconcern.WriteConcern{W: 1}, 0, caps(1), acc, nil)
	require.NoError(t, err)
	require.Len(t, fake.SentCommands, 3)

	out, ok := acc.Finalize(true)
	require.True(t, ok)
	require.Equal(t, int32(3), fieldOf(out, "nInserted"))
}

func TestExecuteEmptyBufferFails(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true)
	require.NoError(t, err)

	fake := &transporttest.Fake{}
	acc := wresult.NewAccumulator(wbuffer.KindInsert)
	err = cmdexec.Execute(context.Background(), fake, 1, "db", "coll", buf, &writeconcern.WriteConcern{W: 1}, 0, caps(1000), acc, nil)
	require.Error(t, err)
	require.True(t, acc.Failed)
}

func TestExecuteOrderedStopsOnWriteError(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true,
		bson.D{{Key: "x", Value: 1}},
		bson.D{{Key: "x", Value: 2}},
	)
	require.NoError(t, err)

	fake := &transporttest.Fake{
		CommandReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{
				{Key: "n", Value: int32(1)},
				{Key: "writeErrors", Value: bson.A{bson.D{{Key: "index", Value: int32(0)}, {Key: "code", Value: int32(11000)}, {Key: "errmsg", Value: "dup"}}}},
			}),
		},
	}
	acc := wresult.NewAccumulator(wbuffer.KindInsert)
	err = cmdexec.Execute(context.Background(), fake, 1, "db", "coll", buf, &writeconcern.WriteConcern{W: 1}, 0, caps(1), acc, nil)
	require.NoError(t, err)
	require.Len(t, fake.SentCommands, 1)
	require.True(t, acc.Failed)
}

func fieldOf(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}
