package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/dispatch"
	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transporttest"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/writeconcern"
)

func fieldOf(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestExecuteUsesCommandPathWhenSupported(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)

	fake := &transporttest.Fake{
		Caps: description.Server{MinWireVersion: 2, MaxWireVersion: 6, MaxBSONObjectSize: 16 << 20, MaxMessageSizeBytes: 48 << 20, MaxWriteBatchSize: 1000},
		CommandReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(1)}}),
		},
	}

	out, ok, err := dispatch.Execute(context.Background(), fake, buf, dispatch.Options{DB: "db", Collection: "coll", WriteConcern: &writeconcern.WriteConcern{W: 1}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, fake.SentCommands, 1)
	v, ok2 := fieldOf(out, "nInserted")
	require.True(t, ok2)
	require.Equal(t, int32(1), v)
}

func TestExecuteFallsBackToLegacyPath(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)

	fake := &transporttest.Fake{
		Caps: description.Server{MinWireVersion: 0, MaxWireVersion: 1, MaxBSONObjectSize: 16 << 20, MaxMessageSizeBytes: 48 << 20, MaxWriteBatchSize: 1000},
		GLEReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(0)}}),
		},
	}

	out, ok, err := dispatch.Execute(context.Background(), fake, buf, dispatch.Options{DB: "db", Collection: "coll", WriteConcern: &writeconcern.WriteConcern{W: 1}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, fake.SentFrames, 1)
	v, ok2 := fieldOf(out, "nInserted")
	require.True(t, ok2)
	require.Equal(t, int32(1), v) // overwriteInsertCount quirk
}

func TestExecuteInvalidWriteConcernTerminatesEarly(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)

	j := true
	fake := &transporttest.Fake{}
	_, ok, err := dispatch.Execute(context.Background(), fake, buf, dispatch.Options{
		DB: "db", Collection: "coll",
		WriteConcern: &writeconcern.WriteConcern{W: 0, Journal: &j},
	})
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, fake.SentFrames)
	require.Empty(t, fake.SentCommands)
}

func TestExecutePreselectFailureReturnsError(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)

	fake := &transporttest.Fake{PreselectErr: context.DeadlineExceeded}
	_, ok, err := dispatch.Execute(context.Background(), fake, buf, dispatch.Options{
		DB: "db", Collection: "coll", WriteConcern: &writeconcern.WriteConcern{W: 1},
	})
	require.Error(t, err)
	require.False(t, ok)
}
