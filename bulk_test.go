package mwrite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite"
	"github.com/writecore/mwrite/internal/description"
	"github.com/writecore/mwrite/internal/transporttest"
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

func commandCaps() description.Server {
	return description.Server{MinWireVersion: 2, MaxWireVersion: 6, MaxBSONObjectSize: 16 << 20, MaxMessageSizeBytes: 48 << 20, MaxWriteBatchSize: 1000}
}

func TestBulkInsertThenUpdateRuns(t *testing.T) {
	b := mwrite.NewBulk("db", "coll", &writeconcern.WriteConcern{W: 1})
	require.NoError(t, b.Insert(bson.D{{Key: "a", Value: 1}}, bson.D{{Key: "a", Value: 2}}))
	b.Update(bson.D{{Key: "a", Value: 1}}, bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: 3}}}})

	fake := &transporttest.Fake{
		Caps: commandCaps(),
		CommandReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(2)}}),
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(1)}, {Key: "nModified", Value: int32(1)}}),
		},
	}

	res, err := b.Run(context.Background(), fake, nil, nil)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, fake.SentCommands, 2)

	nInserted, _ := fieldOf(res.Doc, "nInserted")
	require.Equal(t, int32(2), nInserted)
	nModified, _ := fieldOf(res.Doc, "nModified")
	require.Equal(t, int32(1), nModified)
}

func TestBulkOffsetThreadsAcrossRuns(t *testing.T) {
	b := mwrite.NewBulk("db", "coll", &writeconcern.WriteConcern{W: 1})
	require.NoError(t, b.Insert(bson.D{{Key: "a", Value: 1}}, bson.D{{Key: "a", Value: 2}}))
	b.Remove(bson.D{{Key: "a", Value: 1}})

	fake := &transporttest.Fake{
		Caps: commandCaps(),
		CommandReplies: []bson.Raw{
			transporttest.MustDoc(bson.D{{Key: "n", Value: int32(2)}}),
			transporttest.MustDoc(bson.D{
				{Key: "n", Value: int32(0)},
				{Key: "writeErrors", Value: bson.A{bson.D{{Key: "index", Value: int32(0)}, {Key: "code", Value: int32(1)}, {Key: "errmsg", Value: "boom"}}}},
			}),
		},
	}

	res, err := b.Run(context.Background(), fake, nil, nil)
	require.NoError(t, err)
	require.False(t, res.OK)

	errs, ok := fieldOf(res.Doc, "writeErrors")
	require.True(t, ok)
	arr := errs.(bson.A)
	require.Len(t, arr, 1)
	errDoc := arr[0].(bson.D)
	idx, _ := fieldOf(errDoc, "index")
	// The delete run starts after 2 inserts, so its local index 0 becomes
	// global index 2.
	require.Equal(t, int32(2), idx)
}

func TestBulkUnorderedRejectsOddPairs(t *testing.T) {
	b := mwrite.NewBulk("db", "coll", nil)
	b.Unordered()
	require.Panics(t, func() {
		b.Update(bson.D{{Key: "a", Value: 1}})
	})
}
