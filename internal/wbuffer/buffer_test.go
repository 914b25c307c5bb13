package wbuffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/internal/wbuffer"
)

func TestAppendInsertGeneratesID(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "name", Value: "ann"}})
	require.NoError(t, err)
	require.Equal(t, 1, buf.Count())

	doc, ok := buf.Documents[0].(bson.D)
	require.True(t, ok)
	require.Equal(t, "_id", doc[0].Key)
	require.Equal(t, "name", doc[1].Key)
}

func TestAppendInsertKeepsExistingID(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true)
	require.NoError(t, err)
	err = buf.AppendInsert(bson.D{{Key: "_id", Value: 42}, {Key: "name", Value: "bob"}})
	require.NoError(t, err)

	doc := buf.Documents[0].(bson.D)
	require.Equal(t, "_id", doc[0].Key)
	require.Equal(t, int32(42), doc[0].Value)
	require.Len(t, doc, 2)
}

func TestAppendInsertWrongKind(t *testing.T) {
	buf := wbuffer.NewDelete(true, false, bson.D{{Key: "x", Value: 1}})
	err := buf.AppendInsert(bson.D{})
	require.Error(t, err)
}

func TestAppendUpdateShape(t *testing.T) {
	buf := wbuffer.NewUpdate(true, nil, nil, false, false)
	buf.AppendUpdate(bson.D{{Key: "x", Value: 1}}, bson.D{{Key: "$set", Value: bson.D{{Key: "y", Value: 2}}}}, true, false)

	entry := buf.Documents[0].(bson.D)
	require.Equal(t, "q", entry[0].Key)
	require.Equal(t, "u", entry[1].Key)
	require.Equal(t, "upsert", entry[2].Key)
	require.Equal(t, true, entry[2].Value)
	require.Equal(t, "multi", entry[3].Key)
	require.Equal(t, false, entry[3].Value)
}

func TestAppendDeleteLimit(t *testing.T) {
	single := wbuffer.NewDelete(true, false, bson.D{{Key: "x", Value: 1}})
	entry := single.Documents[0].(bson.D)
	require.Equal(t, 1, entry[1].Value)

	multi := wbuffer.NewDelete(true, true, bson.D{{Key: "x", Value: 1}})
	entry = multi.Documents[0].(bson.D)
	require.Equal(t, 0, entry[1].Value)
}

func TestValidUTF8NullsOK(t *testing.T) {
	require.True(t, wbuffer.ValidUTF8NullsOK("hello\x00world"))
	require.False(t, wbuffer.ValidUTF8NullsOK(string([]byte{0xff, 0xfe})))
}

func TestDestroyClearsDocuments(t *testing.T) {
	buf, err := wbuffer.NewInsert(true, true, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	buf.Destroy()
	require.Equal(t, 0, buf.Count())
}
