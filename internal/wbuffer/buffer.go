// Package wbuffer implements the Command Buffer (component C1) and the
// Size Estimator (component C2). A Buffer accumulates one logical batch of
// same-kind operations in submission order; executors drain it under
// ordered/unordered and size-split rules.
//
// Modeled on the reference driver's command.Insert/command.Update, which
// hold their per-operation documents as an ordered []*bson.Document and
// split them under the same two simultaneous limits (see
// core/command/insert.go's split/encodeBatch).
package wbuffer

import (
	"fmt"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies which of the three write operation types a Buffer holds.
// A single Buffer never mixes kinds within its Documents.
type Kind int

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// minDocLen is the smallest legal BSON document: int32 length + trailing
// NUL, 5 bytes total.
const minDocLen = 5

// Buffer is the Command Buffer: a dense, zero-based, ordered sequence of
// operations, held as a plain slice since each entry is encoded as a BSON
// array element in submission order anyway.
type Buffer struct {
	Kind      Kind
	Ordered   bool
	AllowBulk bool // meaningful for KindInsert only
	Multi     bool // meaningful for KindDelete only; applies to every selector

	Documents []interface{}
}

// NewInsert allocates a Buffer for an insert batch and appends the first
// documents, if any. allowBulk false still lets the command path batch
// everything, but forces the legacy path to one document per OP_INSERT
// frame.
func NewInsert(ordered, allowBulk bool, docs ...interface{}) (*Buffer, error) {
	b := &Buffer{Kind: KindInsert, Ordered: ordered, AllowBulk: allowBulk}
	if err := b.AppendInsert(docs...); err != nil {
		return nil, err
	}
	return b, nil
}

// NewUpdate allocates a Buffer for an update batch and appends the first
// entry, if q/u are non-nil.
func NewUpdate(ordered bool, q, u interface{}, upsert, multi bool) *Buffer {
	b := &Buffer{Kind: KindUpdate, Ordered: ordered}
	if q != nil || u != nil {
		b.AppendUpdate(q, u, upsert, multi)
	}
	return b
}

// NewDelete allocates a Buffer for a delete batch and appends the first
// selector, if q is non-nil. multi applies to every selector in the
// buffer.
func NewDelete(ordered, multi bool, q interface{}) *Buffer {
	b := &Buffer{Kind: KindDelete, Ordered: ordered, Multi: multi}
	if q != nil {
		b.AppendDelete(q)
	}
	return b
}

// Count returns the number of entries currently buffered.
func (b *Buffer) Count() int {
	return len(b.Documents)
}

// AppendInsert appends one or more documents to an insert Buffer, assigning
// each a fresh ObjectID _id when the document doesn't already carry one.
// The synthesized _id is written first and the original fields
// concatenated after it — never the reverse, since the server rejects a
// later duplicate _id field.
func (b *Buffer) AppendInsert(docs ...interface{}) error {
	if b.Kind != KindInsert {
		return fmt.Errorf("wbuffer: AppendInsert called on a %s buffer", b.Kind)
	}
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("wbuffer: marshaling insert document: %w", err)
		}
		if len(raw) < minDocLen {
			return fmt.Errorf("wbuffer: insert document shorter than the minimum legal BSON length")
		}

		var asD bson.D
		if err := bson.Unmarshal(raw, &asD); err != nil {
			return fmt.Errorf("wbuffer: decoding insert document: %w", err)
		}

		if hasKey(asD, "_id") {
			b.Documents = append(b.Documents, asD)
			continue
		}

		withID := make(bson.D, 0, len(asD)+1)
		withID = append(withID, bson.E{Key: "_id", Value: primitive.NewObjectID()})
		withID = append(withID, asD...)
		b.Documents = append(b.Documents, withID)
	}
	return nil
}

// AppendUpdate appends one update entry of shape {q, u, upsert, multi}, in
// that field order, to an update Buffer.
func (b *Buffer) AppendUpdate(q, u interface{}, upsert, multi bool) {
	if q == nil {
		q = bson.D{}
	}
	entry := bson.D{
		{Key: "q", Value: q},
		{Key: "u", Value: u},
		{Key: "upsert", Value: upsert},
		{Key: "multi", Value: multi},
	}
	b.Documents = append(b.Documents, entry)
}

// AppendDelete appends one delete entry of shape {q, limit}, where limit is
// 0 when b.Multi is set (remove all matches) or 1 otherwise (remove one).
func (b *Buffer) AppendDelete(q interface{}) {
	if q == nil {
		q = bson.D{}
	}
	limit := 1
	if b.Multi {
		limit = 0
	}
	b.Documents = append(b.Documents, bson.D{
		{Key: "q", Value: q},
		{Key: "limit", Value: limit},
	})
}

// Destroy releases the Documents container. Go's garbage collector makes
// this unnecessary for memory safety, but callers migrating from APIs with
// an explicit close step get a single place that marks a Buffer as no
// longer in use.
func (b *Buffer) Destroy() {
	b.Documents = nil
}

func hasKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}

// ValidUTF8NullsOK reports whether s is valid UTF-8, tolerating embedded
// NUL bytes (which are legal inside BSON strings but would otherwise make
// s look like a C string terminator to naive validators). Used by the
// legacy executor's pre-flight update-key validation.
func ValidUTF8NullsOK(s string) bool {
	return utf8.ValidString(s)
}
