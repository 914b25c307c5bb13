// Package mwrite is the public façade over the write-command core: an
// mgo-flavored bulk write builder backed by this repository's own
// CommandBuffer/Dispatcher instead of delegating to an imported driver.
//
// The method set (Insert, Update, UpdateAll, Upsert, Remove, RemoveAll,
// Unordered, Run) is grounded directly on globalsign/mgo's ModernBulk
// (modern_bulk.go), kept mgo-API-compatible so callers migrating off that
// driver see a familiar surface; everything below Run is new.
package mwrite

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/writecore/mwrite/dispatch"
	"github.com/writecore/mwrite/internal/transport"
	"github.com/writecore/mwrite/internal/wbuffer"
	"github.com/writecore/mwrite/internal/wlog"
	"github.com/writecore/mwrite/internal/writeconcern"
)

// Result is the finalized, user-facing outcome of running a Bulk, already
// merged (by mergeResultDocs) across every sub-buffer the Bulk executed.
type Result struct {
	Doc bson.D
	OK  bool
}

// Bulk accumulates a sequence of insert/update/delete operations — possibly
// interleaved, mgo-style — and executes them as one or more CommandBuffer
// runs. Consecutive same-kind operations share one CommandBuffer so they
// can be split and sent together; a kind change starts a new buffer, the
// same way real bulk-write APIs group consecutive same-type operations.
// Deletes also start a new buffer when switching between Remove and
// RemoveAll, since a delete buffer's Multi flag covers all its selectors.
type Bulk struct {
	db, coll string
	wc       *writeconcern.WriteConcern
	ordered  bool

	runs []*wbuffer.Buffer
}

// NewBulk constructs an empty, ordered Bulk against db.coll.
func NewBulk(db, coll string, wc *writeconcern.WriteConcern) *Bulk {
	return &Bulk{db: db, coll: coll, wc: wc, ordered: true}
}

// Unordered puts the bulk operation in unordered mode (mgo API compatible).
// Must be called before any operations are queued, matching mgo's
// documented behavior.
func (b *Bulk) Unordered() {
	b.ordered = false
}

func (b *Bulk) lastRun(kind wbuffer.Kind) *wbuffer.Buffer {
	if len(b.runs) > 0 {
		last := b.runs[len(b.runs)-1]
		if last.Kind == kind {
			return last
		}
	}
	return nil
}

// Insert queues up documents for insertion (mgo API compatible).
func (b *Bulk) Insert(docs ...interface{}) error {
	if run := b.lastRun(wbuffer.KindInsert); run != nil {
		return run.AppendInsert(docs...)
	}
	run, err := wbuffer.NewInsert(b.ordered, true, docs...)
	if err != nil {
		return err
	}
	b.runs = append(b.runs, run)
	return nil
}

func (b *Bulk) queueUpdate(q, u interface{}, upsert, multi bool) {
	run := b.lastRun(wbuffer.KindUpdate)
	if run == nil {
		run = wbuffer.NewUpdate(b.ordered, nil, nil, false, false)
		b.runs = append(b.runs, run)
	}
	run.AppendUpdate(q, u, upsert, multi)
}

// Update queues up pairs of updating instructions (mgo API compatible).
// Each pair matches exactly one document for updating at most.
func (b *Bulk) Update(pairs ...interface{}) {
	forEachPair(pairs, func(q, u interface{}) {
		b.queueUpdate(q, u, false, false)
	})
}

// UpdateAll queues up pairs of updating instructions (mgo API compatible).
// Each pair updates all documents matching the selector.
func (b *Bulk) UpdateAll(pairs ...interface{}) {
	forEachPair(pairs, func(q, u interface{}) {
		b.queueUpdate(q, u, false, true)
	})
}

// Upsert queues up pairs of upserting instructions (mgo API compatible).
func (b *Bulk) Upsert(pairs ...interface{}) {
	forEachPair(pairs, func(q, u interface{}) {
		b.queueUpdate(q, u, true, false)
	})
}

// Remove queues up selectors for removing a single matching document each
// (mgo API compatible).
func (b *Bulk) Remove(selectors ...interface{}) {
	b.queueDeletes(selectors, false)
}

// RemoveAll queues up selectors for removing all matching documents each
// (mgo API compatible).
func (b *Bulk) RemoveAll(selectors ...interface{}) {
	b.queueDeletes(selectors, true)
}

func (b *Bulk) queueDeletes(selectors []interface{}, multi bool) {
	for _, sel := range selectors {
		run := b.lastRun(wbuffer.KindDelete)
		if run == nil || run.Multi != multi {
			run = wbuffer.NewDelete(b.ordered, multi, nil)
			b.runs = append(b.runs, run)
		}
		run.AppendDelete(sel)
	}
}

func forEachPair(pairs []interface{}, fn func(q, u interface{})) {
	if len(pairs)%2 != 0 {
		panic("mwrite: bulk update/upsert requires an even number of parameters")
	}
	for i := 0; i < len(pairs); i += 2 {
		fn(pairs[i], pairs[i+1])
	}
}

// Run executes every queued run in order against tr, threading a running
// offset across runs so that every write error and upserted index in the
// combined Result refers to the position in the whole Bulk, not just its
// own run.
func (b *Bulk) Run(ctx context.Context, tr transport.Transport, hint transport.Hint, log *wlog.Logger) (*Result, error) {
	merged := bson.D{}
	ok := true
	var offset int32

	for _, run := range b.runs {
		out, runOK, err := dispatch.Execute(ctx, tr, run, dispatch.Options{
			DB:           b.db,
			Collection:   b.coll,
			WriteConcern: b.wc,
			Hint:         hint,
			Offset:       offset,
			Log:          log,
		})
		if err != nil {
			return &Result{Doc: merged, OK: false}, err
		}

		merged = mergeResultDocs(merged, out)
		ok = ok && runOK
		offset += int32(run.Count())

		if !runOK && run.Ordered {
			break
		}
	}

	return &Result{Doc: merged, OK: ok}, nil
}

// mergeResultDocs combines two finalized result documents field by field,
// summing counters and concatenating arrays, so a multi-run Bulk reports a
// single coherent result the way one CommandBuffer's Finalize would.
func mergeResultDocs(a, b bson.D) bson.D {
	if len(a) == 0 {
		return b
	}
	get := func(d bson.D, key string) (interface{}, bool) {
		for _, e := range d {
			if e.Key == key {
				return e.Value, true
			}
		}
		return nil, false
	}
	sumInt32 := func(key string) int32 {
		var total int32
		if v, ok := get(a, key); ok {
			total += toInt32Local(v)
		}
		if v, ok := get(b, key); ok {
			total += toInt32Local(v)
		}
		return total
	}
	concatArray := func(key string) bson.A {
		var out bson.A
		if v, ok := get(a, key); ok {
			if arr, ok := v.(bson.A); ok {
				out = append(out, arr...)
			}
		}
		if v, ok := get(b, key); ok {
			if arr, ok := v.(bson.A); ok {
				out = append(out, arr...)
			}
		}
		return out
	}

	out := bson.D{
		{Key: "nInserted", Value: sumInt32("nInserted")},
		{Key: "nMatched", Value: sumInt32("nMatched")},
	}
	if _, hasA := get(a, "nModified"); hasA {
		if _, hasB := get(b, "nModified"); hasB {
			out = append(out, bson.E{Key: "nModified", Value: sumInt32("nModified")})
		}
	}
	out = append(out,
		bson.E{Key: "nRemoved", Value: sumInt32("nRemoved")},
		bson.E{Key: "nUpserted", Value: sumInt32("nUpserted")},
	)
	if ups := concatArray("upserted"); len(ups) > 0 {
		out = append(out, bson.E{Key: "upserted", Value: ups})
	}
	out = append(out, bson.E{Key: "writeErrors", Value: concatArray("writeErrors")})
	if wce, ok := get(b, "writeConcernError"); ok {
		out = append(out, bson.E{Key: "writeConcernError", Value: wce})
	} else if wce, ok := get(a, "writeConcernError"); ok {
		out = append(out, bson.E{Key: "writeConcernError", Value: wce})
	}
	return out
}

func toInt32Local(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int64:
		return int32(n)
	case int:
		return int32(n)
	default:
		return 0
	}
}
