package persist

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "sherlock/internal/storage/pebble"
)

// Pebble key layout for one entry's log, adapted from the teacher's
// internal/eventlog key scheme (ns/{ns}/log/{topic}/{part}/e/{seq}) down to
// the single-stream case this package serves:
//
//	{entry_name}/e/{index_be8}   entry records, ordered by index
//	{entry_name}/head           the current head timestamp (8 bytes BE)
var (
	entrySeg = []byte("/e/")
	headKey  = []byte("/head")
)

func pebbleEntryKey(name string, index uint64) []byte {
	k := make([]byte, 0, len(name)+len(entrySeg)+8)
	k = append(k, name...)
	k = append(k, entrySeg...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], index)
	return append(k, b[:]...)
}

func pebbleHeadKey(name string) []byte {
	k := make([]byte, 0, len(name)+len(headKey))
	k = append(k, name...)
	return append(k, headKey...)
}

type pebbleEntryValue[E any] struct {
	Us    int64 `json:"us"`
	Entry E     `json:"entry"`
}

// PebblePersister is an LSM-backed durable Persister, grounded on the
// teacher's internal/storage/pebble wrapper and internal/eventlog's key
// encoding convention. It is not named in spec.md but gives callers a
// production-grade durable backend alongside the file persister.
type PebblePersister[E any] struct {
	db   *pebblestore.DB
	name string

	mu      sync.Mutex
	size    uint64
	head    int64
	lastUs  int64
	closed  bool
	ownedDB bool

	now func() int64
}

// OpenPebblePersister opens (or creates) a Pebble database at dataDir and
// returns a Persister for entries stored under the given name (the stream's
// namespace/entry_name pair flattened to a single key prefix).
func OpenPebblePersister[E any](dataDir, name string, fsync FsyncMode) (*PebblePersister[E], error) {
	mode := pebblestore.FsyncModeAlways
	switch fsync {
	case FsyncInterval:
		mode = pebblestore.FsyncModeInterval
	case FsyncNever:
		mode = pebblestore.FsyncModeNever
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir, Fsync: mode})
	if err != nil {
		return nil, err
	}
	p, err := newPebblePersisterOnDB[E](db, name)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.ownedDB = true
	return p, nil
}

func newPebblePersisterOnDB[E any](db *pebblestore.DB, name string) (*PebblePersister[E], error) {
	p := &PebblePersister[E]{db: db, name: name, now: defaultClockMicros}
	if err := p.loadState(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PebblePersister[E]) loadState() error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: pebbleEntryKey(p.name, 0),
		UpperBound: pebbleEntryKey(p.name, ^uint64(0)),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Last(); it.Valid(); {
		key := it.Key()
		idx := binary.BigEndian.Uint64(key[len(key)-8:])
		p.size = idx + 1
		var v pebbleEntryValue[E]
		if err := json.Unmarshal(it.Value(), &v); err == nil {
			p.lastUs = v.Us
		}
		break
	}
	if v, err := p.db.Get(pebbleHeadKey(p.name)); err == nil && len(v) == 8 {
		p.head = int64(binary.BigEndian.Uint64(v))
	}
	return nil
}

func (p *PebblePersister[E]) Publish(entry E, us *int64) (IndexedTimestamp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return IndexedTimestamp{}, ErrClosed
	}
	var assigned int64
	if us == nil {
		assigned = p.now()
		if assigned <= p.lastUs {
			assigned = p.lastUs + 1
		}
	} else {
		if *us <= p.lastUs {
			return IndexedTimestamp{}, ErrInconsistentTimestamp
		}
		assigned = *us
	}
	idx := p.size
	val, err := json.Marshal(pebbleEntryValue[E]{Us: assigned, Entry: entry})
	if err != nil {
		return IndexedTimestamp{}, err
	}
	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(pebbleEntryKey(p.name, idx), val, nil); err != nil {
		return IndexedTimestamp{}, err
	}
	if assigned > p.head {
		var hb [8]byte
		binary.BigEndian.PutUint64(hb[:], uint64(assigned))
		if err := b.Set(pebbleHeadKey(p.name), hb[:], nil); err != nil {
			return IndexedTimestamp{}, err
		}
	}
	if err := p.db.CommitBatch(context.Background(), b); err != nil {
		return IndexedTimestamp{}, err
	}
	p.size = idx + 1
	p.lastUs = assigned
	if assigned > p.head {
		p.head = assigned
	}
	return IndexedTimestamp{Index: idx, Us: assigned}, nil
}

func (p *PebblePersister[E]) UpdateHead(us *int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	var candidate int64
	if us == nil {
		candidate = p.now()
	} else {
		candidate = *us
		if candidate < p.head || candidate <= p.lastUs {
			return ErrInconsistentTimestamp
		}
	}
	if candidate <= p.head {
		return nil
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], uint64(candidate))
	if err := p.db.Set(pebbleHeadKey(p.name), hb[:]); err != nil {
		return err
	}
	p.head = candidate
	return nil
}

func (p *PebblePersister[E]) Size() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *PebblePersister[E]) CurrentHead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

func (p *PebblePersister[E]) HeadAndLast() HeadAndLast {
	p.mu.Lock()
	defer p.mu.Unlock()
	hl := HeadAndLast{Head: p.head}
	if p.size > 0 {
		last := IndexedTimestamp{Index: p.size - 1, Us: p.lastUs}
		hl.Last = &last
	}
	return hl
}

func (p *PebblePersister[E]) Iterate(begin, end uint64) func(yield func(Item[E]) bool) {
	return func(yield func(Item[E]) bool) {
		p.mu.Lock()
		size := p.size
		p.mu.Unlock()
		e := end
		if e == 0 || e > size {
			e = size
		}
		if begin >= e {
			return
		}
		it, err := p.db.NewIter(&pebble.IterOptions{
			LowerBound: pebbleEntryKey(p.name, begin),
			UpperBound: pebbleEntryKey(p.name, e),
		})
		if err != nil {
			return
		}
		defer it.Close()
		for ok := it.First(); ok; ok = it.Next() {
			key := it.Key()
			idx := binary.BigEndian.Uint64(key[len(key)-8:])
			var v pebbleEntryValue[E]
			if err := json.Unmarshal(it.Value(), &v); err != nil {
				return
			}
			if !yield(Item[E]{IdxTs: IndexedTimestamp{Index: idx, Us: v.Us}, Entry: v.Entry}) {
				return
			}
		}
	}
}

func (p *PebblePersister[E]) IndexRangeByTimestampRange(from, to int64) (uint64, uint64) {
	p.mu.Lock()
	size := p.size
	p.mu.Unlock()
	begin := size
	end := size
	found := false
	stopped := false
	p.Iterate(0, size)(func(it Item[E]) bool {
		if !found && it.IdxTs.Us >= from {
			begin = it.IdxTs.Index
			found = true
		}
		if to != 0 && it.IdxTs.Us >= to {
			end = it.IdxTs.Index
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return begin, end
	}
	if !found {
		begin = size
	}
	return begin, size
}

func (p *PebblePersister[E]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ownedDB {
		return p.db.Close()
	}
	return nil
}
