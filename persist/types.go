// Package persist provides the append-only storage contract consumed by
// package stream, along with three concrete backends: an in-memory log, a
// newline-delimited-JSON file log, and a Pebble-backed log.
package persist

// IndexedTimestamp pairs a dense 0-based entry index with the microsecond
// timestamp assigned to it at publish time.
type IndexedTimestamp struct {
	Index uint64
	Us    int64
}

// HeadAndLast is the atomic snapshot returned by Persister.HeadAndLast: the
// current head timestamp and, if any entry has been published, its idxts.
type HeadAndLast struct {
	Head int64
	Last *IndexedTimestamp
}

// Item is one entry as returned by Iterate, paired with its idxts.
type Item[E any] struct {
	IdxTs IndexedTimestamp
	Entry E
}

// Persister is the append-only storage contract behind a Stream.
//
// Publish and UpdateHead are documented as running under
// MutexLockStatus::AlreadyLocked in the original design: callers (package
// stream's Publisher) hold the stream's publish mutex around these calls, so
// implementations need not serialize writers against each other — but they
// must still make Size/CurrentHead/HeadAndLast/Iterate safe to call
// concurrently with an in-flight Publish/UpdateHead, since subscriber loops
// read without that lock.
type Persister[E any] interface {
	// Publish appends entry and returns its assigned idxts. If us is nil,
	// the persister assigns the current time, bumped forward if needed so
	// it is strictly greater than the last entry's timestamp. If us is
	// non-nil, it must be strictly greater than the last entry's timestamp
	// or Publish fails with ErrInconsistentTimestamp.
	Publish(entry E, us *int64) (IndexedTimestamp, error)

	// UpdateHead advances the head to max(head, us or now). If us is
	// non-nil and is less than the current head or not strictly greater
	// than the last entry's timestamp, it fails with
	// ErrInconsistentTimestamp.
	UpdateHead(us *int64) error

	// Size returns the number of published entries.
	Size() uint64

	// CurrentHead returns the current head timestamp in microseconds.
	CurrentHead() int64

	// HeadAndLast returns an atomic snapshot of head and the last entry.
	HeadAndLast() HeadAndLast

	// Iterate returns a restartable, lazy sequence over entries with
	// index in [begin, end), ordered by index. end == 0 means "current
	// size at iteration start".
	Iterate(begin, end uint64) func(yield func(Item[E]) bool)

	// IndexRangeByTimestampRange returns [beginIdx, endIdx) covering
	// entries with timestamp in [from, to). to == 0 means open-ended.
	IndexRangeByTimestampRange(from, to int64) (beginIdx, endIdx uint64)

	// Close releases any resources (file handles, database handles) held
	// by the persister. Safe to call once; subsequent calls are no-ops.
	Close() error
}
