package persist

import "errors"

// ErrInconsistentTimestamp is returned by Publish or UpdateHead when the
// caller-supplied timestamp violates the persister's monotonicity
// invariant (I1/I2): every published entry's timestamp must be strictly
// greater than the previous one, and the head must never move backward or
// below the last entry's timestamp.
var ErrInconsistentTimestamp = errors.New("persist: inconsistent timestamp")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("persist: persister is closed")
