// Package stream implements an in-process engine for persistent,
// immutable, strictly-ordered, append-only typed event logs with live
// fan-out to many concurrent subscribers.
//
// A Stream serializes publication under a single mutex, maintains the
// monotonically increasing (index, timestamp, head) cursor, wakes
// subscriber goroutines through a condition-variable-style Notifier with
// cooperative cancellation, enforces single-producer authority via a
// transferable Publisher handle, and exposes the same subscriber
// abstraction over HTTP as a long-lived chunked feed.
//
// Storage is delegated to a persist.Persister, constructed independently
// and passed to New; package stream never opens files or databases itself.
package stream
