package stream

import "sherlock/persist"

// Action is the subscriber's instruction after handling an entry, a
// no-match notice, or a head-only advance.
type Action int

const (
	// Continue asks the subscriber loop to keep delivering.
	Continue Action = iota
	// Done asks the subscriber loop to exit.
	Done
)

// TerminateAction is the subscriber's response to a termination request.
type TerminateAction int

const (
	// Wait asks the loop to keep running (e.g. to drain in-flight work);
	// the termination signal remains set and is not re-dispatched.
	Wait TerminateAction = iota
	// Terminate asks the loop to exit immediately.
	Terminate
)

// Subscriber is the capability bundle the subscriber loop drives.
type Subscriber[E any] interface {
	// OnEntry delivers a typed entry matching the subscription's type
	// filter, along with its idxts and the stream's latest known idxts.
	OnEntry(entry E, idxts, last persist.IndexedTimestamp) Action

	// OnNoMatch is called for an entry whose runtime type (or content)
	// does not satisfy the subscription's filter, still in index order.
	OnNoMatch(idxts persist.IndexedTimestamp) Action

	// OnHeadAdvance delivers a head-only timestamp advance.
	OnHeadAdvance(head int64) Action

	// OnTerminate is called once a termination signal has been raised.
	// Wait keeps the loop running without re-dispatching the signal;
	// Terminate exits immediately.
	OnTerminate() TerminateAction
}

// Case is implemented by a concrete entry variant to name itself for
// TypeFilter dispatch, modeling a closed tagged-union the way the
// polymorphic-entries design note describes.
type Case interface {
	CaseName() string
}

// TypeFilter decides whether an entry (of the stream's EntryType) should be
// delivered via OnEntry (true) or reported via OnNoMatch (false).
type TypeFilter func(entry any) bool

// MatchAll accepts every entry; it is the default filter used when none is
// supplied to Subscribe.
func MatchAll(any) bool { return true }

// MatchCases builds a TypeFilter over a named subset of a Case-implementing
// entry type. An entry that does not implement Case never matches.
func MatchCases(cases ...Case) TypeFilter {
	names := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		names[c.CaseName()] = struct{}{}
	}
	return func(entry any) bool {
		c, ok := entry.(Case)
		if !ok {
			return false
		}
		_, matched := names[c.CaseName()]
		return matched
	}
}

// NamespaceName identifies a stream for schema and administrative purposes.
type NamespaceName struct {
	Namespace string
	EntryName string
}
