package stream

import (
	"net/http"
	"runtime"
	"sync"

	"sherlock/persist"
	"sherlock/pkg/id"
	"sherlock/pkg/log"
)

// Authority tracks whether a Stream currently owns its Publisher handle or
// has transferred it elsewhere, mirroring spec.md §4.3's publisher
// ownership transfer (MovePublisherTo / AcquirePublisher).
type Authority int

const (
	// AuthorityOwn means the Stream holds its own Publisher handle and
	// Publish/UpdateHead calls on the Stream succeed directly.
	AuthorityOwn Authority = iota
	// AuthorityExternal means the Publisher handle has been moved out;
	// Publish/UpdateHead on the Stream fail until it is reacquired.
	AuthorityExternal
)

// Stream is the facade over a persister and its live subscribers: a single
// writer capability (the Publisher, whose ownership can be transferred
// elsewhere), any number of concurrent Subscriber goroutines, and an HTTP
// endpoint exposing the same subscription model to remote peers. It
// corresponds to the source's Sherlock<E> combined with its StreamData.
type Stream[E any] struct {
	data  *streamData[E]
	idGen *id.Generator

	pubMu     sync.Mutex // publisher_mutex_, never nested under data.mu
	publisher *Publisher[E]
	authority Authority
}

// New constructs a Stream backed by persister, owning its own Publisher
// handle from the start. It logs through a default Logger tagged with
// component "stream"; use NewWithLogger to inject one instead.
func New[E any](persister persist.Persister[E], ns NamespaceName) *Stream[E] {
	return NewWithLogger[E](persister, ns, nil)
}

// NewWithLogger constructs a Stream like New, but logs through logger
// instead of a freshly constructed default.
func NewWithLogger[E any](persister persist.Persister[E], ns NamespaceName, logger log.Logger) *Stream[E] {
	d := newStreamData[E](persister, ns, logger)
	return &Stream[E]{
		data:      d,
		idGen:     id.NewGenerator(),
		publisher: newPublisher(d),
		authority: AuthorityOwn,
	}
}

// Publish appends entry via the Stream's own Publisher handle. It fails
// with ErrPublishToStreamWithReleasedPublisher if the handle has been
// moved elsewhere via MovePublisherTo.
func (s *Stream[E]) Publish(entry E, us ...int64) (persist.IndexedTimestamp, error) {
	s.pubMu.Lock()
	p := s.ownedPublisher()
	s.pubMu.Unlock()
	if p == nil {
		return persist.IndexedTimestamp{}, ErrPublishToStreamWithReleasedPublisher
	}
	return p.Publish(entry, us...)
}

// UpdateHead advances the head via the Stream's own Publisher handle.
func (s *Stream[E]) UpdateHead(us ...int64) error {
	s.pubMu.Lock()
	p := s.ownedPublisher()
	s.pubMu.Unlock()
	if p == nil {
		return ErrPublishToStreamWithReleasedPublisher
	}
	return p.UpdateHead(us...)
}

func (s *Stream[E]) ownedPublisher() *Publisher[E] {
	if s.authority != AuthorityOwn {
		return nil
	}
	return s.publisher
}

// MovePublisherTo releases the Stream's Publisher handle to the caller,
// who is now responsible for publishing (directly, or by acquiring it on
// another Stream). The Stream's own Publish/UpdateHead calls fail until a
// handle is reacquired with AcquirePublisher.
func (s *Stream[E]) MovePublisherTo() (*Publisher[E], error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.authority == AuthorityExternal || s.publisher == nil {
		return nil, ErrPublisherAlreadyReleased
	}
	p := s.publisher
	s.publisher = nil
	s.authority = AuthorityExternal
	return p, nil
}

// AcquirePublisher installs a previously-moved Publisher handle, restoring
// the Stream's own authority to publish. p must have been produced by this
// Stream's own MovePublisherTo; acquiring a foreign Stream's handle is a
// caller error not detected here, matching the source's trust model.
func (s *Stream[E]) AcquirePublisher(p *Publisher[E]) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.authority == AuthorityOwn && s.publisher != nil {
		return ErrPublisherAlreadyOwned
	}
	s.publisher = p
	s.authority = AuthorityOwn
	return nil
}

// Subscribe starts a new subscriber goroutine at beginIdx, delivering
// entries matching filter (MatchAll if nil) through sub until the
// returned SubscriberScope is closed, the subscriber requests Done, or the
// Stream begins graceful shutdown. doneCallback, if non-nil, runs once the
// worker goroutine has exited, before Wait/Close unblock.
func (s *Stream[E]) Subscribe(sub Subscriber[E], beginIdx uint64, filter TypeFilter, doneCallback func()) (*SubscriberScope, error) {
	if s.data.terminating.Load() {
		return nil, ErrStreamInGracefulShutdown
	}
	return subscribe[E](s.data, sub, beginIdx, filter, doneCallback), nil
}

// ServeHTTP exposes the Stream over the chunked-transfer HTTP protocol
// described by spec.md §4.6.
func (s *Stream[E]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveHTTP[E](s.data, s.idGen, s.data.namespace, w, r)
}

// Persister returns the underlying persister, for callers that need direct
// read access (e.g. administrative tooling) alongside the Stream.
func (s *Stream[E]) Persister() persist.Persister[E] { return s.data.persister }

// Schema returns the Stream's computed schema descriptor.
func (s *Stream[E]) Schema() SchemaDescriptor { return s.data.schema }

// Close performs the graceful shutdown sequence from spec.md §4.7:
// terminate every live HTTP subscription, wait for the HTTP registry to
// drain, trip the destruction barrier for all in-process subscribers, wait
// for their goroutines to exit, then close the persister.
func (s *Stream[E]) Close() error {
	d := s.data

	for {
		d.httpMu.Lock()
		n := len(d.httpSubs)
		if n == 0 {
			d.httpMu.Unlock()
			break
		}
		subs := make([]*httpSubscription, 0, n)
		for _, sub := range d.httpSubs {
			subs = append(subs, sub)
		}
		d.httpMu.Unlock()
		for _, sub := range subs {
			sub.scope.AsyncTerminate()
		}
		runtime.Gosched()
	}

	d.beginShutdown()
	d.waitSubscribers()
	err := d.persister.Close()
	if err != nil {
		d.logger.Error("persister close failed", log.Err(err))
	}
	return err
}
