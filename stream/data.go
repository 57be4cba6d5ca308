package stream

import (
	"sync"
	"sync/atomic"

	"sherlock/persist"
	"sherlock/pkg/log"
)

// streamData is the shared per-stream state described by spec.md's
// StreamData: the persister, the publish mutex that serializes all
// writer-observable state changes, the notifier, the HTTP subscription
// registry, the schema descriptor, and the namespace name.
//
// Go's garbage collector makes the source's weak-co-ownership/reference-
// counting machinery unnecessary: every SubscriberScope and HTTP
// subscription simply holds a *streamData pointer, and it is kept alive
// for as long as any of them runs. The destruction barrier (spec.md I5)
// is instead modeled directly as beginShutdown + waitSubscribers below —
// cancel every registered waiter, then block until their goroutines exit.
type streamData[E any] struct {
	persister persist.Persister[E]
	mu        sync.Mutex // publish_mutex
	notifier  *Notifier
	schema    SchemaDescriptor
	namespace NamespaceName
	logger    log.Logger

	httpMu   sync.Mutex
	httpSubs map[string]*httpSubscription

	terminating atomic.Bool
	subsMu      sync.Mutex
	subs        map[*TerminateFlag]struct{}
	wg          sync.WaitGroup
}

type httpSubscription struct {
	scope *SubscriberScope
}

func newStreamData[E any](p persist.Persister[E], ns NamespaceName, logger log.Logger) *streamData[E] {
	if logger == nil {
		logger = log.NewLogger().With(log.Component("stream"))
	}
	d := &streamData[E]{
		persister: p,
		namespace: ns,
		schema:    computeSchema[E](),
		httpSubs:  make(map[string]*httpSubscription),
		subs:      make(map[*TerminateFlag]struct{}),
		logger:    logger,
	}
	d.notifier = NewNotifier(&d.mu)
	return d
}

func (d *streamData[E]) registerSubscriber(f *TerminateFlag) {
	d.subsMu.Lock()
	d.subs[f] = struct{}{}
	d.subsMu.Unlock()
}

func (d *streamData[E]) unregisterSubscriber(f *TerminateFlag) {
	d.subsMu.Lock()
	delete(d.subs, f)
	d.subsMu.Unlock()
}

// beginShutdown trips the destruction barrier: marks the stream as
// terminating (so new Publish/Subscribe/ServeHTTP calls fail fast) and
// cancels every subscriber loop currently registered.
func (d *streamData[E]) beginShutdown() {
	d.terminating.Store(true)
	d.subsMu.Lock()
	flags := make([]*TerminateFlag, 0, len(d.subs))
	for f := range d.subs {
		flags = append(flags, f)
	}
	d.subsMu.Unlock()
	d.logger.Info("stream shutting down", log.Int("subscribers", len(flags)), log.Str("namespace", d.namespace.Namespace))
	for _, f := range flags {
		d.notifier.Cancel(f)
	}
}

func (d *streamData[E]) waitSubscribers() {
	d.wg.Wait()
}
