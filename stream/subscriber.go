package stream

import (
	"sync/atomic"

	"sherlock/persist"
	"sherlock/pkg/log"
)

// SubscriberScope owns a subscriber's worker goroutine. Constructing one
// via Stream.Subscribe starts the goroutine immediately; AsyncTerminate
// requests cooperative shutdown from any goroutine, and Wait/Close block
// until the worker has exited. The zero value is not usable; scopes are
// only produced by Subscribe.
type SubscriberScope struct {
	asyncTerminate func()
	done           chan struct{}
	requested      boolFlag
}

// AsyncTerminate requests cooperative termination without blocking for the
// worker to exit. Idempotent and safe to call from any goroutine.
func (s *SubscriberScope) AsyncTerminate() {
	if s.requested.set() {
		s.asyncTerminate()
	}
}

// Wait blocks until the subscriber's worker goroutine has exited.
func (s *SubscriberScope) Wait() {
	<-s.done
}

// Close requests termination and waits for the worker to exit, combining
// AsyncTerminate and Wait — the drop-time behavior spec.md §4.5 describes.
func (s *SubscriberScope) Close() {
	s.AsyncTerminate()
	s.Wait()
}

// boolFlag is a tiny CAS-once latch: set reports true only for the first
// caller, even when several goroutines call it concurrently.
type boolFlag struct{ v atomic.Uint32 }

func (f *boolFlag) set() bool {
	return f.v.CompareAndSwap(0, 1)
}

func subscribe[E any](d *streamData[E], sub Subscriber[E], beginIdx uint64, filter TypeFilter, doneCallback func()) *SubscriberScope {
	if filter == nil {
		filter = MatchAll
	}
	flag := &TerminateFlag{}
	done := make(chan struct{})
	scope := &SubscriberScope{
		asyncTerminate: func() { d.notifier.Cancel(flag) },
		done:           done,
	}

	d.registerSubscriber(flag)
	d.logger.Debug("subscriber started", log.Any("begin_index", beginIdx))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(done)
		defer d.unregisterSubscriber(flag)
		if doneCallback != nil {
			defer doneCallback()
		}
		runSubscriberLoop(d, sub, beginIdx, filter, flag)
		d.logger.Debug("subscriber exited", log.Any("begin_index", beginIdx))
	}()
	return scope
}

// runSubscriberLoop is the per-subscriber state machine from spec.md §4.4,
// translated line-by-line from the source's ThreadImpl: snapshot
// head-and-last, deliver any newly visible entries through the type
// filter, deliver a head-only advance if one occurred, then block on the
// notifier when caught up.
func runSubscriberLoop[E any](d *streamData[E], sub Subscriber[E], beginIdx uint64, filter TypeFilter, flag *TerminateFlag) {
	nextIndex := beginIdx
	var observedHead int64
	terminateDispatched := false

	dispatchTerminate := func() bool {
		if flag.IsSet() && !terminateDispatched {
			if sub.OnTerminate() == Terminate {
				return true
			}
			terminateDispatched = true
		}
		return false
	}

	for {
		if dispatchTerminate() {
			return
		}

		hl := d.persister.HeadAndLast()
		var size uint64
		if hl.Last != nil {
			size = hl.Last.Index + 1
		}

		if hl.Head > observedHead {
			if size > nextIndex {
				var last persist.IndexedTimestamp
				if hl.Last != nil {
					last = *hl.Last
				}
				exit := false
				terminated := false
				d.persister.Iterate(nextIndex, size)(func(it persist.Item[E]) bool {
					if dispatchTerminate() {
						terminated = true
						return false
					}
					var action Action
					if filter(it.Entry) {
						action = sub.OnEntry(it.Entry, it.IdxTs, last)
					} else {
						action = sub.OnNoMatch(it.IdxTs)
					}
					if action == Done {
						exit = true
						return false
					}
					return true
				})
				if terminated {
					return
				}
				if exit {
					return
				}
				nextIndex = size
				observedHead = last.Us
			}
			if size > beginIdx && hl.Head > observedHead {
				if sub.OnHeadAdvance(hl.Head) == Done {
					return
				}
			}
			observedHead = hl.Head
			continue
		}

		d.mu.Lock()
		predicate := func() bool {
			hl2 := d.persister.HeadAndLast()
			var size2 uint64
			if hl2.Last != nil {
				size2 = hl2.Last.Index + 1
			}
			return size2 > nextIndex || (nextIndex > beginIdx && d.persister.CurrentHead() > observedHead)
		}
		d.notifier.WaitUntil(flag, predicate)
		d.mu.Unlock()
	}
}
