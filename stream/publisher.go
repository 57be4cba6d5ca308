package stream

import "sherlock/persist"

// Publisher is the write capability for a stream's persister, serializing
// Publish and UpdateHead under the stream's publish mutex and notifying
// every subscriber after each successful state change, per spec.md §4.3.
type Publisher[E any] struct {
	data *streamData[E]
}

func newPublisher[E any](d *streamData[E]) *Publisher[E] {
	return &Publisher[E]{data: d}
}

// Publish appends entry under the stream's publish mutex. If us is
// supplied (at most one value), it is used as the entry's timestamp and
// must be strictly greater than the previous entry's; otherwise the
// persister auto-assigns one. Notifies every subscriber before returning.
func (p *Publisher[E]) Publish(entry E, us ...int64) (persist.IndexedTimestamp, error) {
	usPtr := optionalUs(us)
	d := p.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminating.Load() {
		return persist.IndexedTimestamp{}, ErrStreamInGracefulShutdown
	}
	idxts, err := d.persister.Publish(entry, usPtr)
	if err != nil {
		return persist.IndexedTimestamp{}, err
	}
	d.notifier.NotifyAllLocked()
	return idxts, nil
}

// UpdateHead advances the head to max(head, us or now) under the stream's
// publish mutex, notifying every subscriber on success.
func (p *Publisher[E]) UpdateHead(us ...int64) error {
	usPtr := optionalUs(us)
	d := p.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminating.Load() {
		return ErrStreamInGracefulShutdown
	}
	if err := d.persister.UpdateHead(usPtr); err != nil {
		return err
	}
	d.notifier.NotifyAllLocked()
	return nil
}

func optionalUs(us []int64) *int64 {
	if len(us) == 0 {
		return nil
	}
	v := us[0]
	return &v
}
