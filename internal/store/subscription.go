package store

import (
	"context"
	"sync"
)

// delivery serializes a subscription's callbacks so that Cancel can wait out
// one already running. No callback starts after stop returns.
type delivery struct {
	mu       sync.Mutex
	stopped  bool
	onChange func([]Document)
	onError  func(error)
}

func newDelivery(onChange func([]Document), onError func(error)) *delivery {
	return &delivery{onChange: onChange, onError: onError}
}

func (d *delivery) change(docs []Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped && d.onChange != nil {
		d.onChange(docs)
	}
}

func (d *delivery) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped && d.onError != nil {
		d.onError(err)
	}
}

func (d *delivery) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// cancelSubscription backs the subscriptions driven by a context-bound
// listener goroutine.
type cancelSubscription struct {
	cancel   context.CancelFunc
	delivery *delivery
	once     sync.Once
}

func (s *cancelSubscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.delivery.stop()
	})
}
