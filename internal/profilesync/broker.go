package profilesync

import (
	"context"
	"sync"
)

// Notifier announces that the children of a parent changed
type Notifier interface {
	Publish(ctx context.Context, parentID string) error
}

// Broker fans change signals out to the subscriptions of this process,
// keyed by parent ID
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish signals local subscribers. It satisfies Notifier for
// single-instance deployments.
func (b *Broker) Publish(_ context.Context, parentID string) error {
	b.Notify(parentID)
	return nil
}

// Notify wakes every subscription for parentID. Signals coalesce, so a
// subscriber that is still delivering sees one reload for any number of
// changes.
func (b *Broker) Notify(parentID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[parentID] {
		s.signal()
	}
}

// Count returns the number of live subscriptions
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

func (b *Broker) register(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[s.parentID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[s.parentID] = set
	}
	set[s] = struct{}{}
	activeSubscriptions.Inc()
}

func (b *Broker) unregister(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[s.parentID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.parentID)
	}
	activeSubscriptions.Dec()
}
