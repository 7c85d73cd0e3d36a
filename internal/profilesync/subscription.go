package profilesync

import (
	"context"
	"sync"
	"sync/atomic"

	"teachme/internal/models"
)

// ChildrenFunc receives the full current set of a parent's children, or the
// error that prevented loading it. Each call replaces the previous state.
type ChildrenFunc func(children []models.Child, err error)

// Subscription is a live feed of one parent's children. Unsubscribe must be
// called exactly once when the owner is done with it; cancelling the
// context passed to SubscribeToChildrenOf has the same effect.
type Subscription struct {
	parentID string
	load     func(ctx context.Context) ([]models.Child, error)
	onChange ChildrenFunc
	broker   *Broker

	ctx    context.Context
	cancel context.CancelFunc
	notify  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// deliverMu is held from the closed check through the callback, so
	// Unsubscribe can wait out a delivery in progress
	deliverMu  sync.Mutex
	closed     atomic.Bool
	inCallback atomic.Bool
}

func newSubscription(ctx context.Context, parentID string, broker *Broker,
	load func(ctx context.Context) ([]models.Child, error), onChange ChildrenFunc) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		parentID: parentID,
		load:     load,
		onChange: onChange,
		broker:   broker,
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// ParentID returns the parent whose children are observed
func (s *Subscription) ParentID() string {
	return s.parentID
}

// Done is closed once the subscription has been cancelled
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Stopped is closed once the subscription goroutine has exited, after any
// onChange call in progress has returned
func (s *Subscription) Stopped() <-chan struct{} {
	return s.stopped
}

// Unsubscribe stops the feed. When it returns, no new onChange call will
// start. It may be called from inside onChange. Called from another
// goroutine while onChange is running, it does not wait for that call to
// return; wait on Stopped for that.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.done)
		s.broker.unregister(s)

		if !s.inCallback.Load() {
			s.deliverMu.Lock()
			s.deliverMu.Unlock()
		}
	})
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run delivers an initial snapshot and then one snapshot per wake-up
func (s *Subscription) run() {
	defer close(s.stopped)
	s.deliver()
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		case <-s.notify:
			s.deliver()
		}
	}
}

func (s *Subscription) deliver() {
	if s.closed.Load() {
		return
	}
	children, err := s.load(s.ctx)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() || s.ctx.Err() != nil {
		return
	}

	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	s.onChange(children, err)
}
