package marquee

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ObserveOption configures Observe.
type ObserveOption func(*Subscription)

// SkipInitial suppresses the delivery of the current result.
func SkipInitial() ObserveOption {
	return func(sub *Subscription) { sub.skipInitial = true }
}

// OnScheduler delivers results on sched instead of the store's scheduler.
func OnScheduler(sched Scheduler) ObserveOption {
	return func(sub *Subscription) {
		if sched != nil {
			sub.scheduler = sched
		}
	}
}

// Subscription is a live view of one FetchSpec.
type Subscription struct {
	id          uint64
	store       *Store
	spec        FetchSpec
	fn          func([]Movie)
	scheduler   Scheduler
	skipInitial bool

	mu        sync.Mutex
	pending   bool
	canceled  bool
	delivered bool
	seen      uint64 // write sequence of the last delivered result
}

// Observe delivers the result of spec to fn, then delivers again after
// every committed change that can affect it. Changes committed before a
// queued re-execution starts are folded into it. Deliveries run on the
// store's scheduler unless OnScheduler is given.
func (s *Store) Observe(spec FetchSpec, fn func([]Movie), opts ...ObserveOption) *Subscription {
	sub := &Subscription{
		store:     s,
		spec:      spec,
		fn:        fn,
		scheduler: s.scheduler,
	}
	for _, opt := range opts {
		opt(sub)
	}

	s.bus.subscribe(sub)
	if !sub.skipInitial {
		sub.invalidate()
	}
	return sub
}

// Cancel detaches the subscription. No delivery starts after Cancel
// returns; one already running on the scheduler completes.
func (sub *Subscription) Cancel() {
	sub.mu.Lock()
	sub.canceled = true
	sub.mu.Unlock()
	sub.store.bus.unsubscribe(sub)
}

func (sub *Subscription) invalidate() {
	sub.mu.Lock()
	if sub.canceled || sub.pending {
		sub.mu.Unlock()
		return
	}
	sub.pending = true
	sub.mu.Unlock()

	sub.scheduler.Schedule(sub.deliver)
}

func (sub *Subscription) deliver() {
	sub.mu.Lock()
	if sub.canceled {
		sub.mu.Unlock()
		return
	}
	sub.pending = false
	sub.mu.Unlock()

	movies, seq, err := sub.store.execute(context.Background(), sub.spec)
	if err != nil {
		sub.store.logger.Warn("fetch failed", zap.Error(err))
		movies = []Movie{}
	}

	// A write that committed while this delivery waited for the read lock
	// publishes after it; its rows are already in movies.
	sub.mu.Lock()
	if sub.canceled || (sub.delivered && seq == sub.seen) {
		sub.mu.Unlock()
		return
	}
	sub.delivered = true
	sub.seen = seq
	sub.mu.Unlock()
	sub.fn(movies)
}

// changeBus fans committed changes out to subscriptions.
type changeBus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*Subscription
}

func newChangeBus() *changeBus {
	return &changeBus{subs: make(map[uint64]*Subscription)}
}

func (b *changeBus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub.id = b.next
	b.subs[sub.id] = sub
}

func (b *changeBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub.id)
}

func (b *changeBus) snapshot() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (b *changeBus) publish(c changes) {
	for _, sub := range b.snapshot() {
		if sub.spec.relevant(c) {
			sub.invalidate()
		}
	}
}

func (b *changeBus) cancelAll() {
	for _, sub := range b.snapshot() {
		sub.Cancel()
	}
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return len(s.bus.subs)
}
