// Package live pushes full result-set snapshots to subscribers whenever the
// underlying documents change.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("feed closed")

// reloadTimeout bounds a reload triggered by a write. The reload outlives the
// writer's context, since the write has already committed.
const reloadTimeout = 10 * time.Second

// Loader fetches the current result set for a key.
type Loader[T any] func(ctx context.Context, key string) (T, error)

// Feed fans out snapshots per key. Each subscriber holds at most one pending
// snapshot; a newer one replaces an undelivered older one, so slow consumers
// only ever see the latest state.
type Feed[T any] struct {
	load   Loader[T]
	logger *slog.Logger

	// notifyMu orders every load+publish, including the initial load in
	// Subscribe, so an older load never overwrites a newer one and no write
	// slips between a subscriber's first load and its registration.
	notifyMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]map[*Subscription[T]]struct{}
	closed bool
}

func NewFeed[T any](load Loader[T], logger *slog.Logger) *Feed[T] {
	return &Feed[T]{
		load:   load,
		logger: logger,
		subs:   make(map[string]map[*Subscription[T]]struct{}),
	}
}

// Subscription receives snapshots on C until Close is called.
type Subscription[T any] struct {
	feed *Feed[T]
	key  string
	ch   chan T
	once sync.Once

	// stale is set when a reload for key failed after a write, so the
	// last snapshot delivered may be missing committed changes.
	stale atomic.Bool
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()
		if set, ok := s.feed.subs[s.key]; ok {
			if _, ok := set[s]; ok {
				delete(set, s)
				close(s.ch)
			}
			if len(set) == 0 {
				delete(s.feed.subs, s.key)
			}
		}
	})
}

// Stale reports whether a reload failed since the last snapshot was queued.
// Call Resync before trusting the snapshot again.
func (s *Subscription[T]) Stale() bool {
	return s.stale.Load()
}

// Resync reloads the key and queues the result for every subscriber of it.
func (s *Subscription[T]) Resync(ctx context.Context) error {
	s.feed.notifyMu.Lock()
	defer s.feed.notifyMu.Unlock()
	return s.feed.reload(ctx, s.key)
}

// Subscribe registers for key and queues the current snapshot before returning.
func (f *Feed[T]) Subscribe(ctx context.Context, key string) (*Subscription[T], error) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	snap, err := f.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load initial snapshot: %w", err)
	}

	sub := &Subscription[T]{feed: f, key: key, ch: make(chan T, 1)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := f.subs[key]
	if !ok {
		set = make(map[*Subscription[T]]struct{})
		f.subs[key] = set
	}
	set[sub] = struct{}{}
	sub.ch <- snap
	f.mu.Unlock()

	return sub, nil
}

// Notify reloads the snapshot for key and delivers it to every subscriber of
// that key. Keys with no subscribers are not loaded. Cancelling ctx does not
// abort the reload. If the reload fails, the key's subscribers are marked
// stale until a later reload succeeds.
func (f *Feed[T]) Notify(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
	defer cancel()

	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	if err := f.reload(ctx, key); err != nil {
		f.logger.Error("reload snapshot", "key", key, "error", err)
	}
}

// reload loads key and publishes it. Caller holds notifyMu.
func (f *Feed[T]) reload(ctx context.Context, key string) error {
	if f.SubscriberCount(key) == 0 {
		return nil
	}
	snap, err := f.load(ctx, key)
	if err != nil {
		f.markStale(key)
		return err
	}
	f.publish(key, snap)
	return nil
}

func (f *Feed[T]) markStale(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[key] {
		sub.stale.Store(true)
	}
}

func (f *Feed[T]) publish(key string, snap T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs[key] {
		select {
		case sub.ch <- snap:
		default:
			// Drop the stale pending snapshot and replace it.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
		sub.stale.Store(false)
	}
}

// SubscriberCount returns the number of live subscriptions for key.
func (f *Feed[T]) SubscriberCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[key])
}

// Close ends every subscription and rejects new ones.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for key, set := range f.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(f.subs, key)
	}
}
