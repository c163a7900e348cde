// Package memstore is an in-process store.Store with TTL leases, revisions
// and prefix watches. It behaves like a single-node etcd and is meant for
// tests and local development.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/store"
)

// Option configures a Store.
type Option func(*Store)

// WithTTLUnit sets the duration of one TTL unit (default: one second).
// Tests shrink it so that a lease of TTL 3 expires in milliseconds.
func WithTTLUnit(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.unit = d
		}
	}
}

type entry struct {
	value string
	lease store.LeaseID
}

type lease struct {
	id       store.LeaseID
	ttl      time.Duration
	deadline time.Time
	timer    *time.Timer
	keys     map[string]struct{}
}

// Store is the in-memory store. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	unit      time.Duration
	rev       int64
	nextLease store.LeaseID
	kvs       map[string]entry
	leases    map[store.LeaseID]*lease
	history   []store.Event
	watchers  map[*watcher]struct{}

	listErr error
	closed  bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		unit:     time.Second,
		kvs:      make(map[string]entry),
		leases:   make(map[store.LeaseID]*lease),
		watchers: make(map[*watcher]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Put(_ context.Context, key, value string, id store.LeaseID) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	var l *lease
	if id != store.NoLease {
		var ok bool
		if l, ok = s.leases[id]; !ok {
			return fmt.Errorf("%w: %d", store.ErrLeaseNotFound, id)
		}
	}

	prev, existed := s.kvs[key]
	if existed && prev.lease != id {
		if old, ok := s.leases[prev.lease]; ok {
			delete(old.keys, key)
		}
	}
	if l != nil {
		l.keys[key] = struct{}{}
	}

	s.rev++
	s.kvs[key] = entry{value: value, lease: id}
	s.publish(store.Event{
		Type:      store.EventPut,
		Key:       key,
		Value:     value,
		PrevValue: prev.value,
		Revision:  s.rev,
	})
	return nil
}

// Delete removes a key explicitly. It reports whether the key existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrClosed
	}
	e, ok := s.kvs[key]
	if !ok {
		return false, nil
	}
	if l, ok := s.leases[e.lease]; ok {
		delete(l.keys, key)
	}

	s.rev++
	delete(s.kvs, key)
	s.publish(store.Event{Type: store.EventDelete, Key: key, PrevValue: e.value, Revision: s.rev})
	return true, nil
}

// Get returns the current value of key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.kvs[key]
	return e.value, ok
}

func (s *Store) List(_ context.Context, prefix string) (*store.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	if err := s.listErr; err != nil {
		s.listErr = nil
		return nil, err
	}

	res := &store.ListResult{Revision: s.rev}
	for k, e := range s.kvs {
		if strings.HasPrefix(k, prefix) {
			res.KVs = append(res.KVs, store.KeyValue{Key: k, Value: e.value})
		}
	}
	sort.Slice(res.KVs, func(i, j int) bool { return res.KVs[i].Key < res.KVs[j].Key })
	return res, nil
}

// FailNextList makes the next List call return err.
func (s *Store) FailNextList(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func (s *Store) Watch(ctx context.Context, prefix string, fromRev int64) store.WatchChan {
	w := newWatcher(ctx, prefix)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.terminate(nil)
		go w.run(s)
		return w.out
	}
	if fromRev > 0 {
		var replay []store.Event
		for _, ev := range s.history {
			if ev.Revision >= fromRev && strings.HasPrefix(ev.Key, prefix) {
				replay = append(replay, ev)
			}
		}
		if len(replay) > 0 {
			w.enqueue(store.WatchResponse{Events: replay})
		}
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go w.run(s)
	return w.out
}

// BreakWatches delivers err to every open watch and then closes their
// channels, like an etcd watch cancelled by the server.
func (s *Store) BreakWatches(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for w := range s.watchers {
		w.terminate(err)
		delete(s.watchers, w)
	}
}

// Watchers returns the number of open watches.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Store) Grant(_ context.Context, ttl int64) (store.LeaseID, error) {
	if ttl <= 0 {
		return store.NoLease, fmt.Errorf("memstore: invalid ttl %d", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.NoLease, store.ErrClosed
	}

	s.nextLease++
	l := &lease{
		id:   s.nextLease,
		ttl:  time.Duration(ttl) * s.unit,
		keys: make(map[string]struct{}),
	}
	l.deadline = time.Now().Add(l.ttl)
	id := l.id
	l.timer = time.AfterFunc(l.ttl, func() { s.expire(id) })
	s.leases[id] = l
	return id, nil
}

// KeepAlive renews the lease every third of its TTL until ctx is done.
func (s *Store) KeepAlive(ctx context.Context, id store.LeaseID) (<-chan store.KeepAliveResponse, error) {
	s.mu.Lock()
	l, ok := s.leases[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", store.ErrLeaseNotFound, id)
	}
	interval := l.ttl / 3
	s.mu.Unlock()

	out := make(chan store.KeepAliveResponse, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			ttl, ok := s.renew(id)
			if !ok {
				return
			}
			select {
			case out <- store.KeepAliveResponse{ID: id, TTL: ttl}:
			default:
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (s *Store) renew(id store.LeaseID) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok || s.closed {
		return 0, false
	}
	l.deadline = time.Now().Add(l.ttl)
	l.timer.Reset(l.ttl)
	return int64(l.ttl / s.unit), true
}

func (s *Store) Revoke(_ context.Context, id store.LeaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrLeaseNotFound, id)
	}
	l.timer.Stop()
	s.dropLease(l)
	return nil
}

// expire runs on the lease timer. A renewal that raced with the timer has
// already pushed the deadline forward, in which case the timer is re-armed.
func (s *Store) expire(id store.LeaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok {
		return
	}
	if remaining := time.Until(l.deadline); remaining > 0 {
		l.timer.Reset(remaining)
		return
	}
	s.dropLease(l)
}

// dropLease deletes the lease and its keys in a single revision.
// Caller holds s.mu.
func (s *Store) dropLease(l *lease) {
	delete(s.leases, l.id)
	if len(l.keys) == 0 {
		return
	}

	keys := make([]string, 0, len(l.keys))
	for k := range l.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.rev++
	events := make([]store.Event, 0, len(keys))
	for _, k := range keys {
		e := s.kvs[k]
		delete(s.kvs, k)
		events = append(events, store.Event{Type: store.EventDelete, Key: k, PrevValue: e.value, Revision: s.rev})
	}
	s.publish(events...)
}

// publish records events and fans them out. Caller holds s.mu.
func (s *Store) publish(events ...store.Event) {
	s.history = append(s.history, events...)
	for w := range s.watchers {
		var matched []store.Event
		for _, ev := range events {
			if strings.HasPrefix(ev.Key, w.prefix) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			w.enqueue(store.WatchResponse{Events: matched})
		}
	}
}

func (s *Store) forget(w *watcher) {
	s.mu.Lock()
	delete(s.watchers, w)
	s.mu.Unlock()
}

// Close stops every lease timer and closes every watch.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, l := range s.leases {
		l.timer.Stop()
	}
	for w := range s.watchers {
		w.terminate(nil)
		delete(s.watchers, w)
	}
	return nil
}
