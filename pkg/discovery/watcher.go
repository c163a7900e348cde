// Package discovery keeps a live view of the instances registered under a
// base path and reports every change to an Observer.
//
// A Watcher lists the base path once, replays each pair as OnPut before its
// constructor returns, and then follows the store's change feed from the
// revision right after that listing.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/store"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/cenkalti/backoff/v5"
)

var (
	ErrNilStore      = errors.New("discovery: store is nil")
	ErrNilObserver   = errors.New("discovery: observer is nil")
	ErrEmptyBasePath = errors.New("discovery: base path is empty")
)

const timeout = 3 * time.Second

// Option configures a Watcher.
type Option func(*Watcher)

// WithReconnect re-establishes the watch after the change feed ends, with
// exponential backoff. Each reconnection re-lists the base path and reports
// the difference from the last known view before resuming the feed.
// Without it a Watcher stops delivering once its feed ends.
func WithReconnect() Option {
	return func(w *Watcher) { w.reconnect = true }
}

// WithReconnectBackoff sets the first and the largest delay between
// reconnection attempts.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(w *Watcher) {
		if initial > 0 {
			w.initialBackoff = initial
		}
		if max > 0 {
			w.maxBackoff = max
		}
	}
}

// WithMetrics counts received events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// Watcher follows one base path.
type Watcher struct {
	log      *xlog.Logger
	store    store.Store
	basePath string
	obs      Observer
	metrics  *metrics.Metrics

	reconnect      bool
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu   sync.RWMutex
	view map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWatcher bootstraps the view and starts following changes. A failed
// listing is logged and the watcher starts with an empty view. Errors are
// returned only for invalid arguments.
func NewWatcher(ctx context.Context, log *xlog.Logger, st store.Store, basePath string, obs Observer, opts ...Option) (*Watcher, error) {
	switch {
	case st == nil:
		return nil, ErrNilStore
	case basePath == "":
		return nil, ErrEmptyBasePath
	case obs == nil:
		return nil, ErrNilObserver
	}
	if log == nil {
		log = xlog.Nop()
	}

	w := &Watcher{
		log:            log.With("component", "watcher", "basePath", basePath),
		store:          st,
		basePath:       basePath,
		obs:            obs,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		view:           make(map[string]string),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))

	var fromRev int64
	if res, err := w.list(ctx); err != nil {
		w.log.Error("failed to list instances, starting with an empty view", "error", err)
	} else {
		for _, kv := range res.KVs {
			w.put(kv.Key, kv.Value, "")
		}
		fromRev = res.Revision + 1
		w.log.Info("bootstrap done", "instances", len(res.KVs), "revision", res.Revision)
	}

	ch := st.Watch(w.ctx, basePath, fromRev)
	go w.run(ch)
	return w, nil
}

// Snapshot returns a copy of the known key/value pairs.
func (w *Watcher) Snapshot() map[string]string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]string, len(w.view))
	for k, v := range w.view {
		out[k] = v
	}
	return out
}

// Close cancels the watch and waits for the delivery goroutine to exit.
// No observer call happens after Close returns.
func (w *Watcher) Close() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
		w.log.Info("watcher closed")
	})
}

func (w *Watcher) list(ctx context.Context) (*store.ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.store.List(ctx, w.basePath)
}

func (w *Watcher) run(ch store.WatchChan) {
	defer close(w.done)

	for {
		w.consume(ch)
		if w.ctx.Err() != nil {
			return
		}
		if !w.reconnect {
			w.log.Warn("watch stream ended, view is no longer updated")
			return
		}

		w.log.Warn("watch stream ended, reconnecting")
		var err error
		if ch, err = w.resync(); err != nil {
			return
		}
	}
}

// consume delivers events until the stream closes or the watcher is closed.
func (w *Watcher) consume(ch store.WatchChan) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				return
			}
			if resp.Err != nil {
				w.log.Error("watch error, dropped", "error", resp.Err)
				w.metrics.ObserveWatchEvent("error")
				continue
			}
			for _, ev := range resp.Events {
				if w.ctx.Err() != nil {
					return
				}
				w.metrics.ObserveWatchEvent(ev.Type.String())
				switch ev.Type {
				case store.EventPut:
					w.put(ev.Key, ev.Value, ev.PrevValue)
				case store.EventDelete:
					w.delete(ev.Key, ev.PrevValue)
				default:
					w.log.Warn("unknown event type", "type", int(ev.Type), "key", ev.Key)
				}
			}
		}
	}
}

// put records value for key. When the key already held a different value,
// the old one is reported deleted first so observers never keep it.
func (w *Watcher) put(key, value, prev string) {
	w.mu.Lock()
	if old, ok := w.view[key]; ok {
		prev = old
	}
	w.view[key] = value
	w.mu.Unlock()

	if prev != "" && prev != value {
		w.log.Debug("instance moved", "key", key, "from", prev, "to", value)
		w.obs.OnDelete(key, prev)
	}
	w.log.Debug("instance put", "key", key, "value", value)
	w.obs.OnPut(key, value)
}

// delete falls back to the last known value when the event carries none.
func (w *Watcher) delete(key, prev string) {
	w.mu.Lock()
	if prev == "" {
		prev = w.view[key]
	}
	delete(w.view, key)
	w.mu.Unlock()

	w.log.Debug("instance deleted", "key", key, "value", prev)
	w.obs.OnDelete(key, prev)
}

// resync re-lists the base path with backoff, reports the difference from
// the current view and opens a new watch after the listing revision.
func (w *Watcher) resync() (store.WatchChan, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialBackoff
	b.MaxInterval = w.maxBackoff

	res, err := backoff.Retry(w.ctx, func() (*store.ListResult, error) {
		return w.list(w.ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.log.Warn("failed to relist instances", "error", err, "retryIn", next)
		}),
	)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]string, len(res.KVs))
	for _, kv := range res.KVs {
		fresh[kv.Key] = kv.Value
	}

	for k, v := range w.Snapshot() {
		if _, ok := fresh[k]; !ok {
			w.delete(k, v)
		}
	}
	for _, kv := range res.KVs {
		w.mu.RLock()
		old, ok := w.view[kv.Key]
		w.mu.RUnlock()
		if !ok || old != kv.Value {
			w.put(kv.Key, kv.Value, "")
		}
	}

	w.log.Info("watch re-established", "instances", len(res.KVs), "revision", res.Revision)
	return w.store.Watch(w.ctx, w.basePath, res.Revision+1), nil
}
