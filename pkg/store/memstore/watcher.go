package memstore

import (
	"context"
	"sync"

	"github.com/HorseArcher567/pathfinder/pkg/store"
)

// watcher buffers responses without bound so that publishing under the
// store lock never blocks on a slow consumer. Delivery order is preserved.
type watcher struct {
	ctx    context.Context
	prefix string
	out    chan store.WatchResponse
	notify chan struct{}

	mu    sync.Mutex
	queue []store.WatchResponse
	done  bool
}

func newWatcher(ctx context.Context, prefix string) *watcher {
	return &watcher{
		ctx:    ctx,
		prefix: prefix,
		out:    make(chan store.WatchResponse),
		notify: make(chan struct{}, 1),
	}
}

func (w *watcher) enqueue(resp store.WatchResponse) {
	w.mu.Lock()
	if !w.done {
		w.queue = append(w.queue, resp)
	}
	w.mu.Unlock()
	w.wake()
}

// terminate ends the watch after everything already queued, plus err when
// it is non-nil, has been delivered.
func (w *watcher) terminate(err error) {
	w.mu.Lock()
	if !w.done {
		if err != nil {
			w.queue = append(w.queue, store.WatchResponse{Err: err})
		}
		w.done = true
	}
	w.mu.Unlock()
	w.wake()
}

func (w *watcher) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *watcher) run(s *Store) {
	defer close(w.out)
	defer s.forget(w)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.notify:
		}

		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		done := w.done
		w.mu.Unlock()

		for _, resp := range batch {
			select {
			case w.out <- resp:
			case <-w.ctx.Done():
				return
			}
		}
		if done {
			return
		}
	}
}
