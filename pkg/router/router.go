// Package router maps followed service names to channel pools and feeds
// them from discovery events.
package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/HorseArcher567/pathfinder/pkg/channel"
	"github.com/HorseArcher567/pathfinder/pkg/discovery"
	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/registry"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
)

// ErrServiceNotFound is returned by Choose for a service with no pool.
var ErrServiceNotFound = errors.New("router: service not found")

// Option configures a Router.
type Option func(*Router)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// Router tracks the followed services. Events for other services are
// ignored, so a pool exists only for a followed name, created on its first
// online event and kept until Close.
//
// The router lock guards the followed set and the pool map only. Pool
// mutation, including dialing, happens under each pool's own lock.
type Router struct {
	base    *xlog.Logger
	log     *xlog.Logger
	dialer  channel.Dialer
	metrics *metrics.Metrics

	mu       sync.RWMutex
	followed map[string]struct{}
	pools    map[string]*channel.Pool
	closed   bool
}

var _ discovery.Observer = (*Router)(nil)

func New(log *xlog.Logger, dialer channel.Dialer, opts ...Option) *Router {
	if log == nil {
		log = xlog.Nop()
	}
	r := &Router{
		base:     log,
		log:      log.With("component", "router"),
		dialer:   dialer,
		followed: make(map[string]struct{}),
		pools:    make(map[string]*channel.Pool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declare follows name.
func (r *Router) Declare(name string) {
	r.mu.Lock()
	r.followed[name] = struct{}{}
	r.mu.Unlock()
	r.log.Info("service declared", "service", name)
}

// OnOnline adds addr to the pool of the service key belongs to.
func (r *Router) OnOnline(key, addr string) {
	name := registry.ServiceName(key)
	pool := r.poolFor(name, true)
	if pool == nil {
		r.log.Debug("ignoring online event", "service", name, "key", key)
		return
	}
	_ = pool.Add(addr)
}

// OnOffline removes addr from the pool of the service key belongs to.
func (r *Router) OnOffline(key, addr string) {
	name := registry.ServiceName(key)
	if !r.isFollowed(name) {
		r.log.Debug("ignoring offline event for unfollowed service", "service", name, "key", key)
		return
	}
	pool := r.poolFor(name, false)
	if pool == nil {
		r.log.Warn("offline event for a service never seen online", "service", name, "key", key)
		return
	}
	pool.Remove(addr)
}

func (r *Router) OnPut(key, value string)    { r.OnOnline(key, value) }
func (r *Router) OnDelete(key, value string) { r.OnOffline(key, value) }

// Choose returns the next channel for name.
func (r *Router) Choose(name string) (*channel.Channel, error) {
	r.mu.RLock()
	pool := r.pools[name]
	r.mu.RUnlock()

	if pool == nil {
		r.log.Error("no pool for service", "service", name)
		r.metrics.ObserveChoose(name, metrics.ResultError)
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return pool.Choose()
}

// Followed returns the declared service names, sorted.
func (r *Router) Followed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.followed))
	for n := range r.followed {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Services returns the pooled addresses of every followed service. Followed
// services without a pool map to an empty list.
func (r *Router) Services() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.followed))
	for n := range r.followed {
		if p := r.pools[n]; p != nil {
			out[n] = p.Addrs()
		} else {
			out[n] = []string{}
		}
	}
	return out
}

// Close closes every pool. Later online events are ignored.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*channel.Pool)
	r.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	r.log.Info("router closed", "pools", len(pools))
}

func (r *Router) isFollowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.followed[name]
	return ok
}

// poolFor returns the pool of a followed service, creating it when create
// is set. It returns nil for unfollowed services and once the router is
// closed.
func (r *Router) poolFor(name string, create bool) *channel.Pool {
	r.mu.RLock()
	_, followed := r.followed[name]
	pool := r.pools[name]
	r.mu.RUnlock()

	if !followed {
		return nil
	}
	if pool != nil || !create {
		return pool
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if pool = r.pools[name]; pool == nil {
		pool = channel.NewPool(name, r.dialer, r.base, channel.WithMetrics(r.metrics))
		r.pools[name] = pool
		r.log.Info("pool created", "service", name)
	}
	return pool
}
