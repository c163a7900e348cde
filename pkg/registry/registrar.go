// Package registry registers service instances in the coordination store
// under a TTL lease and keeps that lease alive for the life of the process.
//
// Deregistration is lease-driven: Close stops the keepalive and the store
// deletes every key bound to the lease once its TTL runs out.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/store"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/cenkalti/backoff/v5"
)

// DefaultTTL is the lease time-to-live in seconds.
const DefaultTTL int64 = 3

// timeout bounds every single store request.
const timeout = 3 * time.Second

// Option configures a Registrar.
type Option func(*Registrar)

// WithTTL sets the lease TTL in seconds. Values below one are ignored.
func WithTTL(ttl int64) Option {
	return func(r *Registrar) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithoutRecovery disables re-granting a lease after the keepalive stream
// ends unexpectedly. The registrar then stays silent until closed.
func WithoutRecovery() Option {
	return func(r *Registrar) { r.recover = false }
}

// WithRevokeOnClose makes Close revoke the lease so keys vanish at once
// instead of after the TTL.
func WithRevokeOnClose() Option {
	return func(r *Registrar) { r.revokeOnClose = true }
}

// WithMetrics records registration results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registrar) { r.metrics = m }
}

// Registrar holds one lease and the keys written under it.
type Registrar struct {
	log     *xlog.Logger
	store   store.Store
	metrics *metrics.Metrics

	ttl           int64
	recover       bool
	revokeOnClose bool

	mu      sync.Mutex
	leaseID store.LeaseID
	keys    map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRegistrar grants a lease and starts keeping it alive. The returned
// Registrar must be closed.
func NewRegistrar(ctx context.Context, log *xlog.Logger, st store.Store, opts ...Option) (*Registrar, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if log == nil {
		log = xlog.Nop()
	}

	r := &Registrar{
		log:     log.With("component", "registrar"),
		store:   st,
		ttl:     DefaultTTL,
		recover: true,
		keys:    make(map[string]string),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	// The keepalive outlives the construction context.
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	leaseID, ka, err := r.grant(ctx)
	if err != nil {
		r.cancel()
		return nil, fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseID
	r.log.Info("lease granted", "lease", int64(leaseID), "ttl", r.ttl)

	go r.run(ka)
	return r, nil
}

// Register writes key=value bound to the current lease. It does not retry;
// a failed registration is logged and returned and the caller decides
// whether to give up or try again.
func (r *Registrar) Register(ctx context.Context, key, value string) error {
	if r.ctx.Err() != nil {
		return ErrClosed
	}

	r.mu.Lock()
	leaseID := r.leaseID
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.store.Put(ctx, key, value, leaseID); err != nil {
		r.log.Error("failed to register", "key", key, "value", value, "lease", int64(leaseID), "error", err)
		r.metrics.ObserveRegistration(metrics.ResultError)
		return fmt.Errorf("failed to register %s: %w", key, err)
	}

	r.mu.Lock()
	r.keys[key] = value
	r.mu.Unlock()

	r.log.Info("registered", "key", key, "value", value, "lease", int64(leaseID))
	r.metrics.ObserveRegistration(metrics.ResultOK)
	return nil
}

// RegisterInstance validates inst and registers inst.Key()=inst.Addr.
func (r *Registrar) RegisterInstance(ctx context.Context, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("invalid instance: %w", err)
	}
	return r.Register(ctx, inst.Key(), inst.Addr)
}

// LeaseID returns the lease currently backing registrations.
func (r *Registrar) LeaseID() store.LeaseID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaseID
}

// Keys returns the registered keys in lexical order.
func (r *Registrar) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close stops the keepalive and waits for it to exit. Keys stay visible
// until the lease expires unless WithRevokeOnClose was given.
func (r *Registrar) Close() {
	r.once.Do(func() {
		r.cancel()
		<-r.done

		if !r.revokeOnClose {
			r.log.Info("registrar closed, keys expire with the lease", "lease", int64(r.LeaseID()))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := r.store.Revoke(ctx, r.LeaseID()); err != nil {
			r.log.Warn("failed to revoke lease", "lease", int64(r.LeaseID()), "error", err)
			return
		}
		r.log.Info("registrar closed, lease revoked", "lease", int64(r.LeaseID()))
	})
}

// grant obtains a lease and attaches a keepalive stream to it.
func (r *Registrar) grant(ctx context.Context) (store.LeaseID, <-chan store.KeepAliveResponse, error) {
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	leaseID, err := r.store.Grant(gctx, r.ttl)
	if err != nil {
		return store.NoLease, nil, err
	}

	ka, err := r.store.KeepAlive(r.ctx, leaseID)
	if err != nil {
		r.revoke(leaseID)
		return store.NoLease, nil, fmt.Errorf("failed to start keepalive: %w", err)
	}
	return leaseID, ka, nil
}

func (r *Registrar) revoke(leaseID store.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.store.Revoke(ctx, leaseID); err != nil {
		r.log.Debug("failed to revoke lease", "lease", int64(leaseID), "error", err)
	}
}

// run drains keepalive responses until the stream closes. A stream that
// closes while the registrar is open means the lease is gone.
func (r *Registrar) run(ka <-chan store.KeepAliveResponse) {
	defer close(r.done)

	for {
		for range ka {
		}
		if r.ctx.Err() != nil {
			return
		}

		r.log.Warn("keepalive stopped, lease lost", "lease", int64(r.LeaseID()))
		if !r.recover {
			return
		}

		var err error
		if ka, err = r.reestablish(); err != nil {
			// Only cancellation ends the retry loop.
			return
		}
	}
}

// reestablish grants a new lease and re-puts every remembered key, retrying
// with exponential backoff until it succeeds or the registrar is closed.
func (r *Registrar) reestablish() (<-chan store.KeepAliveResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = timeout

	op := func() (<-chan store.KeepAliveResponse, error) {
		leaseID, ka, err := r.grant(r.ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		keys := make(map[string]string, len(r.keys))
		for k, v := range r.keys {
			keys[k] = v
		}
		r.mu.Unlock()

		for k, v := range keys {
			ctx, cancel := context.WithTimeout(r.ctx, timeout)
			err := r.store.Put(ctx, k, v, leaseID)
			cancel()
			if err != nil {
				r.revoke(leaseID)
				return nil, fmt.Errorf("failed to re-register %s: %w", k, err)
			}
		}

		r.mu.Lock()
		r.leaseID = leaseID
		r.mu.Unlock()

		r.log.Info("lease re-established", "lease", int64(leaseID), "keys", len(keys))
		return ka, nil
	}

	return backoff.Retry(r.ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("failed to re-establish lease", "error", err, "retryIn", next)
		}),
	)
}
