package channel

import (
	"fmt"
	"slices"
	"sync"

	"github.com/HorseArcher567/pathfinder/pkg/metrics"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMetrics records pool size and selection results.
func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// Pool owns the channels of one service. Addresses are unique within a pool
// and channels are chosen in insertion order, wrapping around.
type Pool struct {
	name    string
	dialer  Dialer
	log     *xlog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	channels []*Channel
	hosts    map[string]int // addr -> position in channels
	index    int
	closed   bool
}

func NewPool(name string, dialer Dialer, log *xlog.Logger, opts ...PoolOption) *Pool {
	if log == nil {
		log = xlog.Nop()
	}
	p := &Pool{
		name:   name,
		dialer: dialer,
		log:    log.With("component", "pool", "service", name),
		hosts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Name() string { return p.name }

// Add opens a channel to addr and appends it. Adding a known address is a
// no-op. A failed open leaves the pool unchanged.
//
// The dial runs without the lock held; if another Add for the same address
// wins the race, the fresh channel is closed.
func (p *Pool) Add(addr string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if _, ok := p.hosts[addr]; ok {
		p.mu.Unlock()
		p.log.Debug("endpoint already pooled", "addr", addr)
		return nil
	}
	p.mu.Unlock()

	ch, err := p.dialer.Dial(addr)
	if err != nil {
		p.log.Error("failed to open channel", "addr", addr, "error", err)
		return fmt.Errorf("failed to open channel to %s: %w", addr, err)
	}
	// The pool is keyed by the requested address.
	ch.addr = addr

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.closeChannel(ch)
		return ErrPoolClosed
	}
	if _, ok := p.hosts[addr]; ok {
		p.mu.Unlock()
		p.closeChannel(ch)
		p.log.Debug("endpoint pooled concurrently", "addr", addr)
		return nil
	}
	p.hosts[addr] = len(p.channels)
	p.channels = append(p.channels, ch)
	n := len(p.channels)
	p.mu.Unlock()

	p.metrics.SetPoolChannels(p.name, n)
	p.log.Info("endpoint added", "addr", addr, "size", n)
	return nil
}

// Remove evicts addr and closes its channel. It reports whether addr was
// pooled; an unknown address is logged and ignored.
func (p *Pool) Remove(addr string) bool {
	p.mu.Lock()
	pos, ok := p.hosts[addr]
	if !ok {
		p.mu.Unlock()
		p.log.Warn("remove of unknown endpoint", "addr", addr)
		return false
	}

	ch := p.channels[pos]
	p.channels = slices.Delete(p.channels, pos, pos+1)
	delete(p.hosts, addr)
	for i := pos; i < len(p.channels); i++ {
		p.hosts[p.channels[i].addr] = i
	}
	n := len(p.channels)
	p.mu.Unlock()

	p.closeChannel(ch)
	p.metrics.SetPoolChannels(p.name, n)
	p.log.Info("endpoint removed", "addr", addr, "size", n)
	return true
}

// Choose returns the next channel in round-robin order, or ErrNoChannel when
// the pool is empty.
func (p *Pool) Choose() (*Channel, error) {
	p.mu.Lock()
	n := len(p.channels)
	if n == 0 {
		p.mu.Unlock()
		p.log.Warn("no channel available")
		p.metrics.ObserveChoose(p.name, metrics.ResultEmpty)
		return nil, ErrNoChannel
	}
	i := p.index % n
	ch := p.channels[i]
	p.index = (i + 1) % n
	p.mu.Unlock()

	p.metrics.ObserveChoose(p.name, metrics.ResultOK)
	return ch, nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

// Addrs returns the pooled addresses in round-robin order.
func (p *Pool) Addrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	addrs := make([]string, len(p.channels))
	for i, ch := range p.channels {
		addrs[i] = ch.addr
	}
	return addrs
}

// Close closes every channel. Later Adds fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	channels := p.channels
	p.channels = nil
	clear(p.hosts)
	p.mu.Unlock()

	for _, ch := range channels {
		p.closeChannel(ch)
	}
	p.metrics.SetPoolChannels(p.name, 0)
}

func (p *Pool) closeChannel(ch *Channel) {
	if err := ch.Close(); err != nil {
		p.log.Warn("failed to close channel", "addr", ch.addr, "error", err)
	}
}
