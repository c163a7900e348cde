// Package channel pools gRPC client connections per service and hands them
// out by round robin.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
)

var (
	// ErrNoChannel is returned by Choose when no endpoint serves the service.
	ErrNoChannel = errors.New("channel: no channel available")
	// ErrInvalidAddress is returned for addresses that are not host:port.
	ErrInvalidAddress = errors.New("channel: invalid address")
	// ErrPoolClosed is returned by Add on a closed pool.
	ErrPoolClosed = errors.New("channel: pool closed")
)

// Channel is a reusable connection to one endpoint. It satisfies
// grpc.ClientConnInterface, so generated clients accept it directly.
//
// A Channel handed out by Choose may be closed concurrently when its
// endpoint goes offline; calls then fail and the caller chooses again.
type Channel struct {
	addr string
	conn *grpc.ClientConn
}

var _ grpc.ClientConnInterface = (*Channel)(nil)

// NewChannel wraps an existing connection. conn may be nil for channels
// that are never used for calls.
func NewChannel(addr string, conn *grpc.ClientConn) *Channel {
	return &Channel{addr: addr, conn: conn}
}

func (c *Channel) Addr() string { return c.addr }

func (c *Channel) Conn() *grpc.ClientConn { return c.conn }

func (c *Channel) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	return c.conn.Invoke(ctx, method, args, reply, opts...)
}

func (c *Channel) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return c.conn.NewStream(ctx, desc, method, opts...)
}

func (c *Channel) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Dialer opens a Channel for an address.
type Dialer interface {
	Dial(addr string) (*Channel, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(addr string) (*Channel, error)

func (f DialerFunc) Dial(addr string) (*Channel, error) { return f(addr) }

// GRPCDialer opens channels with grpc.NewClient. Connections are
// established lazily on first use.
type GRPCDialer struct {
	opts []grpc.DialOption
	err  error
}

// NewGRPCDialer builds a dialer from opts. extra dial options are appended
// after the ones derived from opts. Invalid options make every Dial fail.
func NewGRPCDialer(opts Options, extra ...grpc.DialOption) *GRPCDialer {
	dialOpts, err := opts.BuildDialOptions()
	if err != nil {
		return &GRPCDialer{err: fmt.Errorf("invalid channel options: %w", err)}
	}
	return &GRPCDialer{opts: append(dialOpts, extra...)}
}

// Err reports whether the dialer options were rejected.
func (d *GRPCDialer) Err() error { return d.err }

func (d *GRPCDialer) Dial(addr string) (*Channel, error) {
	if d.err != nil {
		return nil, d.err
	}
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	conn, err := grpc.NewClient(addr, d.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel to %s: %w", addr, err)
	}
	return NewChannel(addr, conn), nil
}
