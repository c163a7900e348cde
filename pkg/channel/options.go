package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
)

const (
	// DefaultMaxRetries is the retry budget per call when none is configured.
	DefaultMaxRetries = 3
	// DefaultProtocol is the codec used on the wire.
	DefaultProtocol = "proto"

	// gRPC rejects retry policies with more than five attempts.
	maxAttempts = 5
)

// Options are the transport knobs applied to every endpoint channel.
type Options struct {
	// ConnectTimeout bounds a single connection attempt (default: gRPC's 20s).
	ConnectTimeout time.Duration `yaml:"connectTimeout" json:"connectTimeout" toml:"connectTimeout"`

	// CallTimeout is the deadline given to unary calls whose context has none.
	// Zero leaves calls without a deadline.
	CallTimeout time.Duration `yaml:"callTimeout" json:"callTimeout" toml:"callTimeout"`

	// MaxRetries is how many times a call failing with UNAVAILABLE is retried
	// (default: 3). A negative value disables retries.
	MaxRetries int `yaml:"maxRetries" json:"maxRetries" toml:"maxRetries"`

	// Protocol names a registered gRPC codec, sent as the content subtype
	// (default: "proto").
	Protocol string `yaml:"protocol" json:"protocol" toml:"protocol"`

	// EnableKeepalive enables keepalive pings.
	EnableKeepalive bool `yaml:"enableKeepalive" json:"enableKeepalive" toml:"enableKeepalive"`

	// KeepaliveTime is the keepalive time interval (default: 10 seconds).
	KeepaliveTime time.Duration `yaml:"keepaliveTime" json:"keepaliveTime" toml:"keepaliveTime"`

	// KeepaliveTimeout is the keepalive timeout (default: 3 seconds).
	KeepaliveTimeout time.Duration `yaml:"keepaliveTimeout" json:"keepaliveTimeout" toml:"keepaliveTimeout"`
}

// Normalize fills in defaults.
func (o *Options) Normalize() {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Protocol == "" {
		o.Protocol = DefaultProtocol
	}
	if o.KeepaliveTime == 0 {
		o.KeepaliveTime = 10 * time.Second
	}
	if o.KeepaliveTimeout == 0 {
		o.KeepaliveTimeout = 3 * time.Second
	}
}

// Validate checks the options after Normalize.
func (o *Options) Validate() error {
	if o.ConnectTimeout < 0 || o.CallTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if encoding.GetCodecV2(o.Protocol) == nil {
		return fmt.Errorf("unknown protocol %q: no codec registered", o.Protocol)
	}
	return nil
}

// BuildDialOptions normalizes and validates the options and turns them into
// gRPC dial options.
func (o *Options) BuildDialOptions() ([]grpc.DialOption, error) {
	o.Normalize()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	sc, err := o.serviceConfig()
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(sc),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(o.Protocol)),
	}

	if o.ConnectTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: o.ConnectTimeout,
		}))
	}

	if o.CallTimeout > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(callTimeout(o.CallTimeout)))
	}

	if o.EnableKeepalive {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                o.KeepaliveTime,
			Timeout:             o.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}

	return opts, nil
}

type retryPolicy struct {
	MaxAttempts          int      `json:"maxAttempts"`
	InitialBackoff       string   `json:"initialBackoff"`
	MaxBackoff           string   `json:"maxBackoff"`
	BackoffMultiplier    float64  `json:"backoffMultiplier"`
	RetryableStatusCodes []string `json:"retryableStatusCodes"`
}

type methodConfig struct {
	Name        []map[string]string `json:"name"`
	RetryPolicy *retryPolicy        `json:"retryPolicy,omitempty"`
}

type serviceConfig struct {
	LoadBalancingPolicy string         `json:"loadBalancingPolicy"`
	MethodConfig        []methodConfig `json:"methodConfig,omitempty"`
}

// serviceConfig renders the retry budget as a gRPC service config that
// applies to every method.
func (o *Options) serviceConfig() (string, error) {
	sc := serviceConfig{LoadBalancingPolicy: "pick_first"}

	if o.MaxRetries > 0 {
		sc.MethodConfig = []methodConfig{{
			Name: []map[string]string{{}},
			RetryPolicy: &retryPolicy{
				MaxAttempts:          min(o.MaxRetries+1, maxAttempts),
				InitialBackoff:       "0.1s",
				MaxBackoff:           "1s",
				BackoffMultiplier:    2,
				RetryableStatusCodes: []string{"UNAVAILABLE"},
			},
		}}
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("failed to build service config: %w", err)
	}
	return string(data), nil
}

// callTimeout gives calls without a deadline one of d.
func callTimeout(d time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
