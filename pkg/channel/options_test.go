package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
)

func TestOptionsNormalize(t *testing.T) {
	var o Options
	o.Normalize()

	if o.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", o.MaxRetries, DefaultMaxRetries)
	}
	if o.Protocol != DefaultProtocol {
		t.Errorf("Protocol = %q, want %q", o.Protocol, DefaultProtocol)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"unknown protocol", Options{Protocol: "thrift"}, true},
		{"negative timeout", Options{CallTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.opts
			o.Normalize()
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceConfigRetries(t *testing.T) {
	tests := []struct {
		retries      int
		wantAttempts int
	}{
		{retries: 0, wantAttempts: DefaultMaxRetries + 1},
		{retries: 1, wantAttempts: 2},
		{retries: 10, wantAttempts: maxAttempts},
		{retries: -1, wantAttempts: 0},
	}
	for _, tt := range tests {
		o := Options{MaxRetries: tt.retries}
		o.Normalize()
		raw, err := o.serviceConfig()
		if err != nil {
			t.Fatalf("serviceConfig() error = %v", err)
		}

		var sc serviceConfig
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			t.Fatalf("invalid service config %s: %v", raw, err)
		}
		var got int
		if len(sc.MethodConfig) > 0 {
			got = sc.MethodConfig[0].RetryPolicy.MaxAttempts
		}
		if got != tt.wantAttempts {
			t.Errorf("MaxRetries=%d: maxAttempts = %d, want %d", tt.retries, got, tt.wantAttempts)
		}
	}
}

func TestCallTimeout(t *testing.T) {
	interceptor := callTimeout(50 * time.Millisecond)

	var deadline time.Time
	var hasDeadline bool
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	}

	_ = interceptor(context.Background(), "/m", nil, nil, nil, invoker)
	if !hasDeadline || time.Until(deadline) > 50*time.Millisecond {
		t.Fatalf("expected a default deadline, got %v (%v)", deadline, hasDeadline)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := ctx.Deadline()
	_ = interceptor(ctx, "/m", nil, nil, nil, invoker)
	if !deadline.Equal(want) {
		t.Errorf("existing deadline was replaced: got %v, want %v", deadline, want)
	}
}

func TestGRPCDialer(t *testing.T) {
	d := NewGRPCDialer(Options{ConnectTimeout: time.Second, CallTimeout: time.Second, EnableKeepalive: true})
	if err := d.Err(); err != nil {
		t.Fatalf("NewGRPCDialer() error = %v", err)
	}

	ch, err := d.Dial("127.0.0.1:9001")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ch.Close()
	if ch.Addr() != "127.0.0.1:9001" || ch.Conn() == nil {
		t.Errorf("unexpected channel %+v", ch)
	}

	if _, err := d.Dial("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Dial(bad) error = %v, want ErrInvalidAddress", err)
	}
}

func TestGRPCDialer_UnknownProtocol(t *testing.T) {
	d := NewGRPCDialer(Options{Protocol: "thrift"})
	if d.Err() == nil {
		t.Fatal("expected options error")
	}
	if _, err := d.Dial("127.0.0.1:9001"); err == nil {
		t.Fatal("expected Dial() to fail with unknown protocol")
	}

	p := NewPool("/service/echo", d, nil)
	if err := p.Add("127.0.0.1:9001"); err == nil || p.Len() != 0 {
		t.Fatalf("failed open must not enter the pool: err=%v len=%d", err, p.Len())
	}
}
