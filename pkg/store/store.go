// Package store defines the slice of a strongly consistent coordination store
// that registration and discovery rely on: lease-bound writes, prefix listing
// and prefix watches.
//
// Implementations live in sub-packages: etcdstore talks to a real etcd
// cluster, memstore keeps everything in process for tests.
package store

import (
	"context"
	"errors"
)

// LeaseID identifies a TTL lease. NoLease writes a key without a lease.
type LeaseID int64

const NoLease LeaseID = 0

var (
	// ErrLeaseNotFound is returned when a lease has expired or was revoked.
	ErrLeaseNotFound = errors.New("store: lease not found")
	// ErrEmptyKey is returned for writes with an empty key.
	ErrEmptyKey = errors.New("store: empty key")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// KeyValue is one stored pair.
type KeyValue struct {
	Key   string
	Value string
}

// ListResult holds the pairs under a prefix and the store revision the
// listing was taken at.
type ListResult struct {
	KVs      []KeyValue
	Revision int64
}

// EventType classifies a watch event.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a single change observed through a watch.
// For EventDelete, Value is empty and PrevValue holds the removed value.
type Event struct {
	Type      EventType
	Key       string
	Value     string
	PrevValue string
	Revision  int64
}

// WatchResponse carries a batch of events, or an error. A response with a
// non-nil Err carries no events.
type WatchResponse struct {
	Events []Event
	Err    error
}

// WatchChan delivers watch responses in the order the store applied them.
// It is closed when the watch context is cancelled or the stream ends.
type WatchChan <-chan WatchResponse

// KeepAliveResponse reports one successful lease renewal.
type KeepAliveResponse struct {
	ID  LeaseID
	TTL int64
}

// Store is the coordination-store capability consumed by this module.
type Store interface {
	// Put writes key=value, bound to lease unless lease is NoLease.
	Put(ctx context.Context, key, value string, lease LeaseID) error

	// List returns every pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (*ListResult, error)

	// Watch streams changes to keys under prefix, starting at fromRev when
	// fromRev > 0, or at the current revision otherwise.
	Watch(ctx context.Context, prefix string, fromRev int64) WatchChan

	// Grant creates a lease that expires ttl seconds after its last renewal.
	Grant(ctx context.Context, ttl int64) (LeaseID, error)

	// KeepAlive renews the lease until ctx is cancelled. The returned channel
	// is closed when renewal stops for any reason.
	KeepAlive(ctx context.Context, id LeaseID) (<-chan KeepAliveResponse, error)

	// Revoke deletes the lease and every key bound to it.
	Revoke(ctx context.Context, id LeaseID) error

	Close() error
}
