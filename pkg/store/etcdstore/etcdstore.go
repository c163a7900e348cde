// Package etcdstore adapts an etcd v3 client to store.Store.
package etcdstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/HorseArcher567/pathfinder/pkg/etcd"
	"github.com/HorseArcher567/pathfinder/pkg/store"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store implements store.Store on top of *clientv3.Client.
type Store struct {
	client *clientv3.Client
	// owned reports whether Close should close the client.
	owned bool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Close leaves the client open.
func New(client *clientv3.Client) *Store {
	return &Store{client: client}
}

// Open creates a client from cfg. Close closes it.
func Open(cfg *etcd.Config) (*Store, error) {
	client, err := etcd.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, owned: true}, nil
}

// Client returns the underlying etcd client.
func (s *Store) Client() *clientv3.Client {
	return s.client
}

func (s *Store) Put(ctx context.Context, key, value string, lease store.LeaseID) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	var opts []clientv3.OpOption
	if lease != store.NoLease {
		opts = append(opts, clientv3.WithLease(clientv3.LeaseID(lease)))
	}

	if _, err := s.client.Put(ctx, key, value, opts...); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (*store.ListResult, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, translate(err)
	}

	res := &store.ListResult{
		KVs:      make([]store.KeyValue, 0, len(resp.Kvs)),
		Revision: resp.Header.Revision,
	}
	for _, kv := range resp.Kvs {
		res.KVs = append(res.KVs, store.KeyValue{Key: string(kv.Key), Value: string(kv.Value)})
	}
	return res, nil
}

// Watch forwards the etcd watch stream. Progress notifications are skipped;
// errors (compaction, cancellation) are forwarded as responses with Err set,
// after which etcd closes the stream.
func (s *Store) Watch(ctx context.Context, prefix string, fromRev int64) store.WatchChan {
	opts := []clientv3.OpOption{clientv3.WithPrefix(), clientv3.WithPrevKV()}
	if fromRev > 0 {
		opts = append(opts, clientv3.WithRev(fromRev))
	}

	wch := s.client.Watch(ctx, prefix, opts...)
	out := make(chan store.WatchResponse)

	go func() {
		defer close(out)
		for resp := range wch {
			var wr store.WatchResponse
			if err := resp.Err(); err != nil {
				wr.Err = err
			} else {
				wr.Events = convertEvents(resp.Events)
				if len(wr.Events) == 0 {
					continue
				}
			}

			select {
			case out <- wr:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (s *Store) Grant(ctx context.Context, ttl int64) (store.LeaseID, error) {
	resp, err := s.client.Grant(ctx, ttl)
	if err != nil {
		return store.NoLease, translate(err)
	}
	return store.LeaseID(resp.ID), nil
}

// KeepAlive relays renewals. The relay never blocks the etcd client: when
// the consumer lags, renewals are coalesced.
func (s *Store) KeepAlive(ctx context.Context, id store.LeaseID) (<-chan store.KeepAliveResponse, error) {
	kch, err := s.client.KeepAlive(ctx, clientv3.LeaseID(id))
	if err != nil {
		return nil, translate(err)
	}

	out := make(chan store.KeepAliveResponse, 1)
	go func() {
		defer close(out)
		for resp := range kch {
			select {
			case out <- store.KeepAliveResponse{ID: store.LeaseID(resp.ID), TTL: resp.TTL}:
			default:
			}
		}
	}()
	return out, nil
}

func (s *Store) Revoke(ctx context.Context, id store.LeaseID) error {
	if _, err := s.client.Revoke(ctx, clientv3.LeaseID(id)); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.owned && s.client != nil {
		return s.client.Close()
	}
	return nil
}

// convertEvents maps etcd events to store events. A delete carries the
// previous value when the watch was opened with WithPrevKV.
func convertEvents(events []*clientv3.Event) []store.Event {
	out := make([]store.Event, 0, len(events))
	for _, ev := range events {
		if ev == nil || ev.Kv == nil {
			continue
		}

		e := store.Event{
			Key:      string(ev.Kv.Key),
			Revision: ev.Kv.ModRevision,
		}
		if ev.PrevKv != nil {
			e.PrevValue = string(ev.PrevKv.Value)
		}

		switch ev.Type {
		case mvccpb.PUT:
			e.Type = store.EventPut
			e.Value = string(ev.Kv.Value)
		case mvccpb.DELETE:
			e.Type = store.EventDelete
		default:
			continue
		}
		out = append(out, e)
	}
	return out
}

func translate(err error) error {
	if errors.Is(err, rpctypes.ErrLeaseNotFound) {
		return fmt.Errorf("%w: %v", store.ErrLeaseNotFound, err)
	}
	if errors.Is(err, rpctypes.ErrEmptyKey) {
		return store.ErrEmptyKey
	}
	return err
}
