package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore implements Store on top of a NATS JetStream KV bucket,
// the real-lattice backend: JetStream replicates the bucket across the
// NATS cluster, so links/config/secret metadata survive a host restart
// and are visible to every host in the lattice without any
// application-level consensus (see DESIGN.md's note on the dropped
// raft dependency).
type JetStreamStore struct {
	kv jetstream.KeyValue
}

// OpenJetStreamStore binds to (creating if absent) a KV bucket named
// bucket, with history entries retained per key for Watch replay.
func OpenJetStreamStore(ctx context.Context, js jetstream.JetStream, bucket string, history uint8) (*JetStreamStore, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  bucket,
			History: history,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open jetstream kv bucket %s: %w", bucket, err)
	}
	return &JetStreamStore{kv: kv}, nil
}

// jsKey maps a store key containing '/' (common for link/component ids)
// to a JetStream-legal subject token by replacing '/' with '.'.
func jsKey(key string) string {
	return strings.ReplaceAll(key, "/", ".")
}

func (s *JetStreamStore) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(ctx, jsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get key %s: %w", key, err)
	}
	return Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (s *JetStreamStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, jsKey(key), value)
	if err != nil {
		return 0, fmt.Errorf("put key %s: %w", key, err)
	}
	return rev, nil
}

func (s *JetStreamStore) Update(ctx context.Context, key string, value []byte, expectedRevision uint64) (uint64, error) {
	if expectedRevision == 0 {
		rev, err := s.kv.Create(ctx, jsKey(key), value)
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrRevisionMismatch
		}
		if err != nil {
			return 0, fmt.Errorf("create key %s: %w", key, err)
		}
		return rev, nil
	}
	rev, err := s.kv.Update(ctx, jsKey(key), value, expectedRevision)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("update key %s: %w", key, err)
	}
	return rev, nil
}

func (s *JetStreamStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, jsKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

func (s *JetStreamStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	var out []Entry
	jsPrefix := jsKey(prefix)
	for _, k := range keys {
		if !strings.HasPrefix(k, jsPrefix) {
			continue
		}
		e, err := s.kv.Get(ctx, k)
		if err != nil {
			continue
		}
		out = append(out, Entry{Key: strings.ReplaceAll(k, ".", "/"), Value: e.Value(), Revision: e.Revision()})
	}
	return out, nil
}

func (s *JetStreamStore) Watch(ctx context.Context, prefix string) (<-chan WatchEvent, error) {
	watcher, err := s.kv.Watch(ctx, jsKey(strings.TrimSuffix(prefix, "/"))+".>")
	if err != nil {
		return nil, fmt.Errorf("watch prefix %s: %w", prefix, err)
	}
	out := make(chan WatchEvent, 16)
	go func() {
		defer close(out)
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue // initial-state marker
				}
				ev := WatchEvent{
					Key:      strings.ReplaceAll(entry.Key(), ".", "/"),
					Revision: entry.Revision(),
				}
				if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
					ev.Deleted = true
				} else {
					ev.Value = entry.Value()
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *JetStreamStore) Close() error { return nil }

func isWrongLastSequence(err error) bool {
	return strings.Contains(err.Error(), "wrong last sequence")
}
