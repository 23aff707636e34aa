// Package kvbuiltin implements the wasi:keyvalue builtin capability
// (spec.md §4.5's builtin list): get/set/delete/exists/list-keys
// against an in-memory store scoped per calling component, with no
// provider process or NATS round trip required.
//
// Grounded on internal/store.MemoryStore (itself grounded on
// pkg/storage.Store, generalized from warren's entity-specific CRUD to
// a generic Get/Put/Delete/List surface) and on
// pkg/dns.Resolver's "look the request up, translate not-found into a
// typed error" shape for Get/Exists.
package kvbuiltin

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

// Request is the JSON payload for every wasi:keyvalue operation.
type Request struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Value  []byte `json:"value,omitempty"`
}

// Response is the JSON payload every operation returns.
type Response struct {
	Value  []byte   `json:"value,omitempty"`
	Exists bool     `json:"exists,omitempty"`
	Keys   []string `json:"keys,omitempty"`
}

const defaultNamespace = "default"

// Builtin implements wasmrt.Builtin against a single shared
// store.Store, namespaced per calling component so two components
// opening the same bucket name never see each other's keys.
type Builtin struct {
	backing store.Store
}

func New(backing store.Store) *Builtin {
	if backing == nil {
		backing = store.NewMemoryStore()
	}
	return &Builtin{backing: backing}
}

func (b *Builtin) Invoke(ctx context.Context, ic *wasmrt.InvocationContext, operation string, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "decode wasi:keyvalue request", err)
	}

	key := namespacedKey(ic, req.Bucket, req.Key)

	switch operation {
	case "get":
		entry, err := b.backing.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return json.Marshal(Response{})
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Transient, "wasi:keyvalue get", err)
		}
		return json.Marshal(Response{Value: entry.Value, Exists: true})

	case "set":
		if _, err := b.backing.Put(ctx, key, req.Value); err != nil {
			return nil, errkind.Wrap(errkind.Transient, "wasi:keyvalue set", err)
		}
		return json.Marshal(Response{})

	case "delete":
		if err := b.backing.Delete(ctx, key); err != nil {
			return nil, errkind.Wrap(errkind.Transient, "wasi:keyvalue delete", err)
		}
		return json.Marshal(Response{})

	case "exists":
		_, err := b.backing.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return json.Marshal(Response{Exists: false})
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Transient, "wasi:keyvalue exists", err)
		}
		return json.Marshal(Response{Exists: true})

	case "list-keys":
		prefix := namespacedKey(ic, req.Bucket, "")
		entries, err := b.backing.List(ctx, prefix)
		if err != nil {
			return nil, errkind.Wrap(errkind.Transient, "wasi:keyvalue list-keys", err)
		}
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key[len(prefix):])
		}
		return json.Marshal(Response{Keys: keys})

	default:
		return nil, errkind.New(errkind.Guest, "wasi:keyvalue: unknown operation "+operation)
	}
}

func namespacedKey(ic *wasmrt.InvocationContext, bucket, key string) string {
	ns := defaultNamespace
	if ic != nil && ic.Envelope.CallerID != "" {
		ns = ic.Envelope.CallerID
	}
	return ns + "/" + bucket + "/" + key
}
