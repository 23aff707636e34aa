// Package configbuiltin implements the wasi:config builtin capability
// (spec.md §4.5): a component reads named values merged from its
// ConfigNames' ConfigRecords, with any value prefixed
// types.ReservedSecretPrefix resolved through the secret store instead
// of returned literally.
//
// Grounded on internal/kvbuiltin's shape (a wasmrt.Builtin backed by a
// store.Store, no provider process or NATS round trip required).
package configbuiltin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/security"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

// Request is the JSON payload for a wasi:config get.
type Request struct {
	Key string `json:"key,omitempty"`
}

// Response is the JSON payload wasi:config operations return.
type Response struct {
	Value  string            `json:"value,omitempty"`
	Found  bool              `json:"found,omitempty"`
	Values map[string]string `json:"values,omitempty"`
}

// ConfigNamesFor resolves a component id to the ordered ConfigNames
// its ComponentRecord carries, supplied by internal/host which owns
// the component registry.
type ConfigNamesFor func(componentID string) []string

const configKeyPrefix = "config/"
const secretKeyPrefix = "secrets/"

// Builtin implements wasmrt.Builtin against the host's config and
// secret stores. A config value of the form "secret::<name>" is never
// returned as-is: it is resolved against secretStore and decrypted
// with secrets, so a guest never observes the sealed marker itself.
type Builtin struct {
	configStore store.Store
	secretStore store.Store
	secrets     *security.SecretsManager
	namesFor    ConfigNamesFor
}

func New(configStore, secretStore store.Store, secrets *security.SecretsManager, namesFor ConfigNamesFor) *Builtin {
	return &Builtin{configStore: configStore, secretStore: secretStore, secrets: secrets, namesFor: namesFor}
}

func (b *Builtin) Invoke(ctx context.Context, ic *wasmrt.InvocationContext, operation string, payload []byte) ([]byte, error) {
	var componentID string
	if ic != nil {
		componentID = ic.Envelope.CallerID
	}
	names := b.namesFor(componentID)

	switch operation {
	case "get":
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errkind.Wrap(errkind.Validation, "decode wasi:config get request", err)
		}
		value, found, err := b.resolve(ctx, names, req.Key)
		if err != nil {
			return nil, err
		}
		return json.Marshal(Response{Value: value, Found: found})

	case "get-all":
		merged, err := b.mergeAll(ctx, names)
		if err != nil {
			return nil, err
		}
		return json.Marshal(Response{Values: merged})

	default:
		return nil, errkind.New(errkind.Guest, "wasi:config: unknown operation "+operation)
	}
}

// resolve looks up key across names in order, a later name overriding
// an earlier one on a conflict, the same precedence mergeAll applies.
func (b *Builtin) resolve(ctx context.Context, names []string, key string) (string, bool, error) {
	var value string
	var found bool
	for _, name := range names {
		cfg, err := b.loadConfig(ctx, name)
		if err != nil {
			return "", false, err
		}
		raw, ok := cfg.Values[key]
		if !ok {
			continue
		}
		value, err = b.resolveValue(ctx, key, raw)
		if err != nil {
			return "", false, err
		}
		found = true
	}
	return value, found, nil
}

func (b *Builtin) mergeAll(ctx context.Context, names []string) (map[string]string, error) {
	merged := map[string]string{}
	for _, name := range names {
		cfg, err := b.loadConfig(ctx, name)
		if err != nil {
			return nil, err
		}
		for key, raw := range cfg.Values {
			value, err := b.resolveValue(ctx, key, raw)
			if err != nil {
				return nil, err
			}
			merged[key] = value
		}
	}
	return merged, nil
}

func (b *Builtin) loadConfig(ctx context.Context, name string) (types.ConfigRecord, error) {
	entry, err := b.configStore.Get(ctx, configKeyPrefix+name)
	if errors.Is(err, store.ErrNotFound) {
		return types.ConfigRecord{Name: name}, nil
	}
	if err != nil {
		return types.ConfigRecord{}, errkind.Wrap(errkind.Transient, "wasi:config: load "+name, err)
	}
	var cfg types.ConfigRecord
	if err := json.Unmarshal(entry.Value, &cfg); err != nil {
		return types.ConfigRecord{}, errkind.Wrap(errkind.Validation, "wasi:config: decode "+name, err)
	}
	return cfg, nil
}

// resolveValue returns raw unchanged unless it carries the reserved
// secret prefix, in which case the name after the prefix is fetched
// from secretStore and decrypted.
func (b *Builtin) resolveValue(ctx context.Context, key, raw string) (string, error) {
	name, isSecret := strings.CutPrefix(raw, types.ReservedSecretPrefix)
	if !isSecret {
		return raw, nil
	}
	entry, err := b.secretStore.Get(ctx, secretKeyPrefix+name)
	if errors.Is(err, store.ErrNotFound) {
		return "", errkind.New(errkind.Validation, "wasi:config: secret "+name+" referenced by "+key+" not found")
	}
	if err != nil {
		return "", errkind.Wrap(errkind.Transient, "wasi:config: load secret "+name, err)
	}
	plaintext, err := b.secrets.Decrypt(entry.Value)
	if err != nil {
		return "", errkind.Wrap(errkind.Fatal, "wasi:config: decrypt secret "+name, err)
	}
	return string(plaintext), nil
}
