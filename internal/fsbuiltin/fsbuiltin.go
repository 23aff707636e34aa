// Package fsbuiltin implements the wasi:filesystem builtin capability
// (spec.md §4.5's builtin list): read/write/delete/list against a
// local directory scoped one-per-component, with no provider process
// required.
//
// Grounded on pkg/volume/local.go's LocalDriver: GetPath derives a
// per-entity subdirectory under one base path, Create/Delete manage
// that subdirectory's lifecycle, and Mount/Unmount gate access to it;
// generalized here from one subdirectory per container volume to one
// subdirectory per component, and from bind-mount paths to direct
// read/write/delete/list operations since a Wasm guest has no mount
// namespace to bind into.
package fsbuiltin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

const defaultNamespace = "default"

// Request is the JSON payload for every wasi:filesystem operation.
type Request struct {
	Path  string `json:"path"`
	Data  []byte `json:"data,omitempty"`
}

// Response is the JSON payload every operation returns.
type Response struct {
	Data    []byte   `json:"data,omitempty"`
	Exists  bool     `json:"exists,omitempty"`
	Entries []string `json:"entries,omitempty"`
}

// Builtin implements wasmrt.Builtin against basePath, creating one
// subdirectory per calling component the first time it writes, the
// way LocalDriver.Create lazily provisions one directory per volume.
type Builtin struct {
	basePath string
}

// New builds a filesystem builtin rooted at basePath (created if
// absent). An empty basePath defaults to a dev-friendly temp location.
func New(basePath string) (*Builtin, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "wasmcloud-fsbuiltin")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "create fsbuiltin base directory", err)
	}
	return &Builtin{basePath: basePath}, nil
}

func (b *Builtin) Invoke(ctx context.Context, ic *wasmrt.InvocationContext, operation string, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "decode wasi:filesystem request", err)
	}

	path, err := b.resolvePath(ic, req.Path)
	if err != nil {
		return nil, err
	}

	switch operation {
	case "read":
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return json.Marshal(Response{})
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Guest, "wasi:filesystem read", err)
		}
		return json.Marshal(Response{Data: data, Exists: true})

	case "write":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errkind.Wrap(errkind.Guest, "wasi:filesystem write", err)
		}
		if err := os.WriteFile(path, req.Data, 0o644); err != nil {
			return nil, errkind.Wrap(errkind.Guest, "wasi:filesystem write", err)
		}
		return json.Marshal(Response{})

	case "delete":
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errkind.Wrap(errkind.Guest, "wasi:filesystem delete", err)
		}
		return json.Marshal(Response{})

	case "exists":
		_, err := os.Stat(path)
		return json.Marshal(Response{Exists: err == nil})

	case "list":
		entries, err := os.ReadDir(path)
		if errors.Is(err, os.ErrNotExist) {
			return json.Marshal(Response{})
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Guest, "wasi:filesystem list", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return json.Marshal(Response{Entries: names, Exists: true})

	default:
		return nil, errkind.New(errkind.Guest, "wasi:filesystem: unknown operation "+operation)
	}
}

// resolvePath confines req.Path to the calling component's
// subdirectory under basePath. Joining against a leading separator
// before joining onto root means filepath.Clean collapses any ".."
// segments at the root itself, so a guest can't climb out of its
// component directory no matter how many ".." segments it sends.
func (b *Builtin) resolvePath(ic *wasmrt.InvocationContext, reqPath string) (string, error) {
	ns := defaultNamespace
	if ic != nil && ic.Envelope.CallerID != "" {
		ns = ic.Envelope.CallerID
	}
	root := filepath.Join(b.basePath, ns)
	clean := filepath.Join(string(filepath.Separator), reqPath)
	return filepath.Join(root, clean), nil
}
