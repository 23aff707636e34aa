// Package artifact implements spec.md §4.2: resolving an ArtifactRef to
// component or provider bytes, including OCI registry fetch, local file
// loads gated by a flag, and the content-addressed on-disk cache.
//
// Grounded on the teacher's pkg/runtime/containerd.go PullImage, which
// pulls an image through a containerd client talking to a local daemon
// socket. Fetching a Wasm artifact from an OCI registry needs none of
// that: there is no daemon to unpack images into, only bytes to
// retrieve and cache, so this package drives containerd's
// remotes/docker resolver and content store directly instead of going
// through the full containerd.Client.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/containerd/containerd/remotes"
	"github.com/containerd/containerd/remotes/docker"
	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// Options configures a Fetcher per spec.md §4.2 and §6 flags.
type Options struct {
	AllowFileLoad bool
	AllowLatest   bool
	AllowInsecure bool
}

// BuiltinResolver returns the bytes for a named builtin artifact, wired
// by the host for artifacts that ship inside the host binary itself
// (spec.md §5 feature flags: wasmcloud+builtin:// references).
type BuiltinResolver func(name string) ([]byte, bool)

// Fetcher resolves ArtifactRefs to bytes, caching OCI pulls on disk.
type Fetcher struct {
	opts     Options
	cache    *Cache
	builtins BuiltinResolver
	resolver remotes.Resolver
}

// NewFetcher builds a Fetcher. resolver may be nil to use containerd's
// default docker resolver; tests substitute a fake.
func NewFetcher(opts Options, cache *Cache, builtins BuiltinResolver, resolver remotes.Resolver) *Fetcher {
	if resolver == nil {
		resolver = docker.NewResolver(docker.ResolverOptions{
			Hosts: docker.ConfigureDefaultRegistries(
				docker.WithPlainHTTP(func(string) (bool, error) { return opts.AllowInsecure, nil }),
			),
		})
	}
	return &Fetcher{opts: opts, cache: cache, builtins: builtins, resolver: resolver}
}

// CacheExecutablePath persists artifactBytes as an executable file
// named by the bytes' content digest and returns its path, for
// internal/provider.Supervisor.Start to spawn directly (spec.md §4.6
// step 1).
func (f *Fetcher) CacheExecutablePath(ref types.ArtifactRef, artifactBytes []byte) (string, error) {
	name := digest.FromBytes(artifactBytes).Encoded() + "-provider"
	return f.cache.WriteExecutable(name, artifactBytes)
}

// Fetch resolves ref to artifact bytes, per spec.md §4.2's decision table.
func (f *Fetcher) Fetch(ctx context.Context, ref types.ArtifactRef) ([]byte, error) {
	switch ref.Kind {
	case types.ArtifactRefBuiltin:
		return f.fetchBuiltin(ref.Value)
	case types.ArtifactRefFile:
		return f.fetchFile(ref.Value)
	case types.ArtifactRefOCI:
		return f.fetchOCI(ctx, ref.Value)
	default:
		return nil, errkind.New(errkind.Validation, fmt.Sprintf("unknown artifact reference kind %q", ref.Kind))
	}
}

func (f *Fetcher) fetchBuiltin(name string) ([]byte, error) {
	if f.builtins == nil {
		return nil, errkind.New(errkind.Validation, "no builtin artifacts registered")
	}
	data, ok := f.builtins(name)
	if !ok {
		return nil, errkind.New(errkind.Validation, fmt.Sprintf("unknown builtin artifact %q", name))
	}
	return data, nil
}

func (f *Fetcher) fetchFile(path string) ([]byte, error) {
	if !f.opts.AllowFileLoad {
		return nil, errkind.New(errkind.Policy, "file artifact references are disabled (allow_file_load=false)")
	}
	data, err := readFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("read file artifact %s", path), err)
	}
	return data, nil
}

// fetchOCI resolves an OCI reference to its manifest, then fetches the
// first Wasm layer, caching it by its content digest. The resolve
// and fetch steps are retried with exponential backoff on Transient
// failures, per spec.md §7.
func (f *Fetcher) fetchOCI(ctx context.Context, ref string) ([]byte, error) {
	if err := f.checkTag(ref); err != nil {
		return nil, err
	}

	return errkind.Retry(ctx, func() ([]byte, error) {
		return f.fetchOCIOnce(ctx, ref)
	})
}

func (f *Fetcher) fetchOCIOnce(ctx context.Context, ref string) ([]byte, error) {
	name, desc, err := f.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("resolve OCI reference %s", ref), err)
	}

	fetcher, err := f.resolver.Fetcher(ctx, name)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "create OCI fetcher", err)
	}

	manifestData, err := fetchBlob(ctx, fetcher, desc)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "fetch OCI manifest", err)
	}

	layerDesc, err := wasmLayerDescriptor(desc, manifestData)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if data, ok := f.cache.Get(layerDesc.Digest); ok {
			return data, nil
		}
	}

	wasmBytes, err := fetchBlob(ctx, fetcher, layerDesc)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "fetch OCI Wasm layer", err)
	}

	if f.cache != nil {
		_ = f.cache.Put(layerDesc.Digest, wasmBytes)
	}
	return wasmBytes, nil
}

func (f *Fetcher) checkTag(ref string) error {
	if f.opts.AllowLatest {
		return nil
	}
	idx := strings.LastIndex(ref, ":")
	if idx < 0 {
		return nil // no tag, resolver applies its own default
	}
	tag := ref[idx+1:]
	if strings.Contains(tag, "/") {
		return nil // colon was part of a port, not a tag
	}
	if tag == "latest" {
		return errkind.New(errkind.Policy, fmt.Sprintf("reference %q uses the latest tag, which is disabled (allow_latest=false)", ref))
	}
	return nil
}

func fetchBlob(ctx context.Context, fetcher remotes.Fetcher, desc specs.Descriptor) ([]byte, error) {
	rc, err := fetcher.Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// wasmLayerDescriptor picks the first layer in an OCI manifest whose
// media type marks it as a Wasm module, the convention wasmCloud's
// publishing tooling uses.
func wasmLayerDescriptor(manifestDesc specs.Descriptor, manifestData []byte) (specs.Descriptor, error) {
	manifest, err := parseManifest(manifestData)
	if err != nil {
		return specs.Descriptor{}, errkind.Wrap(errkind.Validation, "parse OCI manifest", err)
	}
	for _, layer := range manifest.Layers {
		if isWasmMediaType(layer.MediaType) {
			return layer, nil
		}
	}
	return specs.Descriptor{}, errkind.New(errkind.Validation, fmt.Sprintf("manifest %s has no Wasm layer", manifestDesc.Digest))
}

func isWasmMediaType(mt string) bool {
	return strings.Contains(mt, "wasm") || strings.Contains(mt, "wasmcloud")
}

func parseManifest(data []byte) (specs.Manifest, error) {
	var m specs.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return specs.Manifest{}, err
	}
	return m, nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
