package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/containerd/containerd/remotes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

func TestFetchBuiltin(t *testing.T) {
	f := NewFetcher(Options{}, nil, func(name string) ([]byte, bool) {
		if name == "kvbuiltin" {
			return []byte("builtin-bytes"), true
		}
		return nil, false
	}, fakeResolver{})

	data, err := f.Fetch(context.Background(), types.ArtifactRef{Kind: types.ArtifactRefBuiltin, Value: "kvbuiltin"})
	require.NoError(t, err)
	assert.Equal(t, []byte("builtin-bytes"), data)

	_, err = f.Fetch(context.Background(), types.ArtifactRef{Kind: types.ArtifactRefBuiltin, Value: "nope"})
	require.Error(t, err)
}

func TestFetchFileDeniedByDefault(t *testing.T) {
	f := NewFetcher(Options{AllowFileLoad: false}, nil, nil, fakeResolver{})
	_, err := f.Fetch(context.Background(), types.ArtifactRef{Kind: types.ArtifactRefFile, Value: "/tmp/whatever.wasm"})
	require.Error(t, err)
	assert.Equal(t, errkind.Policy, errkind.KindOf(err))
}

func TestFetchFileAllowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.wasm")
	require.NoError(t, os.WriteFile(path, []byte("\x00asmdata"), 0o644))

	f := NewFetcher(Options{AllowFileLoad: true}, nil, nil, fakeResolver{})
	data, err := f.Fetch(context.Background(), types.ArtifactRef{Kind: types.ArtifactRefFile, Value: path})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asmdata"), data)
}

func TestCheckTagRejectsLatestByDefault(t *testing.T) {
	f := &Fetcher{opts: Options{AllowLatest: false}}
	err := f.checkTag("ghcr.io/example/component:latest")
	require.Error(t, err)
	assert.Equal(t, errkind.Policy, errkind.KindOf(err))

	f2 := &Fetcher{opts: Options{AllowLatest: true}}
	assert.NoError(t, f2.checkTag("ghcr.io/example/component:latest"))

	f3 := &Fetcher{opts: Options{AllowLatest: false}}
	assert.NoError(t, f3.checkTag("ghcr.io/example/component:v1.2.3"))
	assert.NoError(t, f3.checkTag("localhost:5000/example/component"))
}

// fakeResolver implements remotes.Resolver minimally so tests that
// never reach the OCI path can construct a Fetcher without dialing out.
type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, ref string) (string, specs.Descriptor, error) {
	return "", specs.Descriptor{}, errors.New("fakeResolver: not implemented")
}

func (fakeResolver) Fetcher(ctx context.Context, ref string) (remotes.Fetcher, error) {
	return nil, errors.New("fakeResolver: not implemented")
}

func (fakeResolver) Pusher(ctx context.Context, ref string) (remotes.Pusher, error) {
	return nil, errors.New("fakeResolver: not implemented")
}
