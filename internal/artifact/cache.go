package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

// Cache is the content-addressed on-disk artifact cache at
// <base>/wasmcloudcache/<host_id>/<digest>, per spec.md §4.2. A
// singleflight group per digest collapses concurrent fetches of the
// same artifact into one download.
type Cache struct {
	dir string
	sf  singleflight.Group
}

// NewCache creates (if needed) and returns a cache rooted at
// <baseDir>/wasmcloudcache/<hostID>.
func NewCache(baseDir, hostID string) (*Cache, error) {
	dir := filepath.Join(baseDir, "wasmcloudcache", hostID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("create artifact cache dir %s", dir), err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(d digest.Digest) string {
	return filepath.Join(c.dir, d.Encoded())
}

// Get returns cached bytes for digest d, if present.
func (c *Cache) Get(d digest.Digest) ([]byte, bool) {
	data, err := os.ReadFile(c.path(d))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put writes data under digest d.
func (c *Cache) Put(d digest.Digest, data []byte) error {
	tmp := c.path(d) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Transient, "write artifact cache entry", err)
	}
	if err := os.Rename(tmp, c.path(d)); err != nil {
		return errkind.Wrap(errkind.Transient, "commit artifact cache entry", err)
	}
	return nil
}

// Dedup ensures only one caller fetches a given digest concurrently;
// the others block on the same singleflight call and share its result.
func (c *Cache) Dedup(d digest.Digest, fetch func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(d); ok {
		return data, nil
	}
	v, err, _ := c.sf.Do(d.String(), func() (interface{}, error) {
		if data, ok := c.Get(d); ok {
			return data, nil
		}
		data, err := fetch()
		if err != nil {
			return nil, err
		}
		if err := c.Put(d, data); err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// WriteExecutable writes data to a fresh executable file under the
// cache directory and returns its path, used by internal/provider to
// obtain a spawnable binary path for fetched provider bytes (spec.md
// §4.6 step 1: "the file is made executable").
func (c *Cache) WriteExecutable(name string, data []byte) (string, error) {
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, data, 0o755); err != nil {
		return "", errkind.Wrap(errkind.Transient, fmt.Sprintf("write executable artifact %s", name), err)
	}
	return path, nil
}
