package host

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
)

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "marshal record", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal record", err)
	}
	return nil
}

// maxUpdateRetries bounds the optimistic-concurrency retry loop below;
// losing every race that many times in a row means real contention,
// not a transient collision, and the caller should see the error.
const maxUpdateRetries = 5

// writeThrough implements spec.md §3's "update is used for all
// link/config mutations so that concurrent control-plane callers
// cannot clobber one another": read the current revision, then Update
// with it, retrying on a concurrent writer's revision bump.
func (s *Supervisor) writeThrough(ctx context.Context, st store.Store, key string, value []byte) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var expected uint64
		if existing, err := st.Get(ctx, key); err == nil {
			expected = existing.Revision
		} else if !errors.Is(err, store.ErrNotFound) {
			return errkind.Wrap(errkind.Transient, "read before update", err)
		}

		_, err := st.Update(ctx, key, value, expected)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrRevisionMismatch) {
			continue
		}
		return errkind.Wrap(errkind.Transient, "update store entry", err)
	}
	return errkind.New(errkind.Transient, "update store entry: too much contention on "+key)
}
