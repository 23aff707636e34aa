// Package linkindex implements spec.md §4.4: the authoritative
// in-memory view of links, indexed by source and by target, kept
// current by watching the links prefix of the store. Providers and the
// component runtime consult it synchronously on every invocation, so it
// must never block on the store: it is rebuilt from a Watch stream and
// read through a RWMutex-protected snapshot.
package linkindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/log"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

const linksPrefix = "links/"

// Index is the live, read-optimized view of every Link in the lattice.
type Index struct {
	st store.Store

	mu        sync.RWMutex
	bySource  map[string][]types.Link // keyed by SourceID
	byTarget  map[string][]types.Link // keyed by TargetID
	byKey     map[string]types.Link   // keyed by storeKey(LinkKey)

	notifyMu sync.Mutex
	notify   []chan Event
}

// Event is one change applied to the index: a link put (Deleted
// false) or removed (Deleted true, Link populated from the removed
// entry's last known value).
type Event struct {
	Link    types.Link
	Deleted bool
}

// New builds an empty index bound to st. Call Start to populate it and
// keep it current.
func New(st store.Store) *Index {
	return &Index{
		st:       st,
		bySource: make(map[string][]types.Link),
		byTarget: make(map[string][]types.Link),
		byKey:    make(map[string]types.Link),
	}
}

// Start loads the current link set from the store and then applies
// Watch events until ctx is canceled, running in the caller's
// goroutine: callers run it with `go index.Start(ctx)`.
func (idx *Index) Start(ctx context.Context) error {
	entries, err := idx.st.List(ctx, linksPrefix)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "load initial link set", err)
	}
	for _, e := range entries {
		var link types.Link
		if err := json.Unmarshal(e.Value, &link); err != nil {
			log.Warn(fmt.Sprintf("skipping unparseable link at key %s: %v", e.Key, err))
			continue
		}
		idx.apply(link, false)
	}

	events, err := idx.st.Watch(ctx, linksPrefix)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "watch link prefix", err)
	}
	for ev := range events {
		if ev.Deleted {
			idx.removeByStoreKey(ev.Key)
			continue
		}
		var link types.Link
		if err := json.Unmarshal(ev.Value, &link); err != nil {
			log.Warn(fmt.Sprintf("skipping unparseable link update at key %s: %v", ev.Key, err))
			continue
		}
		idx.apply(link, true)
	}
	return nil
}

// Subscribe returns a channel that receives every link Put and Delete
// applied to the index (a put that leaves the link unchanged is not
// reported, nor are links loaded by Start's initial List), for callers that
// need to react to link changes, e.g. the provider supervisor
// forwarding link deltas to the providers they mention.
func (idx *Index) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	idx.notifyMu.Lock()
	idx.notify = append(idx.notify, ch)
	idx.notifyMu.Unlock()
	return ch
}

// Put writes a link to the store; the index updates itself when the
// resulting Watch event arrives, keeping the store as the single
// source of truth (spec.md §4.4: the index "watches the links store").
func (idx *Index) Put(ctx context.Context, link types.Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return errkind.Wrap(errkind.Validation, "marshal link", err)
	}
	key := storeKey(link.LinkKey)
	if _, err := idx.st.Put(ctx, key, data); err != nil {
		return errkind.Wrap(errkind.Transient, "store link", err)
	}
	return nil
}

// Delete removes a link from the store by key.
func (idx *Index) Delete(ctx context.Context, key types.LinkKey) error {
	if err := idx.st.Delete(ctx, storeKey(key)); err != nil {
		return errkind.Wrap(errkind.Transient, "delete link", err)
	}
	return nil
}

// Get returns the link for an exact LinkKey, if present.
func (idx *Index) Get(key types.LinkKey) (types.Link, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	l, ok := idx.byKey[storeKey(key)]
	return l, ok
}

// ForSource returns every link whose SourceID matches, the set a
// component consults to resolve its configured imports.
func (idx *Index) ForSource(sourceID string) []types.Link {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]types.Link(nil), idx.bySource[sourceID]...)
}

// ForTarget returns every link whose TargetID matches, the set a
// provider consults to learn who is allowed to invoke it.
func (idx *Index) ForTarget(targetID string) []types.Link {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]types.Link(nil), idx.byTarget[targetID]...)
}

// Resolve finds the link that should serve sourceID's import of
// namespace:package on the given link name, or false if unlinked.
func (idx *Index) Resolve(sourceID, name, namespace, pkg string) (types.Link, bool) {
	return idx.Get(types.LinkKey{SourceID: sourceID, Name: name, WITNamespace: namespace, WITPackage: pkg})
}

func (idx *Index) apply(link types.Link, notify bool) {
	key := storeKey(link.LinkKey)

	idx.mu.Lock()
	if existing, ok := idx.byKey[key]; ok && linksEqual(existing, link) {
		idx.mu.Unlock()
		return // idempotent put: nothing changed, skip notification
	}
	idx.byKey[key] = link
	idx.bySource[link.SourceID] = upsertLink(idx.bySource[link.SourceID], link)
	idx.byTarget[link.TargetID] = upsertLink(idx.byTarget[link.TargetID], link)
	idx.mu.Unlock()

	if notify {
		idx.broadcast(Event{Link: link})
	}
}

func (idx *Index) removeByStoreKey(key string) {
	idx.mu.Lock()
	removed, found := idx.byKey[key]
	if found {
		delete(idx.byKey, key)
		idx.bySource[removed.SourceID] = removeLink(idx.bySource[removed.SourceID], removed.LinkKey)
		idx.byTarget[removed.TargetID] = removeLink(idx.byTarget[removed.TargetID], removed.LinkKey)
	}
	idx.mu.Unlock()

	if found {
		idx.broadcast(Event{Link: removed, Deleted: true})
	}
}

func (idx *Index) broadcast(ev Event) {
	idx.notifyMu.Lock()
	defer idx.notifyMu.Unlock()
	for _, ch := range idx.notify {
		select {
		case ch <- ev:
		default:
		}
	}
}

func upsertLink(set []types.Link, link types.Link) []types.Link {
	for i, l := range set {
		if l.LinkKey == link.LinkKey {
			set[i] = link
			return set
		}
	}
	return append(set, link)
}

func removeLink(set []types.Link, key types.LinkKey) []types.Link {
	for i, l := range set {
		if l.LinkKey == key {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

func linksEqual(a, b types.Link) bool {
	if a.LinkKey != b.LinkKey || a.TargetID != b.TargetID {
		return false
	}
	if len(a.Interfaces) != len(b.Interfaces) || len(a.SourceConfig) != len(b.SourceConfig) || len(a.TargetConfig) != len(b.TargetConfig) {
		return false
	}
	for i := range a.Interfaces {
		if a.Interfaces[i] != b.Interfaces[i] {
			return false
		}
	}
	for i := range a.SourceConfig {
		if a.SourceConfig[i] != b.SourceConfig[i] {
			return false
		}
	}
	for i := range a.TargetConfig {
		if a.TargetConfig[i] != b.TargetConfig[i] {
			return false
		}
	}
	return true
}

func storeKey(k types.LinkKey) string {
	return fmt.Sprintf("%s%s/%s/%s/%s", linksPrefix, k.SourceID, k.Name, k.WITNamespace, k.WITPackage)
}
