// Package feed keeps a live, ordered snapshot of a document collection and
// layers pending local mutations over it until the store confirms them.
package feed

import (
	"log"
	"reflect"
	"sort"
	"sync"

	"astrixo/admin/internal/store"
)

type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "loading"
	}
}

type Options[T any] struct {
	// Name prefixes log lines; defaults to the collection path.
	Name       string
	Collection string
	Query      store.Query
	Decode     func(store.Document) (T, error)
	// Less re-sorts every snapshot after decoding. Nil keeps backend order.
	Less func(a, b T) bool
	ID   func(T) string
}

type Snapshot[T any] struct {
	Items   []T
	State   State
	Err     error
	Version uint64
	// Diff is what the latest store delivery changed, by record id.
	Diff Diff
}

type Diff struct {
	Added   []string
	Updated []string
	Removed []string
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// decoded caches a record with the fields it was decoded from.
type decoded[T any] struct {
	fields store.Fields
	record T
}

// Feed mirrors one collection subscription. All methods are safe for
// concurrent use; after Close no state changes and no further signals.
type Feed[T any] struct {
	opts Options[T]

	mu      sync.Mutex
	base    []T
	byID    map[string]int
	items   []T
	state   State
	err     error
	version uint64
	overlay []*entry[T]
	cache   map[string]decoded[T]
	diff    Diff
	changes chan struct{}
	closed  bool
	sub     store.Subscription

	// snapshots counts authoritative deliveries; version also moves on overlay changes.
	snapshots uint64
}

func Start[T any](s store.Store, opts Options[T]) *Feed[T] {
	if opts.Name == "" {
		opts.Name = opts.Collection
	}
	f := &Feed[T]{
		opts:    opts,
		byID:    map[string]int{},
		cache:   map[string]decoded[T]{},
		changes: make(chan struct{}, 1),
	}
	f.mu.Lock()
	f.sub = s.Subscribe(opts.Collection, opts.Query, f.onSnapshot, f.onError)
	f.mu.Unlock()
	return f
}

// Changes signals after every state change. Signals coalesce; read Snapshot
// for the current state. The channel is closed by Close.
func (f *Feed[T]) Changes() <-chan struct{} {
	return f.changes
}

func (f *Feed[T]) Snapshot() Snapshot[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]T, len(f.items))
	copy(items, f.items)
	return Snapshot[T]{Items: items, State: f.state, Err: f.err, Version: f.version, Diff: f.diff}
}

// Get returns the current (overlaid) record with the given id.
func (f *Feed[T]) Get(id string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if f.opts.ID(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Close cancels the subscription. It is idempotent.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	sub := f.sub
	close(f.changes)
	f.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// onSnapshot applies a full delivery as a diff against the cache: unchanged
// documents keep their decoded record and only changed ones are decoded.
func (f *Feed[T]) onSnapshot(docs []store.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	var diff Diff
	cache := make(map[string]decoded[T], len(docs))
	records := make([]T, 0, len(docs))
	for _, doc := range docs {
		prev, seen := f.cache[doc.ID]
		if seen && reflect.DeepEqual(prev.fields, doc.Fields) {
			cache[doc.ID] = prev
			records = append(records, prev.record)
			continue
		}
		record, err := f.opts.Decode(doc)
		if err != nil {
			log.Printf("feed: %s: skip %s: %v", f.opts.Name, doc.Path, err)
			continue
		}
		if seen {
			diff.Updated = append(diff.Updated, doc.ID)
		} else {
			diff.Added = append(diff.Added, doc.ID)
		}
		cache[doc.ID] = decoded[T]{fields: doc.Fields, record: record}
		records = append(records, record)
	}
	for id := range f.cache {
		if _, ok := cache[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Removed)

	f.cache = cache
	f.diff = diff
	f.base = records
	f.snapshots++
	f.byID = make(map[string]int, len(records))
	for i, record := range records {
		f.byID[f.opts.ID(record)] = i
	}
	f.state = Ready
	f.err = nil
	f.reconcileLocked()
	f.rebuildLocked()
}

func (f *Feed[T]) onError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	log.Printf("feed: %s: subscription error: %v", f.opts.Name, err)
	f.err = err
	if f.state == Loading {
		f.state = Failed
	}
	f.version++
	f.signalLocked()
}

// rebuildLocked recomputes items from the base snapshot and the overlay.
func (f *Feed[T]) rebuildLocked() {
	items := make([]T, len(f.base))
	copy(items, f.base)
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[f.opts.ID(item)] = i
	}

	for _, e := range f.overlay {
		if e.insert != nil {
			id := f.opts.ID(*e.insert)
			if _, exists := index[id]; exists {
				continue
			}
			index[id] = len(items)
			items = append(items, *e.insert)
			continue
		}
		if i, ok := index[e.recordID]; ok {
			items[i] = e.patch(items[i])
		}
	}

	if f.opts.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return f.opts.Less(items[i], items[j]) })
	}
	f.items = items
	f.version++
	f.signalLocked()
}

func (f *Feed[T]) signalLocked() {
	select {
	case f.changes <- struct{}{}:
	default:
	}
}
