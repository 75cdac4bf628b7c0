package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryDoc struct {
	collection string
	doc        Document
}

// MemoryStore is an in-process document store. Every subscription has its own
// delivery goroutine; pending snapshots are coalesced to the latest one.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	subs map[*memorySubscription]struct{}
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]memoryDoc),
		subs: make(map[*memorySubscription]struct{}),
		now:  time.Now,
	}
}

// SetClock overrides the commit clock used for server timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(collection, q), nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if _, _, err := SplitPath(path); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return cloneDocument(entry.doc), nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.Set(ctx, Doc(collection, id), fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	plain, appends := splitTransforms(fields, now)
	existing, exists := s.docs[path]

	doc := Document{ID: id, Path: path, CreatedAt: now, UpdatedAt: now}
	if exists {
		doc.CreatedAt = existing.doc.CreatedAt
	}
	if merge && exists {
		doc.Fields = cloneFields(existing.doc.Fields)
	} else {
		doc.Fields = Fields{}
	}
	for key, value := range plain {
		doc.Fields[key] = value
	}
	applyAppends(doc.Fields, appends)

	s.docs[path] = memoryDoc{collection: collection, doc: doc}
	s.publishLocked(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, _, err := SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.docs[path]
	if !ok {
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}
	now := s.now()
	plain, appends := splitTransforms(fields, now)
	doc := entry.doc
	doc.Fields = cloneFields(doc.Fields)
	for key, value := range plain {
		doc.Fields[key] = value
	}
	applyAppends(doc.Fields, appends)
	doc.UpdatedAt = now

	s.docs[path] = memoryDoc{collection: collection, doc: doc}
	s.publishLocked(collection)
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, path, field string, elem any) error {
	return s.Update(ctx, path, Fields{field: ArrayAppend(elem)})
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, _, err := SplitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.publishLocked(collection)
	return nil
}

func (s *MemoryStore) DeleteBatch(ctx context.Context, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) > MaxBatchSize {
		return fmt.Errorf("delete batch of %d exceeds %d documents", len(paths), MaxBatchSize)
	}
	collections := map[string]struct{}{}
	for _, path := range paths {
		collection, _, err := SplitPath(path)
		if err != nil {
			return err
		}
		collections[collection] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		delete(s.docs, path)
	}
	for collection := range collections {
		s.publishLocked(collection)
	}
	return nil
}

func (s *MemoryStore) Subscribe(collection string, q Query, onChange func([]Document), onError func(error)) Subscription {
	sub := &memorySubscription{
		store:      s,
		collection: collection,
		query:      q,
		delivery:   newDelivery(onChange, onError),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	if err := validCollection(collection); err != nil {
		sub.push(memoryEvent{err: err})
		go sub.run()
		return sub
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.push(memoryEvent{docs: s.snapshotLocked(collection, q)})
	s.mu.Unlock()

	go sub.run()
	return sub
}

// Fail delivers err to every subscriber of collection, as a dropped backend
// connection would.
func (s *MemoryStore) Fail(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.collection == collection {
			sub.push(memoryEvent{err: err})
		}
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := make([]*memorySubscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}

func (s *MemoryStore) publishLocked(collection string) {
	for sub := range s.subs {
		if sub.collection == collection {
			sub.push(memoryEvent{docs: s.snapshotLocked(collection, sub.query)})
		}
	}
}

func (s *MemoryStore) snapshotLocked(collection string, q Query) []Document {
	collection = strings.Trim(collection, "/")
	docs := make([]Document, 0)
	for _, entry := range s.docs {
		if entry.collection == collection {
			docs = append(docs, cloneDocument(entry.doc))
		}
	}
	sortDocuments(docs, q)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func (s *MemoryStore) removeSubscription(sub *memorySubscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

type memoryEvent struct {
	docs []Document
	err  error
}

type memorySubscription struct {
	store      *MemoryStore
	collection string
	query      Query
	delivery   *delivery

	mu        sync.Mutex
	queue     []memoryEvent
	cancelled bool
	wake      chan struct{}
	done      chan struct{}
	once      sync.Once
}

func (sub *memorySubscription) push(event memoryEvent) {
	sub.mu.Lock()
	if sub.cancelled {
		sub.mu.Unlock()
		return
	}
	last := len(sub.queue) - 1
	if event.err == nil && last >= 0 && sub.queue[last].err == nil {
		sub.queue[last] = event
	} else {
		sub.queue = append(sub.queue, event)
	}
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *memorySubscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if sub.cancelled || len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			event := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			if event.err != nil {
				sub.delivery.fail(event.err)
				continue
			}
			sub.delivery.change(event.docs)
		}
	}
}

func (sub *memorySubscription) Cancel() {
	sub.once.Do(func() {
		sub.mu.Lock()
		sub.cancelled = true
		sub.queue = nil
		sub.mu.Unlock()
		close(sub.done)
		sub.store.removeSubscription(sub)
		sub.delivery.stop()
	})
}

func applyAppends(fields Fields, appends map[string][]any) {
	for key, elems := range appends {
		var current []any
		if existing, ok := fields[key].([]any); ok {
			current = append(current, existing...)
		} else if fields[key] != nil {
			current = append(current, fields[key])
		}
		fields[key] = append(current, elems...)
	}
}

func cloneDocument(doc Document) Document {
	doc.Fields = cloneFields(doc.Fields)
	return doc
}

func cloneFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for key, value := range fields {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Fields:
		return cloneFields(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// sortDocuments orders docs by q.OrderBy; documents without the field go last
// in either direction, ties break on id.
func sortDocuments(docs []Document, q Query) {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy == "" {
			if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
				return docs[i].CreatedAt.Before(docs[j].CreatedAt)
			}
			return docs[i].ID < docs[j].ID
		}
		a, aok := docs[i].Fields[q.OrderBy]
		b, bok := docs[j].Fields[q.OrderBy]
		aok = aok && a != nil
		bok = bok && b != nil
		switch {
		case !aok && !bok:
			return docs[i].ID < docs[j].ID
		case !aok:
			return false
		case !bok:
			return true
		}
		cmp := compareValues(a, b)
		if cmp == 0 {
			return docs[i].ID < docs[j].ID
		}
		if q.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
