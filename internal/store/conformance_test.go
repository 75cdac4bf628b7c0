package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConformance exercises the behaviour every backend must share.
func runConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), Doc("tickets", "missing"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), Doc("tickets", "missing"), Fields{"status": "open"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.Create(ctx, "categories", Fields{"name": "Design", "createdAt": ServerTimestamp})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := s.Get(ctx, Doc("categories", id))
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, "Design", doc.Fields["name"])
		assert.False(t, ParseTime(doc.Fields["createdAt"]).IsZero())
	})

	t.Run("merge set keeps other fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		path := Doc("users", "u1")
		require.NoError(t, s.Set(ctx, path, Fields{"email": "a@b.com", "fullName": "Ana"}, false))
		require.NoError(t, s.Set(ctx, path, Fields{"role": "student"}, true))

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "Ana", doc.Fields["fullName"])
		assert.Equal(t, "student", doc.Fields["role"])
	})

	t.Run("replace set drops other fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		path := Doc("users", "u2")
		require.NoError(t, s.Set(ctx, path, Fields{"email": "a@b.com", "fullName": "Ana"}, false))
		require.NoError(t, s.Set(ctx, path, Fields{"email": "c@d.com"}, false))

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "c@d.com", doc.Fields["email"])
		assert.NotContains(t, doc.Fields, "fullName")
	})

	t.Run("update with append is one write", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		path := Doc("tickets", "t1")
		require.NoError(t, s.Set(ctx, path, Fields{"status": "open"}, false))
		require.NoError(t, s.Update(ctx, path, Fields{
			"status":    "in_progress",
			"responses": ArrayAppend(map[string]any{"message": "hi", "isAdmin": true}),
		}))

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "in_progress", doc.Fields["status"])
		responses, ok := doc.Fields["responses"].([]any)
		require.True(t, ok)
		require.Len(t, responses, 1)
	})

	t.Run("concurrent appends are all kept", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		path := Doc("tickets", "t2")
		require.NoError(t, s.Set(ctx, path, Fields{"status": "open"}, false))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Append(ctx, path, "responses", map[string]any{"message": fmt.Sprintf("r%d", i)}))
			}(i)
		}
		wg.Wait()

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		responses, _ := doc.Fields["responses"].([]any)
		assert.Len(t, responses, n)
	})

	t.Run("list orders and limits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		coll := Collection("courses", "c1", "lessons")
		for i, order := range []int{3, 1, 2} {
			require.NoError(t, s.Set(ctx, Doc(coll, fmt.Sprintf("l%d", i)), Fields{"order": order}, false))
		}
		require.NoError(t, s.Set(ctx, Doc(coll, "unordered"), Fields{"title": "draft"}, false))

		docs, err := s.List(ctx, coll, Query{OrderBy: "order"})
		require.NoError(t, err)
		require.Len(t, docs, 4)
		assert.Equal(t, []string{"l1", "l2", "l0", "unordered"}, ids(docs))

		docs, err = s.List(ctx, coll, Query{OrderBy: "order", Descending: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"l0", "l2"}, ids(docs))
	})

	t.Run("delete batch removes every path", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		coll := Collection("communityMessages", "geral", "messages")
		var paths []string
		for i := 0; i < 5; i++ {
			path := Doc(coll, fmt.Sprintf("m%d", i))
			require.NoError(t, s.Set(ctx, path, Fields{"text": "x"}, false))
			paths = append(paths, path)
		}
		require.NoError(t, s.DeleteBatch(ctx, paths[:4]))

		docs, err := s.List(ctx, coll, Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"m4"}, ids(docs))
	})

	t.Run("delete batch rejects oversize batches", func(t *testing.T) {
		s := newStore(t)
		paths := make([]string, MaxBatchSize+1)
		for i := range paths {
			paths[i] = Doc("tickets", fmt.Sprintf("t%d", i))
		}
		require.Error(t, s.DeleteBatch(context.Background(), paths))
	})

	t.Run("invalid paths are rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Get(ctx, "tickets")
		require.ErrorIs(t, err, ErrInvalidPath)
		_, err = s.List(ctx, "courses/c1", Query{})
		require.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("subscribe delivers initial and later snapshots", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Doc("tickets", "a"), Fields{"subject": "a"}, false))

		snapshots := make(chan []Document, 16)
		sub := s.Subscribe("tickets", Query{}, func(docs []Document) { snapshots <- docs }, func(error) {})
		defer sub.Cancel()

		first := waitSnapshot(t, snapshots, func(docs []Document) bool { return len(docs) == 1 })
		assert.Equal(t, "a", first[0].ID)

		require.NoError(t, s.Set(ctx, Doc("tickets", "b"), Fields{"subject": "b"}, false))
		waitSnapshot(t, snapshots, func(docs []Document) bool { return len(docs) == 2 })
	})
}

func waitSnapshot(t *testing.T, ch <-chan []Document, match func([]Document) bool) []Document {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case docs := <-ch:
			if match(docs) {
				return docs
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = doc.ID
	}
	return out
}

var errInjected = errors.New("injected")
