package community

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"astrixo/admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRoom(t *testing.T, s store.Store, categoryID string) *Room {
	t.Helper()
	room := NewService(s, 0).OpenRoom(categoryID)
	t.Cleanup(room.Close)
	require.Eventually(t, func() bool { return room.Snapshot().State.String() == "ready" }, time.Second, 5*time.Millisecond)
	return room
}

func TestRoomOrdersMessagesOldestFirst(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, messagePath("geral", "b"), store.Fields{"text": "segunda", "createdAt": base.Add(time.Minute)}, false))
	require.NoError(t, s.Set(ctx, messagePath("geral", "a"), store.Fields{"text": "primeira", "createdAt": base}, false))

	room := openRoom(t, s, "geral")
	items := room.Snapshot().Items
	require.Len(t, items, 2)
	assert.Equal(t, "primeira", items[0].Text)
	assert.Equal(t, "segunda", items[1].Text)
}

func TestSendAppearsOnce(t *testing.T) {
	s := store.NewMemoryStore()
	room := openRoom(t, s, "geral")
	composer := room.NewComposer(admin)

	msg, err := composer.Send(context.Background(), "  Bem-vindos!  ")
	require.NoError(t, err)
	assert.Equal(t, "Bem-vindos!", msg.Text)
	assert.False(t, composer.Sending())

	require.Eventually(t, func() bool {
		items := room.Snapshot().Items
		return len(items) == 1 && !items[0].Pending
	}, time.Second, 5*time.Millisecond)

	stored := room.Snapshot().Items[0]
	assert.Equal(t, msg.ID, stored.ID)
	assert.Equal(t, "Fabrício", stored.UserName)
	assert.True(t, stored.IsAdmin)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestSendRejectsBlankText(t *testing.T) {
	room := openRoom(t, store.NewMemoryStore(), "geral")
	_, err := room.NewComposer(admin).Send(context.Background(), " \n ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, room.Snapshot().Items)
}

// slowStore holds Set until release is closed.
type slowStore struct {
	store.Store
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) Set(ctx context.Context, path string, fields store.Fields, merge bool) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.Store.Set(ctx, path, fields, merge)
}

func TestComposerAllowsOneSendInFlight(t *testing.T) {
	slow := &slowStore{Store: store.NewMemoryStore(), started: make(chan struct{}), release: make(chan struct{})}
	room := openRoom(t, slow, "geral")
	composer := room.NewComposer(admin)

	done := make(chan error, 1)
	go func() {
		_, err := composer.Send(context.Background(), "primeira")
		done <- err
	}()
	<-slow.started
	assert.True(t, composer.Sending())

	_, err := composer.Send(context.Background(), "segunda")
	require.ErrorIs(t, err, ErrSendInFlight)

	// A second composer on the same room is independent.
	other := room.NewComposer(admin)
	assert.False(t, other.Sending())

	close(slow.release)
	require.NoError(t, <-done)
	assert.False(t, composer.Sending())
}

type failingSet struct {
	store.Store
}

func (failingSet) Set(context.Context, string, store.Fields, bool) error {
	return errors.New("offline")
}

func TestFailedSendIsRemoved(t *testing.T) {
	room := openRoom(t, failingSet{store.NewMemoryStore()}, "geral")
	_, err := room.NewComposer(admin).Send(context.Background(), "oi")
	require.Error(t, err)
	assert.Empty(t, room.Snapshot().Items)
}

func TestClosedRoomStopsUpdating(t *testing.T) {
	s := store.NewMemoryStore()
	room := openRoom(t, s, "geral")
	room.Close()
	room.Close()

	seedMessage(t, s, "geral", "late", other, "depois")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, room.Snapshot().Items)
}
