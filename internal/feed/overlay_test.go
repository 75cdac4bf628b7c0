package feed

import (
	"context"
	"testing"

	"astrixo/admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIsNeverDuplicated(t *testing.T) {
	s := store.NewMemoryStore()
	put(t, s, "a", 1, "first")
	f := startItems(t, s)
	waitFor(t, f, func(s Snapshot[item]) bool { return s.State == Ready })

	f.Insert("m1", item{ID: "b", Rank: 2, Label: "optimistic"})
	snap := f.Snapshot()
	assert.Equal(t, []string{"first", "optimistic"}, labels(snap.Items))

	put(t, s, "b", 2, "confirmed")
	f.Settle("m1")
	snap = waitFor(t, f, func(s Snapshot[item]) bool {
		return len(s.Items) == 2 && s.Items[1].Label == "confirmed"
	})
	assert.Equal(t, []string{"first", "confirmed"}, labels(snap.Items))
	assert.Equal(t, 0, f.Pending())
}

func TestPatchAppliesUntilConfirmed(t *testing.T) {
	s := store.NewMemoryStore()
	put(t, s, "a", 1, "open")
	f := startItems(t, s)
	waitFor(t, f, func(s Snapshot[item]) bool { return s.State == Ready })

	setLabel := func(it item) item { it.Label = "in_progress"; return it }
	confirmed := func(it item) bool { return it.Label == "in_progress" }
	f.Patch("m1", "a", setLabel, confirmed)
	assert.Equal(t, []string{"in_progress"}, labels(f.Snapshot().Items))

	// An unrelated change keeps the patch on top of the stale record.
	put(t, s, "z", 9, "other")
	snap := waitFor(t, f, func(s Snapshot[item]) bool { return len(s.Items) == 2 })
	assert.Equal(t, []string{"in_progress", "other"}, labels(snap.Items))
	assert.Equal(t, 1, f.Pending())

	require.NoError(t, s.Update(context.Background(), store.Doc("items", "a"), store.Fields{"label": "in_progress"}))
	f.Settle("m1")
	require.Eventually(t, func() bool { return f.Pending() == 0 }, timeout, tick)
	assert.Equal(t, []string{"in_progress", "other"}, labels(f.Snapshot().Items))
}

func TestDiscardRevertsPatch(t *testing.T) {
	s := store.NewMemoryStore()
	put(t, s, "a", 1, "open")
	f := startItems(t, s)
	waitFor(t, f, func(s Snapshot[item]) bool { return s.State == Ready })

	f.Patch("m1", "a", func(it item) item { it.Label = "closed"; return it }, nil)
	assert.Equal(t, []string{"closed"}, labels(f.Snapshot().Items))

	f.Discard("m1")
	assert.Equal(t, []string{"open"}, labels(f.Snapshot().Items))
	assert.Equal(t, 0, f.Pending())
}

func TestPatchWithoutPredicateClearsOnSnapshotAfterSettle(t *testing.T) {
	s := store.NewMemoryStore()
	put(t, s, "a", 1, "open")
	f := startItems(t, s)
	waitFor(t, f, func(s Snapshot[item]) bool { return s.State == Ready })

	f.Patch("m1", "a", func(it item) item { it.Label = "resolved"; return it }, nil)
	f.Settle("m1")
	assert.Equal(t, 1, f.Pending())

	require.NoError(t, s.Update(context.Background(), store.Doc("items", "a"), store.Fields{"label": "resolved"}))
	require.Eventually(t, func() bool { return f.Pending() == 0 }, timeout, tick)
	assert.Equal(t, []string{"resolved"}, labels(f.Snapshot().Items))
}

func TestOverlayResortsItems(t *testing.T) {
	s := store.NewMemoryStore()
	put(t, s, "a", 1, "first")
	put(t, s, "b", 2, "second")
	f := startItems(t, s)
	waitFor(t, f, func(s Snapshot[item]) bool { return len(s.Items) == 2 })

	f.Patch("m1", "b", func(it item) item { it.Rank = 0; return it }, nil)
	assert.Equal(t, []string{"second", "first"}, labels(f.Snapshot().Items))
}

// manualStore hands snapshots to the feed only when the test delivers them.
type manualStore struct {
	store.Store
	onChange func([]store.Document)
}

func (m *manualStore) Subscribe(_ string, _ store.Query, onChange func([]store.Document), _ func(error)) store.Subscription {
	m.onChange = onChange
	return manualSubscription{}
}

func (m *manualStore) deliver(docs ...store.Document) {
	m.onChange(docs)
}

type manualSubscription struct{}

func (manualSubscription) Cancel() {}

func itemDoc(id string, rank int, label string) store.Document {
	return store.Document{ID: id, Path: store.Doc("items", id), Fields: store.Fields{"rank": rank, "label": label}}
}

func TestSettledPatchYieldsToSupersedingSnapshot(t *testing.T) {
	m := &manualStore{}
	f := startItems(t, m)
	m.deliver(itemDoc("a", 1, "open"))

	f.Patch("m1", "a", func(it item) item { it.Label = "resolved"; return it }, func(it item) bool { return it.Label == "resolved" })
	f.Settle("m1")
	assert.Equal(t, []string{"resolved"}, labels(f.Snapshot().Items))

	// Another writer changed the record before this feed saw "resolved".
	m.deliver(itemDoc("a", 1, "closed"))
	assert.Equal(t, []string{"closed"}, labels(f.Snapshot().Items))
	assert.Equal(t, 0, f.Pending())
}

func TestUnsettledPatchSurvivesUnconfirmedSnapshot(t *testing.T) {
	m := &manualStore{}
	f := startItems(t, m)
	m.deliver(itemDoc("a", 1, "open"))

	f.Patch("m1", "a", func(it item) item { it.Label = "resolved"; return it }, func(it item) bool { return it.Label == "resolved" })
	m.deliver(itemDoc("a", 1, "open"))
	assert.Equal(t, []string{"resolved"}, labels(f.Snapshot().Items))
	assert.Equal(t, 1, f.Pending())
}

func TestSettledPatchDroppedWhenRecordDisappears(t *testing.T) {
	m := &manualStore{}
	f := startItems(t, m)
	m.deliver(itemDoc("a", 1, "first"), itemDoc("b", 2, "second"))

	f.Patch("m1", "b", func(it item) item { it.Label = "closed"; return it }, nil)
	f.Settle("m1")
	require.Equal(t, 1, f.Pending())

	m.deliver(itemDoc("a", 1, "first"))
	assert.Equal(t, 0, f.Pending())
	assert.Equal(t, []string{"first"}, labels(f.Snapshot().Items))
}
