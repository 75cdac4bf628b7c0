package feed

// entry is one pending local mutation. Exactly one of insert or patch is set.
type entry[T any] struct {
	mutationID string
	recordID   string
	insert     *T
	patch      func(T) T
	confirm    func(T) bool
	settled    bool
	// settledAt counts the snapshots received before Settle was called.
	settledAt uint64
}

// Patch overlays apply on the record with recordID until the store confirms
// the mutation. confirm reports whether an authoritative record already
// reflects it; otherwise the entry clears on the first snapshot after Settle.
func (f *Feed[T]) Patch(mutationID, recordID string, apply func(T) T, confirm func(T) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.removeLocked(mutationID)
	f.overlay = append(f.overlay, &entry[T]{
		mutationID: mutationID,
		recordID:   recordID,
		patch:      apply,
		confirm:    confirm,
	})
	f.rebuildLocked()
}

// Insert shows record before the store has it. It is hidden as soon as a
// snapshot carries a record with the same id, so it never appears twice.
func (f *Feed[T]) Insert(mutationID string, record T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.removeLocked(mutationID)
	rec := record
	f.overlay = append(f.overlay, &entry[T]{
		mutationID: mutationID,
		recordID:   f.opts.ID(record),
		insert:     &rec,
	})
	f.reconcileLocked()
	f.rebuildLocked()
}

// Settle marks the mutation's write as resolved. The entry stays until the
// next snapshot replaces it.
func (f *Feed[T]) Settle(mutationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, e := range f.overlay {
		if e.mutationID == mutationID {
			e.settled = true
			e.settledAt = f.snapshots
		}
	}
	if f.reconcileLocked() {
		f.rebuildLocked()
	}
}

// Discard drops a mutation whose write failed.
func (f *Feed[T]) Discard(mutationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.removeLocked(mutationID) {
		f.rebuildLocked()
	}
}

// Pending reports the number of overlay entries not yet confirmed.
func (f *Feed[T]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.overlay)
}

func (f *Feed[T]) removeLocked(mutationID string) bool {
	kept := f.overlay[:0]
	removed := false
	for _, e := range f.overlay {
		if e.mutationID == mutationID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	f.overlay = kept
	return removed
}

// reconcileLocked drops overlay entries the base snapshot confirms.
func (f *Feed[T]) reconcileLocked() bool {
	kept := f.overlay[:0]
	changed := false
	for _, e := range f.overlay {
		if f.confirmedLocked(e) {
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(f.overlay); i++ {
		f.overlay[i] = nil
	}
	f.overlay = kept
	return changed
}

// confirmedLocked reports whether e can leave the overlay. The first snapshot
// delivered after Settle is authoritative for the record whether or not it
// matches the mutation, or even still carries the record; confirm and an
// arrived insert only release an entry earlier.
func (f *Feed[T]) confirmedLocked(e *entry[T]) bool {
	if e.settled && f.snapshots > e.settledAt {
		return true
	}
	i, ok := f.byID[e.recordID]
	if !ok {
		return false
	}
	if e.insert != nil {
		return true
	}
	return e.confirm != nil && e.confirm(f.base[i])
}
