package tracker

import (
	"sort"
	"sync"
)

// ReceiveTracker records which sent indices have not yet been observed by the
// consumer. An index is counted as received at most once; duplicate receipts
// are rejected.
type ReceiveTracker struct {
	mu            sync.Mutex
	pending       map[int64]struct{}
	totalReceived int64
}

func NewReceiveTracker() *ReceiveTracker {
	return &ReceiveTracker{pending: make(map[int64]struct{})}
}

// AddPending marks an index as sent and awaiting receipt. Callers only add an
// index on its first send, so an index that was already received is never
// re-added.
func (t *ReceiveTracker) AddPending(index int64) {
	t.mu.Lock()
	t.pending[index] = struct{}{}
	t.mu.Unlock()
}

// RemovePending removes an index from the pending set. It returns true only
// for a genuine first-time receipt; duplicates and unknown indices return
// false and leave all counts untouched.
func (t *ReceiveTracker) RemovePending(index int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[index]; !ok {
		return false
	}
	delete(t.pending, index)
	t.totalReceived++
	return true
}

// TotalReceived returns the number of distinct indices received so far.
func (t *ReceiveTracker) TotalReceived() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalReceived
}

// PendingSample returns the current pending count along with up to limit of
// the smallest pending indices, for diagnostic logging. State is not mutated.
func (t *ReceiveTracker) PendingSample(limit int) (count int64, sample []int64) {
	t.mu.Lock()
	all := make([]int64, 0, len(t.pending))
	for index := range t.pending {
		all = append(all, index)
	}
	t.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	count = int64(len(all))
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return count, all
}
