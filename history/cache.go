package history

import (
	"errors"
	"sort"
	"sync"

	"github.com/rtps-io/rtpscore/guid"
)

// ErrCacheFull is returned by Add when the cache is already holding
// MaxCachedChanges entries. RTPS defines no eviction policy, so the
// cache refuses the write rather than invent one.
var ErrCacheFull = errors.New("history: cache is full")

// ErrDuplicateSequenceNumber is returned by Add when a change with the
// same sequence number is already present.
var ErrDuplicateSequenceNumber = errors.New("history: duplicate sequence number")

// HistoryCache is the ordered store of CacheChanges a writer has
// produced. It is the exclusive owner of every CacheChange it holds;
// readers and reader proxies only ever look up by sequence number.
type HistoryCache struct {
	mu               sync.RWMutex
	changes          map[guid.SequenceNumber]*CacheChange
	maxCachedChanges int
}

// NewHistoryCache creates an empty cache with the given capacity
// ceiling. A maxCachedChanges of 0 means unbounded.
func NewHistoryCache(maxCachedChanges int) *HistoryCache {
	return &HistoryCache{
		changes:          make(map[guid.SequenceNumber]*CacheChange),
		maxCachedChanges: maxCachedChanges,
	}
}

// Add inserts change into the cache. It fails with
// ErrDuplicateSequenceNumber if the sequence number is already
// present, or ErrCacheFull if the cache is at capacity.
func (h *HistoryCache) Add(change *CacheChange) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.changes[change.SequenceNumber]; exists {
		return ErrDuplicateSequenceNumber
	}
	if h.maxCachedChanges > 0 && len(h.changes) >= h.maxCachedChanges {
		return ErrCacheFull
	}
	h.changes[change.SequenceNumber] = change
	return nil
}

// Get returns the change at seq, if present.
func (h *HistoryCache) Get(seq guid.SequenceNumber) (*CacheChange, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.changes[seq]
	return c, ok
}

// Remove deletes the change at seq. It reports whether a change was
// actually present. Removing a change invalidates every
// ChangeForReader that referenced it; reacting to that is the writer
// package's responsibility.
func (h *HistoryCache) Remove(seq guid.SequenceNumber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.changes[seq]; !ok {
		return false
	}
	delete(h.changes, seq)
	return true
}

// Len returns the number of changes currently cached.
func (h *HistoryCache) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.changes)
}

// MinSeq returns the smallest sequence number currently cached.
func (h *HistoryCache) MinSeq() (guid.SequenceNumber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.changes) == 0 {
		return guid.SequenceNumberUnknown, false
	}
	min := guid.SequenceNumber(0)
	first := true
	for seq := range h.changes {
		if first || seq < min {
			min = seq
			first = false
		}
	}
	return min, true
}

// MaxSeq returns the largest sequence number currently cached.
func (h *HistoryCache) MaxSeq() (guid.SequenceNumber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.changes) == 0 {
		return guid.SequenceNumberUnknown, false
	}
	var max guid.SequenceNumber
	first := true
	for seq := range h.changes {
		if first || seq > max {
			max = seq
			first = false
		}
	}
	return max, true
}

// Changes returns a sequence-ordered snapshot of every cached change.
func (h *HistoryCache) Changes() []*CacheChange {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*CacheChange, 0, len(h.changes))
	for _, c := range h.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}
