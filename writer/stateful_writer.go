package writer

import (
	"sync"

	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/history"
)

// RelevanceFunc decides whether a sample is relevant to a given reader,
// both when the reader is matched against existing history and when a
// new sample is added for an already-matched reader. The zero value (nil) means every sample is relevant
// to every reader, the common case for simple pub/sub without content
// filtering.
type RelevanceFunc func(readerGUID guid.GUID, change *history.CacheChange) bool

// NotifyFunc is invoked whenever new unsent work exists, per
// unsent_change_add's contract to notify the async sender.
type NotifyFunc func()

// StatefulWriter aggregates a writer's history cache and its matched
// reader proxies, and answers "acked by all?". Matching a reader is
// idempotent on GUID equality; no operation here performs I/O.
type StatefulWriter struct {
	mu       sync.RWMutex
	history  *history.HistoryCache
	proxies  map[guid.GUID]*ReaderProxy
	relevant RelevanceFunc
	notify   NotifyFunc
}

// NewStatefulWriter creates a writer over the given history cache. A
// nil relevant func means every sample is relevant to every reader. A
// nil notify func is a no-op (useful in tests that poll instead).
func NewStatefulWriter(h *history.HistoryCache, relevant RelevanceFunc, notify NotifyFunc) *StatefulWriter {
	if relevant == nil {
		relevant = func(guid.GUID, *history.CacheChange) bool { return true }
	}
	if notify == nil {
		notify = func() {}
	}
	return &StatefulWriter{
		history:  h,
		proxies:  make(map[guid.GUID]*ReaderProxy),
		relevant: relevant,
		notify:   notify,
	}
}

// History returns the writer's backing history cache.
func (w *StatefulWriter) History() *history.HistoryCache {
	return w.history
}

// MatchedReaderAdd inserts proxy if its reader GUID is not already
// matched. For every existing sample, a ChangeForReader entry is
// created in UNSENT for samples relevant to the new reader. Reports
// false on a duplicate GUID.
func (w *StatefulWriter) MatchedReaderAdd(proxy *ReaderProxy) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.proxies[proxy.GUID()]; exists {
		return false
	}
	w.proxies[proxy.GUID()] = proxy

	for _, change := range w.history.Changes() {
		proxy.addEntry(change.SequenceNumber, w.relevant(proxy.GUID(), change))
	}
	return true
}

// MatchedReaderRemove removes the proxy for readerGUID. Reports
// whether a proxy was actually removed.
func (w *StatefulWriter) MatchedReaderRemove(readerGUID guid.GUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.proxies[readerGUID]; !exists {
		return false
	}
	delete(w.proxies, readerGUID)
	return true
}

// MatchedReaderLookup returns the proxy matched to readerGUID, if any.
func (w *StatefulWriter) MatchedReaderLookup(readerGUID guid.GUID) (*ReaderProxy, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.proxies[readerGUID]
	return p, ok
}

// MatchedReaders returns a snapshot of every currently matched proxy.
func (w *StatefulWriter) MatchedReaders() []*ReaderProxy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*ReaderProxy, 0, len(w.proxies))
	for _, p := range w.proxies {
		out = append(out, p)
	}
	return out
}

// IsAckedByAll reports whether seq is ACKNOWLEDGED by, or irrelevant
// to, every currently matched reader. Never blocks.
func (w *StatefulWriter) IsAckedByAll(seq guid.SequenceNumber) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, proxy := range w.proxies {
		if !proxy.isAcknowledgedOrIrrelevant(seq) {
			return false
		}
	}
	return true
}

// UnsentChangeAdd appends change to the history cache and, for each
// matched reader to which it is relevant, creates a ChangeForReader in
// UNSENT. Notifies the async sender that new work exists.
func (w *StatefulWriter) UnsentChangeAdd(change *history.CacheChange) error {
	if err := w.history.Add(change); err != nil {
		return err
	}

	w.mu.RLock()
	for _, proxy := range w.proxies {
		proxy.addEntry(change.SequenceNumber, w.relevant(proxy.GUID(), change))
	}
	w.mu.RUnlock()

	w.notify()
	return nil
}

// UnsentChangesNotEmpty iterates every matched reader and returns its
// unsent entries. Intended to be called by a timed collaborator that
// periodically re-submits unsent work to the async sender.
func (w *StatefulWriter) UnsentChangesNotEmpty() map[guid.GUID][]*ChangeForReader {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[guid.GUID][]*ChangeForReader)
	for readerGUID, proxy := range w.proxies {
		if unsent := proxy.UnsentChanges(); len(unsent) > 0 {
			out[readerGUID] = unsent
		}
	}
	return out
}
