package writer

import (
	"sort"
	"sync"

	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/transport"
)

// ReaderProxy is a stateful writer's per-matched-reader bookkeeping:
// the reader's identity, its known locators, and the set of
// ChangeForReader entries tracking every sample relevant to it.
//
// Invariants: no two entries share a sequence number; the sequence
// numbers form a (possibly sparse) subset of the writer's history.
type ReaderProxy struct {
	mu sync.RWMutex

	readerGUID guid.GUID
	locators   []transport.Locator
	entries    map[guid.SequenceNumber]*ChangeForReader
}

// NewReaderProxy creates a proxy for the given reader GUID and
// locator set.
func NewReaderProxy(readerGUID guid.GUID, locators []transport.Locator) *ReaderProxy {
	return &ReaderProxy{
		readerGUID: readerGUID,
		locators:   locators,
		entries:    make(map[guid.SequenceNumber]*ChangeForReader),
	}
}

// GUID returns the matched reader's identity.
func (p *ReaderProxy) GUID() guid.GUID {
	return p.readerGUID
}

// Locators returns the reader's known transport addresses.
func (p *ReaderProxy) Locators() []transport.Locator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]transport.Locator, len(p.locators))
	copy(out, p.locators)
	return out
}

// addEntry inserts a new UNSENT entry for seq if relevant is true. An
// irrelevant sample gets no entry at all, per spec.md §4.2
// (unsent_change_add/is_acked_by_all: a sample irrelevant to a reader
// has no ChangeForReader for it, so isAcknowledgedOrIrrelevant treats
// its absence as satisfied). Used by StatefulWriter when matching a
// reader against existing history, or when a new sample is added
// while the reader is matched.
func (p *ReaderProxy) addEntry(seq guid.SequenceNumber, relevant bool) {
	if !relevant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[seq]; exists {
		return
	}
	p.entries[seq] = &ChangeForReader{
		SequenceNumber: seq,
		Status:         Unsent,
	}
}

// removeEntry deletes the entry for seq, e.g. when its sample is
// removed from the history cache.
func (p *ReaderProxy) removeEntry(seq guid.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, seq)
}

// ChangeForReaderLookup returns the entry for seq, if one exists.
func (p *ReaderProxy) ChangeForReaderLookup(seq guid.SequenceNumber) (*ChangeForReader, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[seq]
	return e, ok
}

// AckedChangesSet marks every entry with sequence number < n as
// ACKNOWLEDGED. Idempotent.
func (p *ReaderProxy) AckedChangesSet(n guid.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for seq, e := range p.entries {
		if seq < n {
			e.Ack()
		}
	}
}

// RequestedChangesSet transitions each named sequence number's entry
// from UNACKNOWLEDGED or UNDERWAY to REQUESTED. Sequence numbers with
// no entry are ignored.
func (p *ReaderProxy) RequestedChangesSet(seqs []guid.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, seq := range seqs {
		if e, ok := p.entries[seq]; ok {
			e.Request()
		}
	}
}

// NextUnsentChange returns the UNSENT entry with the smallest sequence
// number, if any.
func (p *ReaderProxy) NextUnsentChange() (*ChangeForReader, bool) {
	return p.nextInStatus(Unsent)
}

// NextRequestedChange returns the REQUESTED entry with the smallest
// sequence number, if any.
func (p *ReaderProxy) NextRequestedChange() (*ChangeForReader, bool) {
	return p.nextInStatus(Requested)
}

func (p *ReaderProxy) nextInStatus(status Status) (*ChangeForReader, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *ChangeForReader
	for _, e := range p.entries {
		if e.Status != status {
			continue
		}
		if best == nil || e.SequenceNumber < best.SequenceNumber {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// UnsentChanges returns a sequence-ordered snapshot of every UNSENT
// entry.
func (p *ReaderProxy) UnsentChanges() []*ChangeForReader {
	return p.snapshotInStatus(Unsent)
}

// RequestedChanges returns a sequence-ordered snapshot of every
// REQUESTED entry.
func (p *ReaderProxy) RequestedChanges() []*ChangeForReader {
	return p.snapshotInStatus(Requested)
}

func (p *ReaderProxy) snapshotInStatus(status Status) []*ChangeForReader {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*ChangeForReader, 0)
	for _, e := range p.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// isAcknowledgedOrIrrelevant reports whether seq's entry is
// ACKNOWLEDGED, or absent because the sample was deemed irrelevant to
// this reader when the entry would have been created.
func (p *ReaderProxy) isAcknowledgedOrIrrelevant(seq guid.SequenceNumber) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[seq]
	if !ok {
		return true
	}
	return e.Status == Acknowledged
}
