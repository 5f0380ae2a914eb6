package rtpscore

import (
	"sync"
	"time"

	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/history"
	"github.com/rtps-io/rtpscore/limits"
	rtpswriter "github.com/rtps-io/rtpscore/writer"
)

// ackPollInterval is how often WaitForAcknowledgments re-checks
// IsAckedByAll while waiting. IsAckedByAll never blocks, so polling is
// the only option short of threading a condition variable through
// every ReaderProxy for a single caller.
const ackPollInterval = 10 * time.Millisecond

// Writer is the application-facing handle for a single StatefulWriter
// owned by a Participant. It assigns sequence numbers, optionally
// encrypts samples before the async sender hands them to the
// transport, and exposes the acknowledgment-wait contract from
// spec.md §6.
type Writer struct {
	guid        guid.GUID
	stateful    *rtpswriter.StatefulWriter
	participant *Participant

	mu          sync.Mutex
	nextSeq     guid.SequenceNumber
	hasCrypto   bool
	senderKeyID uint32
}

// GUID returns the writer's identity.
func (w *Writer) GUID() guid.GUID {
	return w.guid
}

// EnableCrypto marks this writer's samples for encryption under
// senderKeyID before transmission. The participant must already have
// matching KeyMaterial registered via Participant.RegisterKeyMaterial;
// EnableCrypto itself does no key-material lookup, since registration
// can happen in either order.
func (w *Writer) EnableCrypto(senderKeyID uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hasCrypto = true
	w.senderKeyID = senderKeyID
}

// encode applies the writer's crypto transform, if enabled, to a
// serialized payload. It is the sender.EncodeFunc wired into this
// writer's ManagedWriter.
func (w *Writer) encode(payload []byte) ([]byte, error) {
	w.mu.Lock()
	hasCrypto := w.hasCrypto
	senderKeyID := w.senderKeyID
	w.mu.Unlock()

	if !hasCrypto {
		return payload, nil
	}

	encoded, terr := w.participant.transform.EncodeSerializedPayload(payload, senderKeyID)
	if terr != nil {
		return nil, terr
	}
	return encoded, nil
}

// MatchedReaderAdd matches a new reader to this writer, backfilling
// ChangeForReader entries in UNSENT for every sample already in
// history that is relevant to it.
func (w *Writer) MatchedReaderAdd(proxy *rtpswriter.ReaderProxy) bool {
	return w.stateful.MatchedReaderAdd(proxy)
}

// MatchedReaderRemove unmatches a reader.
func (w *Writer) MatchedReaderRemove(readerGUID guid.GUID) bool {
	return w.stateful.MatchedReaderRemove(readerGUID)
}

// MatchedReaders returns a snapshot of every currently matched proxy.
func (w *Writer) MatchedReaders() []*rtpswriter.ReaderProxy {
	return w.stateful.MatchedReaders()
}

// HandleAckNack applies a reader's acknowledgment/request state to the
// proxy matched to readerGUID: every entry with sequence number below
// ackedUpTo is ACKNOWLEDGED, and every sequence number named in
// requested whose entry is UNACKNOWLEDGED or UNDERWAY moves to
// REQUESTED so the async sender resends it. This is
// the reader-proxy side of the "delivery of inbound ACK/NACK batches"
// consumed interface from spec.md §6; decoding an ACKNACK submessage
// off the wire into these two arguments is a transport-layer concern
// outside this package. It reports whether readerGUID was a matched
// reader.
func (w *Writer) HandleAckNack(readerGUID guid.GUID, ackedUpTo guid.SequenceNumber, requested []guid.SequenceNumber) bool {
	proxy, ok := w.stateful.MatchedReaderLookup(readerGUID)
	if !ok {
		return false
	}
	proxy.AckedChangesSet(ackedUpTo)
	if len(requested) > 0 {
		proxy.RequestedChangesSet(requested)
		w.participant.sender.Wake()
	}
	return true
}

// Write adds payload as a new Alive sample, assigning it the next
// sequence number, and returns that sequence number. Payloads larger
// than limits.DefaultFragmentSize are recorded with a Fragmentation
// descriptor; the throughput controller admits such a change fragment
// by fragment rather than all-or-nothing.
func (w *Writer) Write(payload []byte) (guid.SequenceNumber, error) {
	if err := limits.ValidateSerializedPayload(payload); err != nil {
		return guid.SequenceNumberUnknown, err
	}

	var frag *history.Fragmentation
	if len(payload) > limits.DefaultFragmentSize {
		frag = history.NewFragmentation(len(payload), limits.DefaultFragmentSize)
	}

	w.mu.Lock()
	w.nextSeq = w.nextSeq.Next()
	seq := w.nextSeq
	w.mu.Unlock()

	change := &history.CacheChange{
		SequenceNumber: seq,
		WriterGUID:     w.guid,
		Kind:           history.Alive,
		Payload:        payload,
		Fragmentation:  frag,
	}

	if err := w.stateful.UnsentChangeAdd(change); err != nil {
		return guid.SequenceNumberUnknown, err
	}
	return seq, nil
}

// WaitForAcknowledgments blocks, polling IsAckedByAll, until seq is
// acknowledged by (or irrelevant to) every currently matched reader,
// or timeout elapses. It reports which of the two happened.
func (w *Writer) WaitForAcknowledgments(seq guid.SequenceNumber, timeout time.Duration) bool {
	if w.stateful.IsAckedByAll(seq) {
		return true
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(ackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return w.stateful.IsAckedByAll(seq)
		case <-ticker.C:
			if w.stateful.IsAckedByAll(seq) {
				return true
			}
		}
	}
}
