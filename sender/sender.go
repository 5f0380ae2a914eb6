package sender

import (
	"sort"
	"sync"
	"time"

	"github.com/rtps-io/rtpscore/flowcontrol"
	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/history"
	"github.com/rtps-io/rtpscore/transport"
	"github.com/rtps-io/rtpscore/writer"
	"github.com/sirupsen/logrus"
)

// EncodeFunc transforms a plaintext payload before it is handed to
// the transport, typically the crypto transform's encode_serialized_payload.
// A nil EncodeFunc passes the payload through unchanged.
type EncodeFunc func(payload []byte) ([]byte, error)

// ManagedWriter is everything the async sender needs to drain one
// writer's pending work: its bookkeeping, its (optional) throughput
// controller, where to send, and how to encode.
type ManagedWriter struct {
	GUID       guid.GUID
	Writer     *writer.StatefulWriter
	Controller *flowcontrol.ThroughputController // nil admits everything
	Transport  transport.Transport
	Encode     EncodeFunc // nil passes the payload through unchanged
}

// DefaultMaxBatchPerWake bounds how many distinct changes a single
// writer may have admitted in one wake, so that one busy writer
// cannot starve the others sharing this sender.
const DefaultMaxBatchPerWake = 64

// AsyncSender is the single cooperative worker per process described
// in spec.md §4.4. It is woken by unsent_change_add, a
// throughput-controller refresh, or (optionally) a periodic timer for
// rate-limited resends, and on each wake fully runs to completion
// before suspending again.
type AsyncSender struct {
	mu      sync.RWMutex
	writers map[guid.GUID]*ManagedWriter

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	maxBatchPerWake  int
	periodicInterval time.Duration
}

// Option configures an AsyncSender at construction.
type Option func(*AsyncSender)

// WithMaxBatchPerWake overrides DefaultMaxBatchPerWake.
func WithMaxBatchPerWake(n int) Option {
	return func(s *AsyncSender) { s.maxBatchPerWake = n }
}

// WithPeriodicWake enables a periodic wake every interval, used for
// writers configured for rate-limited resends. Zero (the default)
// disables the periodic wake.
func WithPeriodicWake(interval time.Duration) Option {
	return func(s *AsyncSender) { s.periodicInterval = interval }
}

// New creates a stopped AsyncSender. Call Start to begin its worker
// goroutine.
func New(opts ...Option) *AsyncSender {
	s := &AsyncSender{
		writers:         make(map[guid.GUID]*ManagedWriter),
		wakeCh:          make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		maxBatchPerWake: DefaultMaxBatchPerWake,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddWriter registers mw for draining. Re-registering the same GUID
// replaces the prior registration.
func (s *AsyncSender) AddWriter(mw *ManagedWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[mw.GUID] = mw
}

// RemoveWriter unregisters a writer.
func (s *AsyncSender) RemoveWriter(writerGUID guid.GUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writers, writerGUID)
}

// Wake signals the worker that new work may exist. It is non-blocking
// and coalesces: multiple wakes before the worker processes them
// collapse into a single drain pass.
func (s *AsyncSender) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine. Calling Start more than once
// is a no-op.
func (s *AsyncSender) Start() {
	s.once.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Stop signals the worker to exit and waits for it to finish its
// current drain pass, if any.
func (s *AsyncSender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *AsyncSender) run() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.periodicInterval > 0 {
		ticker := time.NewTicker(s.periodicInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wakeCh:
			s.drainAll()
		case <-tick:
			s.drainAll()
		}
	}
}

// drainAll runs one full pass over every registered writer. It never
// blocks on any single transport send long enough to starve the
// others: each writer's batch is capped at maxBatchPerWake.
func (s *AsyncSender) drainAll() {
	s.mu.RLock()
	snapshot := make([]*ManagedWriter, 0, len(s.writers))
	for _, mw := range s.writers {
		snapshot = append(snapshot, mw)
	}
	s.mu.RUnlock()

	for _, mw := range snapshot {
		s.drainWriter(mw)
	}
}

func (s *AsyncSender) drainWriter(mw *ManagedWriter) {
	pending := s.pendingBatch(mw)
	if len(pending) == 0 {
		return
	}

	var admitted []*history.CacheChange
	if mw.Controller != nil {
		admitted = mw.Controller.Admit(pending)
	} else {
		admitted = pending
	}

	admittedSeqs := make(map[guid.SequenceNumber]bool, len(admitted))
	for _, ch := range admitted {
		admittedSeqs[ch.SequenceNumber] = true
	}
	if len(admittedSeqs) == 0 {
		return
	}

	for _, proxy := range mw.Writer.MatchedReaders() {
		s.sendAdmittedToProxy(mw, proxy, admittedSeqs)
	}
}

// pendingBatch collects the sequence-ordered, deduplicated set of
// changes currently UNSENT or REQUESTED for at least one matched
// reader, capped at maxBatchPerWake.
func (s *AsyncSender) pendingBatch(mw *ManagedWriter) []*history.CacheChange {
	seen := make(map[guid.SequenceNumber]bool)
	var batch []*history.CacheChange

	for _, proxy := range mw.Writer.MatchedReaders() {
		for _, e := range proxy.UnsentChanges() {
			s.addPending(mw, e.SequenceNumber, seen, &batch)
		}
		for _, e := range proxy.RequestedChanges() {
			s.addPending(mw, e.SequenceNumber, seen, &batch)
		}
	}

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].SequenceNumber < batch[j].SequenceNumber
	})

	if s.maxBatchPerWake > 0 && len(batch) > s.maxBatchPerWake {
		batch = batch[:s.maxBatchPerWake]
	}
	return batch
}

func (s *AsyncSender) addPending(mw *ManagedWriter, seq guid.SequenceNumber, seen map[guid.SequenceNumber]bool, batch *[]*history.CacheChange) {
	if seen[seq] {
		return
	}
	seen[seq] = true
	if ch, ok := mw.Writer.History().Get(seq); ok {
		*batch = append(*batch, ch)
	}
}

func (s *AsyncSender) sendAdmittedToProxy(mw *ManagedWriter, proxy *writer.ReaderProxy, admittedSeqs map[guid.SequenceNumber]bool) {
	entries := append(proxy.UnsentChanges(), proxy.RequestedChanges()...)
	for _, entry := range entries {
		if !admittedSeqs[entry.SequenceNumber] {
			continue
		}

		change, ok := mw.Writer.History().Get(entry.SequenceNumber)
		if !ok {
			continue
		}

		payload := change.Payload
		if mw.Encode != nil {
			encoded, err := mw.Encode(payload)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"writer":   mw.GUID.String(),
					"reader":   proxy.GUID().String(),
					"sequence": entry.SequenceNumber,
				}).WithError(err).Warn("sender: encode failed, skipping change")
				continue
			}
			payload = encoded
		}

		packet := &transport.Packet{Kind: transport.PacketKindData, Data: payload}
		for _, loc := range proxy.Locators() {
			if err := mw.Transport.Send(packet, loc); err != nil {
				logrus.WithFields(logrus.Fields{
					"writer":   mw.GUID.String(),
					"reader":   proxy.GUID().String(),
					"sequence": entry.SequenceNumber,
					"locator":  loc.String(),
				}).WithError(err).Warn("sender: transport send failed")
				continue
			}
		}

		entry.Send()
	}
}
