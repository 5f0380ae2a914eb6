package rtpscore

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtps-io/rtpscore/crypto"
	"github.com/rtps-io/rtpscore/flowcontrol"
	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/history"
	"github.com/rtps-io/rtpscore/sender"
	"github.com/rtps-io/rtpscore/transport"
	"github.com/rtps-io/rtpscore/writer"
)

// Options configures a Participant. The zero value is not usable;
// construct with NewOptions and override only the fields that need
// to change.
type Options struct {
	// ListenAddr is the local UDP address the participant's transport
	// binds to, e.g. "0.0.0.0:7400".
	ListenAddr string

	// MaxCachedChanges bounds each writer's history cache. Zero means
	// unbounded.
	MaxCachedChanges int

	// BytesPerPeriod and Period configure the throughput controller
	// every writer created by this participant is given. BytesPerPeriod
	// <= 0 disables the controller (every writer admits its whole
	// batch unconditionally).
	BytesPerPeriod int
	Period         time.Duration

	// MaxBatchPerWake and PeriodicWake tune the async sender; see
	// sender.WithMaxBatchPerWake and sender.WithPeriodicWake.
	MaxBatchPerWake int
	PeriodicWake    time.Duration
}

// NewOptions returns the default Options: a controller-free writer
// (no bandwidth cap), a generous batch size per wake, and no periodic
// wake (the sender runs purely event-driven).
func NewOptions() *Options {
	return &Options{
		ListenAddr:       "0.0.0.0:0",
		MaxCachedChanges: 0,
		BytesPerPeriod:   0,
		Period:           time.Second,
		MaxBatchPerWake:  sender.DefaultMaxBatchPerWake,
		PeriodicWake:     0,
	}
}

// Participant owns one transport endpoint, one async sender shared by
// every writer it creates, and one crypto transform for key material
// registered against it. It is the top-level handle an application
// holds.
type Participant struct {
	mu sync.RWMutex

	options   *Options
	transport transport.Transport
	sched     *flowcontrol.Scheduler
	sender    *sender.AsyncSender
	transform *crypto.Transform
	writers   map[guid.GUID]*Writer

	log *logrus.Entry
}

// New creates a Participant bound to options.ListenAddr and starts its
// async sender. Call Close when done.
func New(options *Options) (*Participant, error) {
	if options == nil {
		options = NewOptions()
	}

	udp, err := transport.NewUDPTransport(options.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpscore: bind transport: %w", err)
	}

	p := &Participant{
		options:   options,
		transport: udp,
		sched:     flowcontrol.NewScheduler(),
		sender:    sender.New(sender.WithMaxBatchPerWake(options.MaxBatchPerWake), sender.WithPeriodicWake(options.PeriodicWake)),
		transform: crypto.NewTransform(),
		writers:   make(map[guid.GUID]*Writer),
		log:       logrus.WithField("component", "rtpscore.Participant"),
	}
	p.sender.Start()

	return p, nil
}

// RegisterKeyMaterial associates senderKeyID with km for this
// participant's crypto transform, so any writer that encrypts under
// senderKeyID can do so, and any decode path holding the matching
// KeyMaterial can authenticate it. Registration has no expiry; callers
// that rotate key material call this again with a fresh KeyMaterial.
func (p *Participant) RegisterKeyMaterial(senderKeyID uint32, km *crypto.KeyMaterial) {
	p.transform.RegisterKeyMaterial(senderKeyID, km)
}

// CreateWriter allocates a new StatefulWriter with a fresh GUID, wires
// it into this participant's shared async sender, and returns a
// Writer handle. relevant may be nil, meaning every sample is relevant
// to every matched reader.
func (p *Participant) CreateWriter(relevant writer.RelevanceFunc) *Writer {
	g := guid.Generate()

	h := history.NewHistoryCache(p.options.MaxCachedChanges)
	sw := writer.NewStatefulWriter(h, relevant, func() { p.sender.Wake() })

	var controller *flowcontrol.ThroughputController
	if p.options.BytesPerPeriod > 0 {
		controller = flowcontrol.NewThroughputController(p.options.BytesPerPeriod, p.options.Period, p.sched, p.sender.Wake)
	}

	w := &Writer{
		guid:        g,
		stateful:    sw,
		participant: p,
	}

	p.sender.AddWriter(&sender.ManagedWriter{
		GUID:       g,
		Writer:     sw,
		Controller: controller,
		Transport:  p.transport,
		Encode:     w.encode,
	})

	p.mu.Lock()
	p.writers[g] = w
	p.mu.Unlock()

	return w
}

// RemoveWriter tears down a previously created writer: it stops
// receiving sends from the async sender and is dropped from the
// participant's bookkeeping. The writer's history is not otherwise
// touched.
func (p *Participant) RemoveWriter(writerGUID guid.GUID) {
	p.sender.RemoveWriter(writerGUID)

	p.mu.Lock()
	delete(p.writers, writerGUID)
	p.mu.Unlock()
}

// Close stops the async sender, zeroises every session key and
// registered KeyMaterial held by the crypto transform, and closes the
// underlying transport. Writers created by this participant must not
// be used afterward.
func (p *Participant) Close() error {
	p.sender.Stop()
	p.sched.Stop()
	p.sched.Wait()
	if err := p.transform.Close(); err != nil {
		return err
	}
	return p.transport.Close()
}
