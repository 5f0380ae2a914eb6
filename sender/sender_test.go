package sender

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/history"
	"github.com/rtps-io/rtpscore/transport"
	"github.com/rtps-io/rtpscore/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every packet sent to it, and can be made to
// fail sends to a configured locator so tests can exercise the
// sender's "log and continue" contract.
type fakeTransport struct {
	mu     sync.Mutex
	local  transport.Locator
	sent   []sentPacket
	failTo map[transport.Locator]bool
}

type sentPacket struct {
	to   transport.Locator
	data []byte
}

func newFakeTransport(local transport.Locator) *fakeTransport {
	return &fakeTransport{local: local, failTo: make(map[transport.Locator]bool)}
}

func (f *fakeTransport) Send(packet *transport.Packet, to transport.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to] {
		return errors.New("fake transport: simulated send failure")
	}
	f.sent = append(f.sent, sentPacket{to: to, data: packet.Data})
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) LocalLocator() transport.Locator { return f.local }

func (f *fakeTransport) RegisterHandler(transport.PacketKind, transport.PacketHandler) {}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) sentData() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p.data)
	}
	return out
}

func locatorN(n uint32) transport.Locator {
	return transport.Locator{Kind: transport.LocatorKindUDPv4, Port: n}
}

func testChange(seq guid.SequenceNumber, payload string) *history.CacheChange {
	return &history.CacheChange{
		SequenceNumber: seq,
		Kind:           history.Alive,
		Payload:        []byte(payload),
	}
}

func newManagedWriter(t *testing.T, tr transport.Transport) (*ManagedWriter, *writer.ReaderProxy) {
	t.Helper()
	h := history.NewHistoryCache(0)
	w := writer.NewStatefulWriter(h, nil, nil)

	proxy := writer.NewReaderProxy(guid.Generate(), []transport.Locator{locatorN(1)})
	require.True(t, w.MatchedReaderAdd(proxy))

	return &ManagedWriter{
		GUID:      guid.Generate(),
		Writer:    w,
		Transport: tr,
	}, proxy
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestWakeDrainsUnsentChangesToUnderway(t *testing.T) {
	tr := newFakeTransport(locatorN(0))
	mw, proxy := newManagedWriter(t, tr)

	require.NoError(t, mw.Writer.UnsentChangeAdd(testChange(1, "hello")))
	require.NoError(t, mw.Writer.UnsentChangeAdd(testChange(2, "world")))

	s := New()
	s.AddWriter(mw)
	s.Start()
	defer s.Stop()

	s.Wake()

	waitFor(t, time.Second, func() bool { return tr.sentCount() == 2 })

	assert.ElementsMatch(t, []string{"hello", "world"}, tr.sentData())

	entry, ok := proxy.ChangeForReaderLookup(1)
	require.True(t, ok)
	assert.Equal(t, writer.Underway, entry.Status)
}

func TestWakeIsCoalescedAndIdempotent(t *testing.T) {
	tr := newFakeTransport(locatorN(0))
	mw, _ := newManagedWriter(t, tr)
	require.NoError(t, mw.Writer.UnsentChangeAdd(testChange(1, "once")))

	s := New()
	s.AddWriter(mw)
	s.Start()
	defer s.Stop()

	s.Wake()
	s.Wake()
	s.Wake()

	waitFor(t, time.Second, func() bool { return tr.sentCount() >= 1 })
	time.Sleep(20 * time.Millisecond) // give any spurious extra drains a chance to happen

	assert.Equal(t, 1, tr.sentCount())
}

func TestSendFailureLogsAndContinuesToOtherWriters(t *testing.T) {
	failingTransport := newFakeTransport(locatorN(0))
	okTransport := newFakeTransport(locatorN(0))

	failingWriter, _ := newManagedWriter(t, failingTransport)
	failingTransport.failTo[locatorN(1)] = true
	require.NoError(t, failingWriter.Writer.UnsentChangeAdd(testChange(1, "dropped")))

	okWriter, _ := newManagedWriter(t, okTransport)
	require.NoError(t, okWriter.Writer.UnsentChangeAdd(testChange(1, "delivered")))

	s := New()
	s.AddWriter(failingWriter)
	s.AddWriter(okWriter)
	s.Start()
	defer s.Stop()

	s.Wake()

	waitFor(t, time.Second, func() bool { return okTransport.sentCount() == 1 })

	assert.Equal(t, 0, failingTransport.sentCount())
	assert.Equal(t, []string{"delivered"}, okTransport.sentData())
}

func TestRemoveWriterStopsFurtherDrains(t *testing.T) {
	tr := newFakeTransport(locatorN(0))
	mw, _ := newManagedWriter(t, tr)

	s := New()
	s.AddWriter(mw)
	s.RemoveWriter(mw.GUID)
	s.Start()
	defer s.Stop()

	require.NoError(t, mw.Writer.UnsentChangeAdd(testChange(1, "never sent")))
	s.Wake()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, tr.sentCount())
}

func TestMaxBatchPerWakeCapsAdmission(t *testing.T) {
	tr := newFakeTransport(locatorN(0))
	mw, _ := newManagedWriter(t, tr)
	for seq := guid.SequenceNumber(1); seq <= 5; seq++ {
		require.NoError(t, mw.Writer.UnsentChangeAdd(testChange(seq, "x")))
	}

	s := New(WithMaxBatchPerWake(2))
	s.AddWriter(mw)
	s.Start()
	defer s.Stop()

	s.Wake()
	waitFor(t, time.Second, func() bool { return tr.sentCount() == 2 })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, tr.sentCount())
}
