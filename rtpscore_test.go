package rtpscore

import (
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	rtpscrypto "github.com/rtps-io/rtpscore/crypto"
	"github.com/rtps-io/rtpscore/guid"
	"github.com/rtps-io/rtpscore/transport"
	rtpswriter "github.com/rtps-io/rtpscore/writer"
)

func newTestKeyMaterialForFacade(t *testing.T, senderKeyID uint32) *rtpscrypto.KeyMaterial {
	t.Helper()
	km := &rtpscrypto.KeyMaterial{TransformationKind: 1, SenderKeyID: senderKeyID}
	_, err := rand.Read(km.MasterSenderKey[:])
	require.NoError(t, err)
	_, err = rand.Read(km.MasterSalt[:])
	require.NoError(t, err)
	return km
}

func newLoopbackListener(t *testing.T) (*net.UDPConn, transport.Locator) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, transport.LocatorFromUDPAddr(conn.LocalAddr().(*net.UDPAddr))
}

func TestWriteDeliversToReaderAndAcknowledgmentUnblocksWait(t *testing.T) {
	p, err := New(NewOptions())
	require.NoError(t, err)
	defer p.Close()

	readerConn, readerLocator := newLoopbackListener(t)
	readerGUID := guid.Generate()

	w := p.CreateWriter(nil)
	require.True(t, w.MatchedReaderAdd(rtpswriter.NewReaderProxy(readerGUID, []transport.Locator{readerLocator})))

	seq, err := w.Write([]byte("hello reader"))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	readerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := readerConn.ReadFrom(buf)
	require.NoError(t, err)

	packet, err := transport.ParsePacket(buf[:n])
	require.NoError(t, err)
	require.Equal(t, transport.PacketKindData, packet.Kind)
	require.Equal(t, []byte("hello reader"), packet.Data)

	require.False(t, w.WaitForAcknowledgments(seq, 30*time.Millisecond))

	require.True(t, w.HandleAckNack(readerGUID, seq.Next(), nil))
	require.True(t, w.WaitForAcknowledgments(seq, time.Second))
}

func TestEncryptedWriterProducesOpaqueWireBytes(t *testing.T) {
	p, err := New(NewOptions())
	require.NoError(t, err)
	defer p.Close()

	readerConn, readerLocator := newLoopbackListener(t)
	readerGUID := guid.Generate()

	const senderKeyID = 0xAABBCCDD
	km := newTestKeyMaterialForFacade(t, senderKeyID)
	p.RegisterKeyMaterial(senderKeyID, km)

	w := p.CreateWriter(nil)
	w.EnableCrypto(senderKeyID)
	require.True(t, w.MatchedReaderAdd(rtpswriter.NewReaderProxy(readerGUID, []transport.Locator{readerLocator})))

	plaintext := []byte("top secret sample")
	_, err = w.Write(plaintext)
	require.NoError(t, err)

	buf := make([]byte, 2048)
	readerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := readerConn.ReadFrom(buf)
	require.NoError(t, err)

	packet, err := transport.ParsePacket(buf[:n])
	require.NoError(t, err)
	require.NotEqual(t, plaintext, packet.Data)

	decoded, terr := p.transform.DecodeSerializedPayload(packet.Data, km)
	require.Nil(t, terr)
	require.Equal(t, plaintext, decoded)
}

func TestHandleAckNackUnmatchedReaderReturnsFalse(t *testing.T) {
	p, err := New(NewOptions())
	require.NoError(t, err)
	defer p.Close()

	w := p.CreateWriter(nil)
	require.False(t, w.HandleAckNack(guid.Generate(), 1, nil))
}

func TestRemoveWriterStopsAsyncDelivery(t *testing.T) {
	p, err := New(NewOptions())
	require.NoError(t, err)
	defer p.Close()

	readerConn, readerLocator := newLoopbackListener(t)
	readerGUID := guid.Generate()

	w := p.CreateWriter(nil)
	require.True(t, w.MatchedReaderAdd(rtpswriter.NewReaderProxy(readerGUID, []transport.Locator{readerLocator})))
	p.RemoveWriter(w.GUID())

	_, err = w.Write([]byte("should never arrive"))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	readerConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = readerConn.ReadFrom(buf)
	require.Error(t, err)
}
