// This file provides a UDP-based Transport implementation: a single
// concrete transport kept so the send path has something real to
// exercise end to end, per spec.md §1's Non-goal of transport
// selection/routing (not a Non-goal of having any transport at all).
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPTransport implements Transport over a single UDP socket.
type UDPTransport struct {
	conn     net.PacketConn
	local    Locator
	handlers map[PacketKind]PacketHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewUDPTransport binds a UDP socket at listenAddr and starts its
// receive loop in the background.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	local := Locator{}
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = LocatorFromUDPAddr(udpAddr)
	}

	t := &UDPTransport{
		conn:     conn,
		local:    local,
		handlers: make(map[PacketKind]PacketHandler),
		ctx:      ctx,
		cancel:   cancel,
	}

	go t.receiveLoop()

	return t, nil
}

// RegisterHandler associates handler with kind, replacing any prior
// registration.
func (t *UDPTransport) RegisterHandler(kind PacketKind, handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = handler
}

// Send serializes packet and writes it to the UDP socket addressed at
// to.
func (t *UDPTransport) Send(packet *Packet, to Locator) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}
	_, err = t.conn.WriteTo(data, to.UDPAddr())
	return err
}

// Close stops the receive loop and closes the underlying socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// LocalLocator returns the locator this transport is bound to.
func (t *UDPTransport) LocalLocator() Locator {
	return t.local
}

func (t *UDPTransport) receiveLoop() {
	buf := make([]byte, 65536)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			logrus.WithError(err).Warn("transport: udp read failed")
			continue
		}

		packet, err := ParsePacket(buf[:n])
		if err != nil {
			logrus.WithError(err).Debug("transport: dropping malformed packet")
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		from := LocatorFromUDPAddr(udpAddr)

		t.mu.RLock()
		handler, exists := t.handlers[packet.Kind]
		t.mu.RUnlock()

		if exists {
			go func() {
				if err := handler(packet, from); err != nil {
					logrus.WithError(err).Warn("transport: packet handler failed")
				}
			}()
		}
	}
}
