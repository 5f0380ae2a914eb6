// Package transport implements the datagram transport abstraction this
// core sends through and receives from. This file defines the
// Transport interface and packet handler type.
package transport

// PacketHandler processes an inbound packet received from a locator.
// Handlers are invoked concurrently, one goroutine per packet.
type PacketHandler func(packet *Packet, from Locator) error

// Transport is the consumed collaborator the async sender writes to.
// Transport selection, routing, NAT traversal, and retries live
// outside this core; an implementation just needs to move bytes to
// and from a Locator.
type Transport interface {
	// Send transmits packet to the given locator.
	Send(packet *Packet, to Locator) error

	// Close shuts down the transport and releases its resources.
	Close() error

	// LocalLocator returns the locator this transport is reachable at.
	LocalLocator() Locator

	// RegisterHandler associates a handler with a submessage kind.
	// Later registrations for the same kind replace earlier ones.
	RegisterHandler(kind PacketKind, handler PacketHandler)
}
