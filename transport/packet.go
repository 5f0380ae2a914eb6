// This file defines the wire Packet framing used to carry an encoded
// RTPS submessage between participants.
package transport

import "errors"

// PacketKind identifies what an RTPS submessage carries, used to
// route an inbound packet to the right handler.
type PacketKind byte

const (
	// PacketKindData carries one or more serialized CacheChanges.
	PacketKindData PacketKind = iota + 1
	// PacketKindGap informs a reader that a range of sequence numbers
	// will never be sent.
	PacketKindGap
	// PacketKindHeartbeat announces the writer's available sequence
	// number range, soliciting ACKs or NACKs.
	PacketKindHeartbeat
	// PacketKindAckNack carries a reader's acked/requested sequence
	// number sets back to the writer.
	PacketKindAckNack
)

// Packet is the unit of transmission: a submessage kind and its
// payload, which for PacketKindData is the crypto transform's encoded
// frame.
type Packet struct {
	Kind PacketKind
	Data []byte
}

// Serialize renders the packet as [kind(1)][data(variable)].
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("transport: packet data is nil")
	}
	out := make([]byte, 1+len(p.Data))
	out[0] = byte(p.Kind)
	copy(out[1:], p.Data)
	return out, nil
}

// ParsePacket parses the wire form produced by Serialize.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) < 1 {
		return nil, errors.New("transport: packet too short")
	}
	p := &Packet{
		Kind: PacketKind(raw[0]),
		Data: make([]byte, len(raw)-1),
	}
	copy(p.Data, raw[1:])
	return p, nil
}
