package writer

import (
	"fmt"

	"github.com/rtps-io/rtpscore/guid"
)

// Status is the lifecycle state of a single (reader, sample) relation.
type Status uint8

const (
	// Unsent means the entry has not yet been handed to the transport.
	Unsent Status = iota
	// Underway means the sample is in flight to the reader.
	Underway
	// Acknowledged is terminal: the reader has confirmed receipt.
	Acknowledged
	// Unacknowledged means the sample was sent but not yet confirmed,
	// and no retransmission has been requested.
	Unacknowledged
	// Requested means the reader NACKed the sample and it is queued
	// for retransmission.
	Requested
)

func (s Status) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Underway:
		return "UNDERWAY"
	case Acknowledged:
		return "ACKNOWLEDGED"
	case Unacknowledged:
		return "UNACKNOWLEDGED"
	case Requested:
		return "REQUESTED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ChangeForReader is the per (reader, sample) relation's lifecycle
// status. A sample irrelevant to a reader gets no ChangeForReader at
// all (see ReaderProxy.addEntry), so every entry that exists is
// relevant by construction.
//
// Transitions:
//
//	UNSENT --send--> UNDERWAY --ack--> ACKNOWLEDGED
//	                    |
//	                    +--nack--> UNACKNOWLEDGED --nack-req--> REQUESTED --resend--> UNDERWAY
//
// ACKNOWLEDGED is terminal for a given sample.
type ChangeForReader struct {
	SequenceNumber guid.SequenceNumber
	Status         Status
}

// Send transitions an UNSENT or REQUESTED entry to UNDERWAY.
func (c *ChangeForReader) Send() {
	if c.Status == Unsent || c.Status == Requested {
		c.Status = Underway
	}
}

// Ack transitions an entry in any state to the terminal ACKNOWLEDGED
// state. Once ACKNOWLEDGED, further calls are no-ops: ack monotonicity
// must hold.
func (c *ChangeForReader) Ack() {
	if c.Status != Acknowledged {
		c.Status = Acknowledged
	}
}

// Nack transitions an UNDERWAY entry to UNACKNOWLEDGED.
func (c *ChangeForReader) Nack() {
	if c.Status == Underway {
		c.Status = Unacknowledged
	}
}

// Request re-arms an UNACKNOWLEDGED or UNDERWAY entry as REQUESTED,
// per requested_changes_set in spec.md §4.1.
func (c *ChangeForReader) Request() {
	if c.Status == Unacknowledged || c.Status == Underway {
		c.Status = Requested
	}
}
