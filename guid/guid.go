package guid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GUID is a 16-byte global identifier for an RTPS participant or
// endpoint. It is comparable and totally ordered, so it can be used
// directly as a map key or sorted for deterministic iteration.
type GUID [16]byte

// Zero is the reserved "unknown" GUID.
var Zero GUID

// Generate returns a new random GUID. Two participants started
// concurrently on different hosts must not collide, so this draws
// from a CSPRNG rather than any counter scheme.
func Generate() GUID {
	id := uuid.New()
	var g GUID
	copy(g[:], id[:])
	return g
}

// IsZero reports whether g is the reserved unknown GUID.
func (g GUID) IsZero() bool {
	return g == Zero
}

// Compare returns -1, 0, or 1 as g is less than, equal to, or greater
// than other, comparing bytes in order. It gives GUID a total order
// suitable for deterministic iteration over reader/writer sets.
func (g GUID) Compare(other GUID) int {
	for i := range g {
		if g[i] != other[i] {
			if g[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String renders the GUID as lowercase hex.
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// SequenceNumber orders the samples a single writer produces.
// 0 is reserved to mean "none"; valid sequence numbers start at 1 and
// are assigned monotonically, never reused.
type SequenceNumber int64

// SequenceNumberUnknown is the reserved "none" sequence number.
const SequenceNumberUnknown SequenceNumber = 0

// IsUnknown reports whether s is the reserved "none" value.
func (s SequenceNumber) IsUnknown() bool {
	return s == SequenceNumberUnknown
}

// Next returns the sequence number immediately following s.
func (s SequenceNumber) Next() SequenceNumber {
	return s + 1
}

func (s SequenceNumber) String() string {
	if s == SequenceNumberUnknown {
		return "SEQUENCENUMBER_UNKNOWN"
	}
	return fmt.Sprintf("%d", int64(s))
}
