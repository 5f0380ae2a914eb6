package history

import (
	"fmt"

	"github.com/rtps-io/rtpscore/guid"
)

// ChangeKind classifies what a CacheChange represents.
type ChangeKind uint8

const (
	// Alive marks a normal, live sample.
	Alive ChangeKind = iota
	// NotAliveDisposed marks the instance's last sample: the writer has
	// explicitly disposed of it.
	NotAliveDisposed
	// NotAliveUnregistered marks the instance's last sample: the writer
	// has unregistered the instance without disposing it.
	NotAliveUnregistered
)

func (k ChangeKind) String() string {
	switch k {
	case Alive:
		return "ALIVE"
	case NotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case NotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	default:
		return fmt.Sprintf("ChangeKind(%d)", uint8(k))
	}
}

// FragmentFlag records whether a single fragment of a fragmented
// sample still needs to be sent (Present) or has already been
// admitted/emitted (NotPresent).
type FragmentFlag uint8

const (
	// Present means the fragment is still pending transmission.
	Present FragmentFlag = iota
	// NotPresent means the fragment has been admitted and handed to
	// the send path; it will not be re-admitted.
	NotPresent
)

// Fragmentation describes how a sample's payload is split across
// fragments. A FragmentSize of zero means the sample is atomic and
// this struct does not apply.
type Fragmentation struct {
	FragmentSize int
	Flags        []FragmentFlag
}

// NewFragmentation builds a Fragmentation descriptor for a payload of
// the given length split into fragments of fragmentSize bytes, with
// every fragment initially Present. It panics if fragmentSize <= 0,
// since the caller must check that before constructing one — use a
// zero FragmentSize sample (no Fragmentation) for atomic changes.
func NewFragmentation(payloadLen, fragmentSize int) *Fragmentation {
	if fragmentSize <= 0 {
		panic("history: fragmentSize must be positive")
	}
	count := (payloadLen + fragmentSize - 1) / fragmentSize
	if count == 0 {
		count = 1
	}
	flags := make([]FragmentFlag, count)
	for i := range flags {
		flags[i] = Present
	}
	return &Fragmentation{FragmentSize: fragmentSize, Flags: flags}
}

// PresentCount returns how many fragments are still flagged Present.
func (f *Fragmentation) PresentCount() int {
	n := 0
	for _, flag := range f.Flags {
		if flag == Present {
			n++
		}
	}
	return n
}

// Complete reports whether every fragment has been admitted (no flag
// remains Present).
func (f *Fragmentation) Complete() bool {
	return f.PresentCount() == 0
}

// CacheChange is a single sample record owned exclusively by a
// HistoryCache.
type CacheChange struct {
	SequenceNumber guid.SequenceNumber
	WriterGUID     guid.GUID
	Kind           ChangeKind
	Payload        []byte
	Fragmentation  *Fragmentation // nil for an atomic (non-fragmented) sample
}

// IsFragmented reports whether the change carries a fragmentation
// descriptor.
func (c *CacheChange) IsFragmented() bool {
	return c.Fragmentation != nil
}
