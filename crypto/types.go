package crypto

// DefaultMaxBlocksPerSession is the session-key rotation ceiling.
// Transform applies it to every key id; Transform offers no way to set
// a different ceiling.
const DefaultMaxBlocksPerSession = 12000

// KeyMaterial is the pre-agreed, externally-supplied key triple per
// spec.md §3. It is consumed, never generated, by this package.
type KeyMaterial struct {
	TransformationKind uint32
	MasterSenderKey    [32]byte
	MasterSalt         [32]byte
	SenderKeyID        uint32

	// HasReceiverSpecific indicates the receiver-specific fields
	// below are populated. Sender-only key material leaves them
	// zero.
	HasReceiverSpecific       bool
	MasterReceiverSpecificKey [32]byte
	ReceiverSpecificKeyID     uint32
}

// CipherData is the per-key-id session state the transform maintains
// internally, per spec.md §3. SessionKey holds the full 32-byte
// SHA-256 digest produced by deriveSessionKey; only its first 16
// bytes key the AES-128-GCM cipher, matching the original transform's
// behavior of handing a 32-byte buffer to an AES-128 primitive.
type CipherData struct {
	MasterKeyID         uint32
	SessionID           uint32
	SessionKey          [32]byte
	SessionBlockCounter uint64
	MaxBlocksPerSession uint64
}

func (c *CipherData) aesKey() []byte {
	return c.SessionKey[:16]
}

// needsRotation reports whether the session key must be recomputed
// before the next encode, per spec.md §4.5 "Session rotation".
func (c *CipherData) needsRotation() bool {
	return c.SessionBlockCounter >= c.MaxBlocksPerSession
}
