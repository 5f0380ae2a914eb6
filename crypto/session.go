package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"crypto/sha256"
)

// sessionKeyLabel is the fixed 10-byte label mixed into the session
// key derivation, matching the original transform's literal
// "SessionKey" ASCII string.
const sessionKeyLabel = "SessionKey"

// deriveSessionKey computes session_key = SHA-256(MK ‖ "SessionKey" ‖
// S ‖ sid_le32), per spec.md §4.5. The input buffer is sized and
// filled exactly 32+10+32+4 = 78 bytes, fixing the original's
// buffer-overflow defect noted in spec.md §9 Open Question 2.
func deriveSessionKey(masterKey, salt [32]byte, sessionID uint32) [32]byte {
	var buf [78]byte
	copy(buf[0:32], masterKey[:])
	copy(buf[32:42], sessionKeyLabel)
	copy(buf[42:74], salt[:])
	binary.LittleEndian.PutUint32(buf[74:78], sessionID)
	return sha256.Sum256(buf[:])
}

// randomUint16 returns a cryptographically random 16-bit value, used
// to initialize a fresh CipherData's session id per spec.md §4.5
// "Session rotation" and §9 Open Question 3.
func randomUint16() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ivSuffix draws the fresh 64-bit suffix for a 96-bit nonce, per
// spec.md §4.5 "Nonce construction".
func ivSuffix() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// buildNonce assembles the 96-bit IV: the 32-bit session id
// concatenated with the 64-bit suffix, both little-endian.
func buildNonce(sessionID uint32, suffix uint64) [12]byte {
	var nonce [12]byte
	binary.LittleEndian.PutUint32(nonce[0:4], sessionID)
	binary.LittleEndian.PutUint64(nonce[4:12], suffix)
	return nonce
}

// newCipherData initializes a CipherData for a key id the transform
// has not seen before: a random initial session id, and the block
// counter set to the ceiling so the first encode forces derivation.
func newCipherData(masterKeyID uint32, maxBlocksPerSession uint64) (*CipherData, error) {
	if maxBlocksPerSession == 0 {
		maxBlocksPerSession = DefaultMaxBlocksPerSession
	}
	sid, err := randomUint16()
	if err != nil {
		return nil, err
	}
	return &CipherData{
		MasterKeyID:         masterKeyID,
		SessionID:           uint32(sid),
		SessionBlockCounter: maxBlocksPerSession,
		MaxBlocksPerSession: maxBlocksPerSession,
	}, nil
}

// rotateIfNeeded recomputes the session key from masterKey/salt when
// the block counter has reached the ceiling, per spec.md §4.5.
func (c *CipherData) rotateIfNeeded(masterKey, salt [32]byte) {
	if !c.needsRotation() {
		return
	}
	c.SessionID++
	c.SessionKey = deriveSessionKey(masterKey, salt, c.SessionID)
	c.SessionBlockCounter = 0
}
