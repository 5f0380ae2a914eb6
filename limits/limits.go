// Package limits provides centralized message size limits for the RTPS core.
// The root package's Writer is its only importer.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxSerializedPayload is the largest CacheChange payload accepted
	// before fragmentation decisions are made.
	MaxSerializedPayload = 65500

	// DefaultFragmentSize is the default per-fragment payload size used
	// by the writer when a change exceeds a single datagram.
	DefaultFragmentSize = 1344

	// GCMTagSize is the AES-128-GCM authentication tag length.
	GCMTagSize = 16

	// MaxEncryptedPayload is the largest ciphertext the crypto transform
	// produces for a single payload (plaintext plus the GCM tag).
	MaxEncryptedPayload = MaxSerializedPayload + GCMTagSize

	// MaxProcessingBuffer is the absolute maximum for any receive-path
	// buffer, a defense against memory exhaustion attacks.
	MaxProcessingBuffer = 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided.
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a message exceeds its maximum size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates data against an explicit maximum size.
func ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateSerializedPayload validates a CacheChange payload prior to
// fragmentation.
func ValidateSerializedPayload(payload []byte) error {
	return ValidateMessageSize(payload, MaxSerializedPayload)
}

// ValidateEncryptedPayload validates a ciphertext produced by the crypto
// transform.
func ValidateEncryptedPayload(ciphertext []byte) error {
	return ValidateMessageSize(ciphertext, MaxEncryptedPayload)
}

// ValidateProcessingBuffer validates a receive-path buffer against the
// absolute maximum.
func ValidateProcessingBuffer(data []byte) error {
	return ValidateMessageSize(data, MaxProcessingBuffer)
}
