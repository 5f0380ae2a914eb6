// Package limits provides centralized message size constants and validation
// functions for the RTPS core. The root package's Writer uses it to
// validate payload size and to choose the fragment size; no other
// package imports it.
//
// # Message Size Hierarchy
//
//   - MaxSerializedPayload (65500 bytes): the largest CacheChange payload
//     accepted before fragmentation decisions are made by the writer.
//
//   - DefaultFragmentSize (1344 bytes): the default fragment payload size
//     used when a change exceeds a single datagram, chosen to leave room
//     for IP/UDP and RTPS submessage headers under a 1500-byte MTU.
//
//   - MaxEncryptedPayload: MaxSerializedPayload plus the AES-128-GCM
//     authentication tag (GCMTagSize), the largest ciphertext the crypto
//     transform will produce for a single payload.
//
//   - MaxProcessingBuffer (1MB): the absolute maximum for any single
//     receive-path buffer, defending against memory exhaustion from a
//     malformed or hostile peer.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit
// violations:
//
//	err := limits.ValidateSerializedPayload(payload)
//	if err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
package limits
