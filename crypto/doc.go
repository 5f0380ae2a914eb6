// Package crypto implements the AES-128-GCM/GMAC cryptographic
// transform for RTPS secure payloads and messages.
//
// # Core types
//
// [KeyMaterial] is the pre-agreed, externally-supplied key triple
// (master sender key, master salt, sender key id) plus an optional
// receiver-specific component. The transform never generates or
// exchanges this material itself — it is handed in through discovery,
// an external collaborator to this package.
//
// [CipherData] is the per-key-id session state the transform
// maintains internally: the current session id, the derived session
// key, and a block counter that triggers key rotation once it reaches
// the configured ceiling.
//
// # Encoding and decoding
//
//	tf := crypto.NewTransform()
//	tf.RegisterKeyMaterial(writerKeyID, km)
//	encoded, terr := tf.EncodeSerializedPayload(plaintext, writerKeyID)
//	decoded, terr := tf.DecodeSerializedPayload(encoded, km)
//
// [Transform.EncodeRTPSMessage] additionally binds the ciphertext to a
// list of receivers via per-receiver GMAC tags; [Transform.DecodeRTPSMessage]
// requires the decoding receiver's key id to appear in that list.
//
// # At-rest key storage
//
// [KeyMaterialStore] persists registered KeyMaterial to disk under
// AES-256-GCM encryption keyed by a PBKDF2-derived passphrase, so a
// restarting participant does not need discovery to re-supply key
// material it already agreed on.
//
// # Stubbed submessage paths
//
// EncodeDatawriterSubmessage, EncodeDatareaderSubmessage,
// DecodeDatawriterSubmessage, DecodeDatareaderSubmessage, and
// PreprocessSecureSubmsg are preserved as named methods that return
// ErrNotImplemented — the transform this package implements never
// guesses at submessage-level behavior the original leaves stubbed.
package crypto
