package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe attempts to securely erase the contents of a byte slice
// containing sensitive data. It returns an error if the byte slice is nil.
//
// This function uses subtle.XORBytes to perform a constant-time XOR operation
// that the compiler cannot optimize away. XORing data with itself (x XOR x = 0)
// securely zeros the data while providing resistance to compiler optimizations.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	// Overwrite the data with zeros using XOR operation
	// subtle.XORBytes performs constant-time XOR that compilers cannot optimize away
	// XORing data with itself: x XOR x = 0
	subtle.XORBytes(data, data, data)

	// Prevent compiler from optimizing out the zeroing
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes erases the contents of a byte slice containing sensitive data.
// This is a convenience function that ignores the error from SecureWipe.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyMaterial securely erases every secret field of a KeyMaterial:
// the master sender key, the master salt and, if present, the master
// receiver-specific key. This should be called when a KeyMaterial is no longer needed,
// per spec.md §5 "Session-key material and IVs MUST be zeroised on
// destruction."
func WipeKeyMaterial(km *KeyMaterial) error {
	if km == nil {
		return errors.New("cannot wipe nil KeyMaterial")
	}
	if err := SecureWipe(km.MasterSenderKey[:]); err != nil {
		return err
	}
	if err := SecureWipe(km.MasterSalt[:]); err != nil {
		return err
	}
	if km.HasReceiverSpecific {
		return SecureWipe(km.MasterReceiverSpecificKey[:])
	}
	return nil
}

// WipeCipherData securely erases a CipherData's session key.
func WipeCipherData(cd *CipherData) error {
	if cd == nil {
		return errors.New("cannot wipe nil CipherData")
	}
	return SecureWipe(cd.SessionKey[:])
}
