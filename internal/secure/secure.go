// Package secure provides the encryption gateway used by the relay.
//
// A Gateway is stateless from the relay's point of view: Encrypt and Decrypt
// may be called concurrently from any number of goroutines and never block on
// anything the relay owns.
package secure

import "fmt"

// Gateway seals raw packets for the wire and opens them again.
type Gateway interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// EncryptionError reports a failure to seal a packet.
type EncryptionError struct {
	Cause error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Cause)
}

func (e *EncryptionError) Unwrap() error { return e.Cause }

// DecryptionError reports a packet that could not be authenticated or opened.
// No plaintext is ever returned alongside it.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Cause)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }
