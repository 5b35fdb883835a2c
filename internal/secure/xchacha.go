package secure

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of a pre-shared key in bytes.
const KeySize = chacha20poly1305.KeySize

// Overhead is the number of bytes Encrypt adds to every packet.
const Overhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Key derivation labels. Changing them changes every derived key.
var (
	kdfSalt = []byte("tunrelay/v1/salt")
	kdfInfo = []byte("tunrelay/v1/packet-key")
)

var (
	ErrShortCiphertext = errors.New("ciphertext shorter than nonce and tag")
	ErrEmptyPassphrase = errors.New("passphrase is empty")
)

// XChaCha seals packets with XChaCha20-Poly1305. Every message carries its
// own random 24-byte nonce in front of the ciphertext.
type XChaCha struct {
	aead cipher.AEAD
}

var _ Gateway = (*XChaCha)(nil)

// NewXChaCha creates a gateway from a 32-byte key.
func NewXChaCha(key []byte) (*XChaCha, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &XChaCha{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext || tag.
func (x *XChaCha) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, x.aead.NonceSize(), x.aead.NonceSize()+len(plaintext)+x.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, &EncryptionError{Cause: fmt.Errorf("nonce generation: %w", err)}
	}
	return x.aead.Seal(out, out, plaintext, nil), nil
}

// Decrypt authenticates and opens a message produced by Encrypt.
func (x *XChaCha) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := x.aead.NonceSize()
	if len(ciphertext) < ns+x.aead.Overhead() {
		return nil, &DecryptionError{Cause: fmt.Errorf("%w: %d bytes", ErrShortCiphertext, len(ciphertext))}
	}
	plain, err := x.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}
	return plain, nil
}

// ParseKey decodes a hex-encoded 32-byte key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d bytes (need %d)", len(key), KeySize)
	}
	return key, nil
}

// DeriveKey stretches a shared passphrase into a key with HKDF-SHA256.
// Both ends must use the same passphrase.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), kdfSalt, kdfInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return key, nil
}

// GenerateKey creates a new random key, hex-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
