// Package aead implements ChaCha20-Poly1305 frame encryption for EnigmaIOT,
// including the session-prefix based nonce construction described in the
// protocol's key derivation rules.
package aead

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sizes follow ChaCha20-Poly1305: 32-byte key, 12-byte nonce, 16-byte tag.
const (
	KeySize    = chacha20poly1305.KeySize
	NonceSize  = chacha20poly1305.NonceSize
	TagSize    = 16
	PrefixSize = 8 // nonce prefix: derived per session, or random per broadcast message
)

// Direction disambiguates the data flow a nonce was generated for, so the
// same (key, counter) pair can never collide across upstream, downstream and
// broadcast traffic.
type Direction byte

const (
	DirectionUpstream   Direction = 0x00
	DirectionDownstream Direction = 0x01
	DirectionBroadcast  Direction = 0x02
)

var (
	ErrInvalidKeySize    = errors.New("aead: invalid key size, must be 32 bytes")
	ErrInvalidCiphertext = errors.New("aead: ciphertext too short or corrupted")
	ErrEncryptionFailed  = errors.New("aead: encryption failed")
	ErrDecryptionFailed  = errors.New("aead: decryption failed: authentication tag mismatch")
)

// Prefix is the 8-byte value used as the high-order bytes of a nonce. A
// session's prefix is derived by kdf alongside the session key and fixed for
// that key's lifetime.
type Prefix [PrefixSize]byte

// NewPrefix draws a fresh random nonce prefix. The gateway and node mint one
// per broadcast-keyed message; session prefixes come from kdf instead.
func NewPrefix() (Prefix, error) {
	var p Prefix
	if _, err := rand.Read(p[:]); err != nil {
		return p, fmt.Errorf("aead: failed to generate nonce prefix: %w", err)
	}
	return p, nil
}

// BuildNonce derives the 12-byte AEAD nonce for a single frame:
// prefix(8) || key_id(1) || direction(1) || counter(2, big-endian).
func BuildNonce(prefix Prefix, keyID byte, dir Direction, counter uint16) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[0:PrefixSize], prefix[:])
	nonce[8] = keyID
	nonce[9] = byte(dir)
	binary.BigEndian.PutUint16(nonce[10:12], counter)
	return nonce
}

// Seal encrypts and authenticates plaintext under key/nonce/aad, returning
// ciphertext with the 16-byte Poly1305 tag appended.
func Seal(key [KeySize]byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	aeadCipher, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return aeadCipher.Seal(nil, nonce[:], plaintext, aad), nil
}

// Open verifies and decrypts ciphertext (with trailing tag) under
// key/nonce/aad. Any tampering of ciphertext, aad, nonce or key yields
// ErrDecryptionFailed.
func Open(key [KeySize]byte, nonce [NonceSize]byte, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, ErrInvalidCiphertext
	}
	aeadCipher, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := aeadCipher.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// KeyFromSlice copies a byte slice into a fixed-size key array, validating
// its length first.
func KeyFromSlice(b []byte) ([KeySize]byte, error) {
	var k [KeySize]byte
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}
