// Package handshakemac authenticates CLIENT_HELLO/SERVER_HELLO/INVALIDATE_KEY
// frames against the shared network key, before any session key exists.
//
// HMAC-SHA256 is used rather than a one-time Poly1305 MAC because Poly1305
// requires a fresh per-message key; the network key is long-lived and shared
// by every node on the network, so a conventional keyed hash is the right
// primitive here (resolves the handshake-MAC open question).
package handshakemac

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// Size is the HMAC-SHA256 output size carried on the wire.
const Size = 32

// Compute returns HMAC-SHA256(key=networkKey, data=data).
func Compute(networkKey []byte, data ...[]byte) [Size]byte {
	mac := hmac.New(sha256.New, networkKey)
	for _, d := range data {
		mac.Write(d)
	}
	var out [Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Verify recomputes the HMAC over data and compares it against tag in
// constant time.
func Verify(networkKey []byte, tag [Size]byte, data ...[]byte) bool {
	expected := Compute(networkKey, data...)
	return subtle.ConstantTimeCompare(expected[:], tag[:]) == 1
}
