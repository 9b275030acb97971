// Package kdf derives EnigmaIOT's session and broadcast keys from a shared
// secret using HKDF-SHA256, with domain separation between the two key
// purposes.
package kdf

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the output size of a derived session or broadcast key.
	KeySize = 32

	// SessionInfo and BroadcastInfo are the HKDF info strings that keep the
	// two key domains independent even if the same shared secret were ever
	// reused (it never is, but domain separation costs nothing).
	SessionInfo   = "EIoT-session"
	BroadcastInfo = "EIoT-bcast"
)

var ErrDerivationFailed = errors.New("kdf: key derivation failed")

// PrefixSize is the length of the AEAD nonce prefix derived alongside a key.
// The prefix is not exchanged during the handshake: both ends compute it
// independently from material they already share, the same way they compute
// the key itself. It still appears as the leading bytes of the nonce that
// each encrypted frame carries on the wire.
const PrefixSize = 8

// DeriveSessionKey computes session_key = HKDF-SHA256("EIoT-session", shared,
// IV_n || IV_g). shared is the X25519 ECDH output; ivNode and ivGateway are
// the 12-byte IVs each side contributed during the handshake.
func DeriveSessionKey(shared, ivNode, ivGateway []byte) ([KeySize]byte, error) {
	salt := append(append([]byte{}, ivNode...), ivGateway...)
	key, _, err := derive(shared, salt, []byte(SessionInfo))
	return key, err
}

// DeriveSessionKeyAndPrefix computes the session key exactly as
// DeriveSessionKey, plus the AEAD nonce prefix both sides derive from the
// same HKDF expansion rather than exchanging on the wire.
func DeriveSessionKeyAndPrefix(shared, ivNode, ivGateway []byte) (key [KeySize]byte, prefix [PrefixSize]byte, err error) {
	salt := append(append([]byte{}, ivNode...), ivGateway...)
	return derive(shared, salt, []byte(SessionInfo))
}

// DeriveBroadcastKey computes broadcast_key = HKDF-SHA256("EIoT-bcast",
// gatewayMaster, epoch). gatewayMaster is a 32-byte secret generated once at
// gateway first run; epoch is the broadcast key's 1-byte generation counter.
func DeriveBroadcastKey(gatewayMaster []byte, epoch byte) ([KeySize]byte, error) {
	key, _, err := derive(gatewayMaster, []byte{epoch}, []byte(BroadcastInfo))
	return key, err
}

// DeriveBroadcastKeyAndPrefix computes the broadcast key exactly as
// DeriveBroadcastKey, plus its nonce prefix.
func DeriveBroadcastKeyAndPrefix(gatewayMaster []byte, epoch byte) (key [KeySize]byte, prefix [PrefixSize]byte, err error) {
	return derive(gatewayMaster, []byte{epoch}, []byte(BroadcastInfo))
}

// derive reads KeySize+PrefixSize bytes from a single HKDF-SHA256 expansion
// of (secret, salt, info): the first KeySize bytes are the key, the next
// PrefixSize are the nonce prefix. Reading further from the same streaming
// reader is itself deterministic, so both sides land on identical bytes
// without needing a second derivation call.
func derive(secret, salt, info []byte) (key [KeySize]byte, prefix [PrefixSize]byte, err error) {
	reader := hkdf.New(sha256.New, secret, salt, info)
	if _, err = io.ReadFull(reader, key[:]); err != nil {
		return key, prefix, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
	}
	if _, err = io.ReadFull(reader, prefix[:]); err != nil {
		return key, prefix, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
	}
	return key, prefix, nil
}
