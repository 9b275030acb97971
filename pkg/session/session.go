// Package session drives one peer's handshake, rekey, and invalidation
// lifecycle (spec.md §3, §4.2), and the up/down counter replay engine
// (spec.md §4.3) that guards every decrypted frame.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/enigmaiot/enigmaiot/pkg/crypto/classical"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/handshakemac"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/kdf"
	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
)

// ReplayWindow is the default counter replay window W (spec.md §4.3).
const ReplayWindow = 256

// StrikeLimit is how many consecutive replay/decrypt failures invalidate a
// session (spec.md §4.3, "3-strike invalidation").
const StrikeLimit = 3

var (
	ErrBadHMAC         = errors.New("session: handshake HMAC verification failed")
	ErrHandshakeFailed = errors.New("session: key exchange failed")
	ErrReplay          = errors.New("session: counter outside replay window")
	ErrStrikesExceeded = errors.New("session: too many consecutive failures")
)

// BeginHandshake is called by a gateway on receiving CLIENT_HELLO: it
// validates the HMAC against the network key, generates its own ephemeral
// keypair, derives the shared session key, and returns the populated node
// record (status Registered) plus the SERVER_HELLO fields to send back.
func BeginHandshake(networkKey []byte, clientPub [32]byte, clientIV [12]byte, clientHMAC [32]byte, tag byte) (*nodetable.Node, [32]byte, [12]byte, [32]byte, error) {
	var zero [32]byte
	var zeroIV [12]byte

	if !handshakemac.Verify(networkKey, clientHMAC, []byte{tag}, clientPub[:], clientIV[:]) {
		return nil, zero, zeroIV, zero, ErrBadHMAC
	}

	gw, err := classical.GenerateKeypair()
	if err != nil {
		return nil, zero, zeroIV, zero, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	var gwPub [32]byte
	copy(gwPub[:], gw.PublicKey)

	var gwIV [12]byte
	if _, err := rand.Read(gwIV[:]); err != nil {
		return nil, zero, zeroIV, zero, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	shared, err := classical.Exchange(gw.PrivateKey, clientPub[:])
	if err != nil {
		return nil, zero, zeroIV, zero, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	sessionKey, noncePrefix, err := kdf.DeriveSessionKeyAndPrefix(shared, clientIV[:], gwIV[:])
	if err != nil {
		return nil, zero, zeroIV, zero, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	serverHMAC := handshakemac.Compute(networkKey, []byte{tag}, gwPub[:], gwIV[:])

	now := time.Now()
	node := &nodetable.Node{
		Status:       nodetable.Registered,
		SessionKey:   sessionKey,
		NoncePrefix:  noncePrefix,
		CreatedAt:    now,
		RegisteredAt: now,
		LastActivity: now,
	}
	return node, gwPub, gwIV, serverHMAC, nil
}

// CompleteHandshake is called by a node on receiving SERVER_HELLO: it
// verifies the HMAC, derives the same session key and nonce prefix the
// gateway did, and returns them.
func CompleteHandshake(networkKey []byte, nodePriv []byte, nodeIV [12]byte, serverPub [32]byte, serverIV [12]byte, serverHMAC [32]byte, tag byte) (sessionKey [32]byte, noncePrefix [8]byte, err error) {
	if !handshakemac.Verify(networkKey, serverHMAC, []byte{tag}, serverPub[:], serverIV[:]) {
		return sessionKey, noncePrefix, ErrBadHMAC
	}
	shared, err := classical.Exchange(nodePriv, serverPub[:])
	if err != nil {
		return sessionKey, noncePrefix, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return kdf.DeriveSessionKeyAndPrefix(shared, nodeIV[:], serverIV[:])
}

// CheckCounter validates an inbound counter against the replay window: a
// frame is accepted only if it strictly advances *last by between 1 and
// window (modulo 2^16). Anything else — an exact repeat, a counter behind
// *last, or one too far ahead — is a reject; the window never tolerates
// reordering once a higher counter has already been accepted (spec.md
// §4.3, §8 scenario 3). lost reports how many intervening counters were
// skipped, per spec.md §4.3's `lost` accounting.
func CheckCounter(last *uint16, counter uint16, window uint16) (lost uint16, err error) {
	diff := counter - *last
	if diff == 0 || diff > window {
		return 0, ErrReplay
	}
	lost = diff - 1
	*last = counter
	return lost, nil
}

// Strikes tracks consecutive decrypt/replay failures for one direction of
// one peer, invalidating at StrikeLimit.
type Strikes struct {
	count int
}

// Fail records a failure, returning ErrStrikesExceeded once the limit is
// reached.
func (s *Strikes) Fail() error {
	s.count++
	if s.count >= StrikeLimit {
		return ErrStrikesExceeded
	}
	return nil
}

// Reset clears the strike counter after a successful decrypt.
func (s *Strikes) Reset() {
	s.count = 0
}
