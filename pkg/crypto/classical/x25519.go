package classical

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
)

var (
	// ErrKeyGenerationFailed indicates key generation failed
	ErrKeyGenerationFailed = errors.New("key generation failed")
	// ErrExchangeFailed indicates the exchange could not be completed, whether
	// because a key was malformed or the underlying ECDH operation failed
	ErrExchangeFailed = errors.New("X25519 exchange failed")
)

// Keypair represents an X25519 ECDH keypair
type Keypair struct {
	PublicKey  []byte // 32 bytes
	PrivateKey []byte // 32 bytes
}

// GenerateKeypair generates a new X25519 keypair using crypto/ecdh
// Returns error if random number generation fails
func GenerateKeypair() (*Keypair, error) {
	// Generate X25519 private key using system entropy
	privKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}

	return &Keypair{
		PublicKey:  privKey.PublicKey().Bytes(),
		PrivateKey: privKey.Bytes(),
	}, nil
}

// Exchange performs ECDH key exchange with the given keys
// Returns 32-byte shared secret
// This is a constant-time operation per RFC 7748
func Exchange(privateKey, publicKey []byte) (sharedSecret []byte, err error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrExchangeFailed, len(privateKey))
	}

	if len(publicKey) != 32 {
		return nil, fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrExchangeFailed, len(publicKey))
	}

	// Parse private key
	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrExchangeFailed, err)
	}

	// Parse public key
	pub, err := ecdh.X25519().NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key: %v", ErrExchangeFailed, err)
	}

	// Perform ECDH (constant-time operation)
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	return secret, nil
}
