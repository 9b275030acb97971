package classical

import (
	"bytes"
	"testing"
)

// TestX25519KeypairGeneration tests X25519 keypair generation
func TestX25519KeypairGeneration(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() failed: %v", err)
	}

	// Verify public key size (32 bytes for X25519)
	if len(kp.PublicKey) != 32 {
		t.Errorf("Public key size mismatch: expected 32, got %d", len(kp.PublicKey))
	}

	// Verify private key size (32 bytes for X25519)
	if len(kp.PrivateKey) != 32 {
		t.Errorf("Private key size mismatch: expected 32, got %d", len(kp.PrivateKey))
	}

	// Verify keys are not all zeros (entropy check)
	allZerosPK := true
	for _, b := range kp.PublicKey {
		if b != 0 {
			allZerosPK = false
			break
		}
	}
	if allZerosPK {
		t.Error("Public key is all zeros - likely entropy failure")
	}

	allZerosSK := true
	for _, b := range kp.PrivateKey {
		if b != 0 {
			allZerosSK = false
			break
		}
	}
	if allZerosSK {
		t.Error("Private key is all zeros - likely entropy failure")
	}
}

// TestExchange tests ECDH key exchange between two parties
func TestExchange(t *testing.T) {
	// Generate keypairs for Alice and Bob
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Alice failed: %v", err)
	}

	bob, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Bob failed: %v", err)
	}

	// Alice computes shared secret with Bob's public key
	secretAlice, err := Exchange(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("Exchange() for Alice failed: %v", err)
	}

	// Bob computes shared secret with Alice's public key
	secretBob, err := Exchange(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("Exchange() for Bob failed: %v", err)
	}

	// Verify shared secrets match
	if !bytes.Equal(secretAlice, secretBob) {
		t.Error("Shared secrets do not match")
	}

	// Verify shared secret size (32 bytes)
	if len(secretAlice) != 32 {
		t.Errorf("Shared secret size mismatch: expected 32, got %d", len(secretAlice))
	}
}

// TestX25519MultipleExchanges tests multiple ECDH exchanges
func TestX25519MultipleExchanges(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Alice failed: %v", err)
	}

	// Perform 10 exchanges with different Bob keypairs
	for i := 0; i < 10; i++ {
		bob, err := GenerateKeypair()
		if err != nil {
			t.Fatalf("Exchange %d: GenerateKeypair() for Bob failed: %v", i, err)
		}

		secretAlice, err := Exchange(alice.PrivateKey, bob.PublicKey)
		if err != nil {
			t.Fatalf("Exchange %d: Exchange() for Alice failed: %v", i, err)
		}

		secretBob, err := Exchange(bob.PrivateKey, alice.PublicKey)
		if err != nil {
			t.Fatalf("Exchange %d: Exchange() for Bob failed: %v", i, err)
		}

		if !bytes.Equal(secretAlice, secretBob) {
			t.Errorf("Exchange %d: Shared secrets do not match", i)
		}
	}
}

// TestX25519InvalidPrivateKey tests error handling for invalid private keys
func TestX25519InvalidPrivateKey(t *testing.T) {
	bob, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Bob failed: %v", err)
	}

	testCases := []struct {
		name       string
		privateKey []byte
		wantErr    error
	}{
		{
			name:       "nil private key",
			privateKey: nil,
			wantErr:    ErrExchangeFailed,
		},
		{
			name:       "empty private key",
			privateKey: []byte{},
			wantErr:    ErrExchangeFailed,
		},
		{
			name:       "too short private key",
			privateKey: make([]byte, 10),
			wantErr:    ErrExchangeFailed,
		},
		{
			name:       "too long private key",
			privateKey: make([]byte, 64),
			wantErr:    ErrExchangeFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Exchange(tc.privateKey, bob.PublicKey)
			if err == nil {
				t.Error("Expected error but got nil")
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tc.wantErr.Error())) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err)
			}
		})
	}
}

// TestX25519InvalidPublicKey tests error handling for invalid public keys
func TestX25519InvalidPublicKey(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Alice failed: %v", err)
	}

	testCases := []struct {
		name      string
		publicKey []byte
		wantErr   error
	}{
		{
			name:      "nil public key",
			publicKey: nil,
			wantErr:   ErrExchangeFailed,
		},
		{
			name:      "empty public key",
			publicKey: []byte{},
			wantErr:   ErrExchangeFailed,
		},
		{
			name:      "too short public key",
			publicKey: make([]byte, 10),
			wantErr:   ErrExchangeFailed,
		},
		{
			name:      "too long public key",
			publicKey: make([]byte, 64),
			wantErr:   ErrExchangeFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Exchange(alice.PrivateKey, tc.publicKey)
			if err == nil {
				t.Error("Expected error but got nil")
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tc.wantErr.Error())) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err)
			}
		})
	}
}

// TestX25519DifferentKeypairs tests that different keypairs produce different shared secrets
func TestX25519DifferentKeypairs(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Alice failed: %v", err)
	}

	bob1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Bob1 failed: %v", err)
	}

	bob2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() for Bob2 failed: %v", err)
	}

	// Alice's shared secret with Bob1
	secret1, err := Exchange(alice.PrivateKey, bob1.PublicKey)
	if err != nil {
		t.Fatalf("Exchange() with Bob1 failed: %v", err)
	}

	// Alice's shared secret with Bob2
	secret2, err := Exchange(alice.PrivateKey, bob2.PublicKey)
	if err != nil {
		t.Fatalf("Exchange() with Bob2 failed: %v", err)
	}

	// Verify shared secrets are different
	if bytes.Equal(secret1, secret2) {
		t.Error("Different public keys produced same shared secret (security violation)")
	}
}

// BenchmarkX25519KeypairGeneration benchmarks X25519 keypair generation
func BenchmarkX25519KeypairGeneration(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := GenerateKeypair()
		if err != nil {
			b.Fatalf("GenerateKeypair() failed: %v", err)
		}
	}
}

// BenchmarkExchange benchmarks X25519 ECDH key exchange
func BenchmarkExchange(b *testing.B) {
	alice, err := GenerateKeypair()
	if err != nil {
		b.Fatalf("GenerateKeypair() for Alice failed: %v", err)
	}

	bob, err := GenerateKeypair()
	if err != nil {
		b.Fatalf("GenerateKeypair() for Bob failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := Exchange(alice.PrivateKey, bob.PublicKey)
		if err != nil {
			b.Fatalf("Exchange() failed: %v", err)
		}
	}
}

// TestX25519KeypairUniqueness tests that generated keypairs are unique
func TestX25519KeypairUniqueness(t *testing.T) {
	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() #1 failed: %v", err)
	}

	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() #2 failed: %v", err)
	}

	// Public keys should be different
	if bytes.Equal(kp1.PublicKey, kp2.PublicKey) {
		t.Error("Two keypairs have identical public keys (entropy failure)")
	}

	// Private keys should be different
	if bytes.Equal(kp1.PrivateKey, kp2.PrivateKey) {
		t.Error("Two keypairs have identical private keys (entropy failure)")
	}
}

// TestX25519CorruptedPublicKey tests exchange with corrupted public key
func TestX25519CorruptedPublicKey(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() failed: %v", err)
	}

	bob, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() failed: %v", err)
	}

	// Original exchange
	secret1, err := Exchange(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}

	// Corrupt public key
	corruptedPubKey := make([]byte, 32)
	copy(corruptedPubKey, bob.PublicKey)
	corruptedPubKey[0] ^= 0xFF

	// Exchange with corrupted key should produce different secret or error
	secret2, err := Exchange(alice.PrivateKey, corruptedPubKey)
	if err == nil {
		// If no error, secrets must be different
		if bytes.Equal(secret1, secret2) {
			t.Error("Corrupted public key produced same shared secret")
		}
	}
}

// TestX25519SharedSecretSize tests that shared secret is always 32 bytes
func TestX25519SharedSecretSize(t *testing.T) {
	for i := 0; i < 100; i++ {
		alice, err := GenerateKeypair()
		if err != nil {
			t.Fatalf("Iteration %d: GenerateKeypair() for Alice failed: %v", i, err)
		}

		bob, err := GenerateKeypair()
		if err != nil {
			t.Fatalf("Iteration %d: GenerateKeypair() for Bob failed: %v", i, err)
		}

		secret, err := Exchange(alice.PrivateKey, bob.PublicKey)
		if err != nil {
			t.Fatalf("Iteration %d: Exchange() failed: %v", i, err)
		}

		if len(secret) != 32 {
			t.Errorf("Iteration %d: Shared secret size mismatch: expected 32, got %d", i, len(secret))
		}
	}
}
