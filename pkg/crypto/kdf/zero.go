package kdf

import (
	"runtime"
)

// SecureZero wipes a 32-byte key from memory
//
// Security Properties:
// - Prevents key recovery from memory dumps
// - Protects against cold boot attacks
// - Ensures forward secrecy (old keys cannot be recovered)
//
// Implementation:
// - Manual byte-by-byte zeroing (compiler cannot optimize away)
// - runtime.KeepAlive() prevents premature garbage collection
// - No external dependencies (memguard considered but adds complexity)
//
// Performance: <10µs (negligible overhead)
//
// Usage:
//
//	var oldKey [32]byte
//	// ... use key ...
//	defer SecureZero(&oldKey)
func SecureZero(key *[32]byte) {
	if key == nil {
		return
	}

	// Zero each byte individually
	// The loop structure prevents compiler optimization
	for i := range key {
		key[i] = 0
	}

	// Ensure key is not garbage collected before zeroing completes
	// This prevents the compiler from optimizing away the zero loop
	runtime.KeepAlive(key)
}

// ZeroSlice wipes a variable-length byte slice from memory
//
// Parameters:
// - data: Byte slice to zero (any length)
//
// Security:
// - Same security properties as SecureZero
// - Works with variable-length data (not just 32-byte keys)
//
// Usage:
//
//	sensitiveData := []byte("secret")
//	// ... use data ...
//	defer ZeroSlice(sensitiveData)
func ZeroSlice(data []byte) {
	if data == nil || len(data) == 0 {
		return
	}

	// Zero each byte
	for i := range data {
		data[i] = 0
	}

	// Prevent premature garbage collection
	runtime.KeepAlive(data)
}

// VerifyZeroed checks if a key has been zeroed
// Returns true if all bytes are zero, false otherwise
//
// Note: This is primarily for testing purposes
// In production, checking if a key is zeroed may leak timing information
func VerifyZeroed(key *[32]byte) bool {
	if key == nil {
		return false
	}

	for i := range key {
		if key[i] != 0 {
			return false
		}
	}

	return true
}

// VerifySliceZeroed checks if a slice has been zeroed
// Returns true if all bytes are zero, false otherwise
//
// Note: This is primarily for testing purposes
func VerifySliceZeroed(data []byte) bool {
	if data == nil {
		return false
	}

	for i := range data {
		if data[i] != 0 {
			return false
		}
	}

	return true
}

// SecureZeroMultiple wipes multiple keys from memory
// Convenience function for zeroing multiple keys at once
//
// Usage:
//
//	var key1, key2, key3 [32]byte
//	// ... use keys ...
//	defer SecureZeroMultiple(&key1, &key2, &key3)
func SecureZeroMultiple(keys ...*[32]byte) {
	for _, key := range keys {
		SecureZero(key)
	}
}
