package handshakemac

import (
	"bytes"
	"testing"
)

func TestComputeVerifyRoundTrip(t *testing.T) {
	key := []byte("network-key-shared-by-all-nodes")
	tag := Compute(key, []byte{0xFF}, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 12))

	if !Verify(key, tag, []byte{0xFF}, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 12)) {
		t.Fatal("expected verification to succeed for untampered data")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	tag := Compute([]byte("key-a"), []byte("payload"))
	if Verify([]byte("key-b"), tag, []byte("payload")) {
		t.Fatal("expected verification to fail for wrong key")
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	key := []byte("network-key")
	tag := Compute(key, []byte("payload"))
	if Verify(key, tag, []byte("payload-tampered")) {
		t.Fatal("expected verification to fail for tampered data")
	}
}

func TestVerifyRejectsTamperedTag(t *testing.T) {
	key := []byte("network-key")
	tag := Compute(key, []byte("payload"))
	tag[0] ^= 0xFF
	if Verify(key, tag, []byte("payload")) {
		t.Fatal("expected verification to fail for tampered tag")
	}
}
