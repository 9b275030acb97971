package config

import (
	"bytes"
	"errors"
	"testing"
)

func TestGatewayRecordRoundTrip(t *testing.T) {
	g := GatewayRecord{
		Channel:     6,
		NetworkKey:  bytes.Repeat([]byte{0x42}, 32),
		NetworkName: "home-network",
	}
	encoded := EncodeGatewayRecord(g)
	got, err := DecodeGatewayRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeGatewayRecord: %v", err)
	}
	if got.Channel != g.Channel || got.NetworkName != g.NetworkName || !bytes.Equal(got.NetworkKey, g.NetworkKey) {
		t.Fatal("gateway record round-trip mismatch")
	}
}

func TestNodeRecordRoundTrip(t *testing.T) {
	n := NodeRecord{
		GatewayMAC: [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x01},
		NetworkKey: bytes.Repeat([]byte{0x7A}, 32),
		NodeName:   "kitchen-sensor",
	}
	encoded := EncodeNodeRecord(n)
	got, err := DecodeNodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeNodeRecord: %v", err)
	}
	if got.GatewayMAC != n.GatewayMAC || got.NodeName != n.NodeName || !bytes.Equal(got.NetworkKey, n.NetworkKey) {
		t.Fatal("node record round-trip mismatch")
	}
}

func TestDecodeRejectsShortRecord(t *testing.T) {
	if _, err := DecodeGatewayRecord([]byte{1}); !errors.Is(err, ErrRecordTooShort) {
		t.Fatalf("expected ErrRecordTooShort, got %v", err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	if _, err := DecodeGatewayRecord([]byte{9, 0}); !errors.Is(err, ErrUnsupportedRecord) {
		t.Fatalf("expected ErrUnsupportedRecord, got %v", err)
	}
}

func TestDecodeRejectsTruncatedField(t *testing.T) {
	// version=1, fieldCount=1, tag=0x01, len=0x0010 (16) but no value bytes follow.
	data := []byte{1, 1, 0x01, 0x00, 0x10}
	if _, err := DecodeGatewayRecord(data); !errors.Is(err, ErrFieldTruncated) {
		t.Fatalf("expected ErrFieldTruncated, got %v", err)
	}
}

func TestEmptyNetworkNameRoundTrips(t *testing.T) {
	g := GatewayRecord{Channel: 1, NetworkKey: []byte{1, 2, 3}}
	got, err := DecodeGatewayRecord(EncodeGatewayRecord(g))
	if err != nil {
		t.Fatalf("DecodeGatewayRecord: %v", err)
	}
	if got.NetworkName != "" {
		t.Fatal("expected empty network name to round-trip as empty")
	}
}
