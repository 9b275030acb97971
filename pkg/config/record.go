package config

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Persisted-state record format (spec.md §6, fixed precisely by SPEC_FULL
// §6): [recordVersion:1][fieldCount:1]{[tag:1][len:2][value]}*
const recordVersion = 1

// Field tags, shared by both record kinds; a given tag means the same thing
// in both so decoders can share field-walking logic.
const (
	TagChannel         byte = 0x01
	TagNetworkKey      byte = 0x02
	TagNetworkName     byte = 0x03
	TagGatewayMAC      byte = 0x04
	TagNodeName        byte = 0x05
	TagBroadcastMaster byte = 0x06
	TagLocalMAC        byte = 0x07
)

var (
	ErrRecordTooShort    = errors.New("config: record too short")
	ErrUnsupportedRecord = errors.New("config: unsupported record version")
	ErrFieldTruncated    = errors.New("config: field value truncated")
)

// GatewayRecord is the gateway's persisted state: {channel, network_key,
// network_name, broadcast_master, local_mac}. BroadcastMaster and LocalMAC
// are generated once at first run and then held fixed so a restarted
// gateway keeps issuing broadcast keys from the same lineage and remains
// reachable at the address nodes already have on file.
type GatewayRecord struct {
	Channel         byte
	NetworkKey      []byte
	NetworkName     string
	BroadcastMaster [32]byte
	LocalMAC        [6]byte
}

// NodeRecord is the node's persisted state: {gateway_mac, network_key,
// node_name}.
type NodeRecord struct {
	GatewayMAC [6]byte
	NetworkKey []byte
	NodeName   string
}

// EncodeGatewayRecord serializes g as a TLV record.
func EncodeGatewayRecord(g GatewayRecord) []byte {
	var w tlvWriter
	w.field(TagChannel, []byte{g.Channel})
	w.field(TagNetworkKey, g.NetworkKey)
	w.field(TagNetworkName, []byte(g.NetworkName))
	w.field(TagBroadcastMaster, g.BroadcastMaster[:])
	w.field(TagLocalMAC, g.LocalMAC[:])
	return w.finish()
}

// DecodeGatewayRecord parses a TLV record produced by EncodeGatewayRecord.
func DecodeGatewayRecord(data []byte) (GatewayRecord, error) {
	var g GatewayRecord
	fields, err := decodeFields(data)
	if err != nil {
		return g, err
	}
	for _, f := range fields {
		switch f.tag {
		case TagChannel:
			if len(f.value) != 1 {
				return g, fmt.Errorf("%w: channel", ErrFieldTruncated)
			}
			g.Channel = f.value[0]
		case TagNetworkKey:
			g.NetworkKey = append([]byte(nil), f.value...)
		case TagNetworkName:
			g.NetworkName = string(f.value)
		case TagBroadcastMaster:
			if len(f.value) != 32 {
				return g, fmt.Errorf("%w: broadcast_master", ErrFieldTruncated)
			}
			copy(g.BroadcastMaster[:], f.value)
		case TagLocalMAC:
			if len(f.value) != 6 {
				return g, fmt.Errorf("%w: local_mac", ErrFieldTruncated)
			}
			copy(g.LocalMAC[:], f.value)
		}
	}
	return g, nil
}

// EncodeNodeRecord serializes n as a TLV record.
func EncodeNodeRecord(n NodeRecord) []byte {
	var w tlvWriter
	w.field(TagGatewayMAC, n.GatewayMAC[:])
	w.field(TagNetworkKey, n.NetworkKey)
	w.field(TagNodeName, []byte(n.NodeName))
	return w.finish()
}

// DecodeNodeRecord parses a TLV record produced by EncodeNodeRecord.
func DecodeNodeRecord(data []byte) (NodeRecord, error) {
	var n NodeRecord
	fields, err := decodeFields(data)
	if err != nil {
		return n, err
	}
	for _, f := range fields {
		switch f.tag {
		case TagGatewayMAC:
			if len(f.value) != 6 {
				return n, fmt.Errorf("%w: gateway_mac", ErrFieldTruncated)
			}
			copy(n.GatewayMAC[:], f.value)
		case TagNetworkKey:
			n.NetworkKey = append([]byte(nil), f.value...)
		case TagNodeName:
			n.NodeName = string(f.value)
		}
	}
	return n, nil
}

type tlvField struct {
	tag   byte
	value []byte
}

type tlvWriter struct {
	fields []tlvField
}

func (w *tlvWriter) field(tag byte, value []byte) {
	w.fields = append(w.fields, tlvField{tag: tag, value: value})
}

func (w *tlvWriter) finish() []byte {
	buf := make([]byte, 0, 2+len(w.fields)*3)
	buf = append(buf, recordVersion, byte(len(w.fields)))
	for _, f := range w.fields {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(f.value)))
		buf = append(buf, f.tag)
		buf = append(buf, l[:]...)
		buf = append(buf, f.value...)
	}
	return buf
}

func decodeFields(data []byte) ([]tlvField, error) {
	if len(data) < 2 {
		return nil, ErrRecordTooShort
	}
	if data[0] != recordVersion {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedRecord, data[0])
	}
	count := int(data[1])
	fields := make([]tlvField, 0, count)
	off := 2
	for i := 0; i < count; i++ {
		if off+3 > len(data) {
			return nil, ErrRecordTooShort
		}
		tag := data[off]
		length := int(binary.BigEndian.Uint16(data[off+1 : off+3]))
		off += 3
		if off+length > len(data) {
			return nil, ErrFieldTruncated
		}
		fields = append(fields, tlvField{tag: tag, value: data[off : off+length]})
		off += length
	}
	return fields, nil
}
