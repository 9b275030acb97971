package frame

import (
	"encoding/binary"
	"fmt"
)

// EncodeHello encodes a CLIENT_HELLO or SERVER_HELLO frame.
func EncodeHello(msgType MsgType, hf HelloFrame) ([]byte, error) {
	if msgType != MsgClientHello && msgType != MsgServerHello {
		return nil, fmt.Errorf("frame: %w for hello encode: 0x%02x", ErrUnknownMsgType, msgType)
	}
	buf := make([]byte, 1+pubKeySize+ivSize+hmacSize)
	buf[0] = byte(msgType)
	off := 1
	off += copy(buf[off:], hf.PublicKey[:])
	off += copy(buf[off:], hf.IV[:])
	copy(buf[off:], hf.HMAC[:])
	return checkSize(buf)
}

// DecodeHello decodes a CLIENT_HELLO or SERVER_HELLO frame. The caller
// supplies data including the leading type byte.
func DecodeHello(data []byte) (MsgType, HelloFrame, error) {
	var hf HelloFrame
	want := 1 + pubKeySize + ivSize + hmacSize
	if len(data) != want {
		return 0, hf, fmt.Errorf("frame: %w: hello expects %d bytes, got %d", ErrFrameTooShort, want, len(data))
	}
	msgType := MsgType(data[0])
	if msgType != MsgClientHello && msgType != MsgServerHello {
		return 0, hf, fmt.Errorf("frame: %w: 0x%02x", ErrUnknownMsgType, msgType)
	}
	off := 1
	copy(hf.PublicKey[:], data[off:off+pubKeySize])
	off += pubKeySize
	copy(hf.IV[:], data[off:off+ivSize])
	off += ivSize
	copy(hf.HMAC[:], data[off:off+hmacSize])
	return msgType, hf, nil
}

// EncodeEncryptedFrame encodes any session- or broadcast-keyed frame type:
// key_id || counter || nonce || ciphertext(+tag), prefixed by msgType.
func EncodeEncryptedFrame(msgType MsgType, ef EncryptedFrame) ([]byte, error) {
	buf := make([]byte, 0, 1+1+2+nonceSize+len(ef.Ciphertext))
	buf = append(buf, byte(msgType))
	buf = append(buf, ef.KeyID)
	var ctr [2]byte
	binary.BigEndian.PutUint16(ctr[:], ef.Counter)
	buf = append(buf, ctr[:]...)
	buf = append(buf, ef.Nonce[:]...)
	buf = append(buf, ef.Ciphertext...)
	return checkSize(buf)
}

// DecodeEncryptedFrame decodes the common key_id/counter/nonce/ciphertext
// layout shared by every session- or broadcast-keyed frame type. It does not
// decrypt; callers look up the right key by (msgType, src) and call
// aead.Open themselves.
func DecodeEncryptedFrame(data []byte) (MsgType, EncryptedFrame, error) {
	var ef EncryptedFrame
	minLen := 1 + 1 + 2 + nonceSize + aeadTagSize
	if len(data) < minLen {
		return 0, ef, fmt.Errorf("frame: %w: encrypted frame needs at least %d bytes, got %d", ErrFrameTooShort, minLen, len(data))
	}
	msgType := MsgType(data[0])
	if !isKnownEncryptedType(msgType) {
		return 0, ef, fmt.Errorf("frame: %w: 0x%02x", ErrUnknownMsgType, msgType)
	}
	off := 1
	ef.KeyID = data[off]
	off++
	ef.Counter = binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	copy(ef.Nonce[:], data[off:off+nonceSize])
	off += nonceSize
	ef.Ciphertext = append([]byte(nil), data[off:]...)
	return msgType, ef, nil
}

func isKnownEncryptedType(t MsgType) bool {
	switch t {
	case MsgSensorData, MsgSensorBroadcastData,
		MsgDownstreamDataSet, MsgDownstreamDataGet,
		MsgDownstreamBroadcastDataSet, MsgDownstreamBroadcastDataGet,
		MsgControlData, MsgDownstreamControlData, MsgDownstreamBroadcastControlData,
		MsgHADiscovery, MsgClockRequest, MsgClockResponse,
		MsgNodeNameSet, MsgNodeNameResult, MsgBroadcastKeyResponse:
		return true
	default:
		return false
	}
}

// DecodeControlFrame disambiguates wire tag 0x08 by direction: upstream
// means BROADCAST_KEY_REQUEST (always empty plaintext), downstream means
// HA_DISCOVERY_MESSAGE (opaque MsgPack payload). Callers must supply the
// direction the frame actually arrived on; it is never inferred from shape.
func DecodeControlFrame(dir Direction, msgType MsgType) (MsgType, error) {
	if msgType != MsgHADiscovery { // same numeric value as MsgBroadcastKeyRequest
		return msgType, nil
	}
	if dir == Upstream {
		return MsgBroadcastKeyRequest, nil
	}
	return MsgHADiscovery, nil
}

// EncodeUnencrypted encodes an UNENCRYPTED_NODE_DATA frame.
func EncodeUnencrypted(counter uint16, payload []byte) ([]byte, error) {
	buf := make([]byte, 0, 1+2+len(payload))
	buf = append(buf, byte(MsgUnencryptedNodeData))
	var ctr [2]byte
	binary.BigEndian.PutUint16(ctr[:], counter)
	buf = append(buf, ctr[:]...)
	buf = append(buf, payload...)
	return checkSize(buf)
}

// DecodeUnencrypted decodes an UNENCRYPTED_NODE_DATA frame (including
// leading type byte).
func DecodeUnencrypted(data []byte) (UnencryptedFrame, error) {
	var uf UnencryptedFrame
	if len(data) < 3 {
		return uf, fmt.Errorf("frame: %w: unencrypted frame needs at least 3 bytes, got %d", ErrFrameTooShort, len(data))
	}
	if MsgType(data[0]) != MsgUnencryptedNodeData {
		return uf, fmt.Errorf("frame: %w: 0x%02x", ErrUnknownMsgType, data[0])
	}
	uf.Counter = binary.BigEndian.Uint16(data[1:3])
	uf.Payload = append([]byte(nil), data[3:]...)
	return uf, nil
}

// EncodeInvalidateKey encodes an INVALIDATE_KEY frame: reason || hmac, sent
// in the clear and authenticated with the network key.
func EncodeInvalidateKey(ikf InvalidateKeyFrame) ([]byte, error) {
	buf := make([]byte, 1+1+hmacSize)
	buf[0] = byte(MsgInvalidateKey)
	buf[1] = ikf.Reason
	copy(buf[2:], ikf.HMAC[:])
	return checkSize(buf)
}

// DecodeInvalidateKey decodes an INVALIDATE_KEY frame (including leading
// type byte).
func DecodeInvalidateKey(data []byte) (InvalidateKeyFrame, error) {
	var ikf InvalidateKeyFrame
	want := 1 + 1 + hmacSize
	if len(data) != want {
		return ikf, fmt.Errorf("frame: %w: invalidate_key expects %d bytes, got %d", ErrFrameTooShort, want, len(data))
	}
	if MsgType(data[0]) != MsgInvalidateKey {
		return ikf, fmt.Errorf("frame: %w: 0x%02x", ErrUnknownMsgType, data[0])
	}
	ikf.Reason = data[1]
	copy(ikf.HMAC[:], data[2:])
	return ikf, nil
}

// PeekType returns the leading message-type tag without further decoding.
func PeekType(data []byte) (MsgType, error) {
	if len(data) < 1 {
		return 0, ErrFrameTooShort
	}
	return MsgType(data[0]), nil
}

// --- clear-text control payload helpers (encrypted separately by session) ---

// EncodeClockRequest encodes the plaintext CLOCK_REQUEST payload (t1, 8 bytes).
func EncodeClockRequest(p ClockRequestPayload) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, p.T1)
	return buf
}

// DecodeClockRequest decodes the plaintext CLOCK_REQUEST payload.
func DecodeClockRequest(data []byte) (ClockRequestPayload, error) {
	if len(data) != 8 {
		return ClockRequestPayload{}, fmt.Errorf("frame: %w: clock_request expects 8 bytes, got %d", ErrFrameTooShort, len(data))
	}
	return ClockRequestPayload{T1: binary.BigEndian.Uint64(data)}, nil
}

// EncodeClockResponse encodes the plaintext CLOCK_RESPONSE payload (t1,t2,t3).
func EncodeClockResponse(p ClockResponsePayload) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], p.T1)
	binary.BigEndian.PutUint64(buf[8:16], p.T2)
	binary.BigEndian.PutUint64(buf[16:24], p.T3)
	return buf
}

// DecodeClockResponse decodes the plaintext CLOCK_RESPONSE payload.
func DecodeClockResponse(data []byte) (ClockResponsePayload, error) {
	if len(data) != 24 {
		return ClockResponsePayload{}, fmt.Errorf("frame: %w: clock_response expects 24 bytes, got %d", ErrFrameTooShort, len(data))
	}
	return ClockResponsePayload{
		T1: binary.BigEndian.Uint64(data[0:8]),
		T2: binary.BigEndian.Uint64(data[8:16]),
		T3: binary.BigEndian.Uint64(data[16:24]),
	}, nil
}

// EncodeNodeNameSet encodes the plaintext NODE_NAME_SET payload.
func EncodeNodeNameSet(p NodeNameSetPayload) ([]byte, error) {
	if len(p.Name) > maxNameSize {
		return nil, ErrNameTooLong
	}
	return []byte(p.Name), nil
}

// DecodeNodeNameSet decodes the plaintext NODE_NAME_SET payload.
func DecodeNodeNameSet(data []byte) (NodeNameSetPayload, error) {
	if len(data) > maxNameSize {
		return NodeNameSetPayload{}, ErrNameTooLong
	}
	return NodeNameSetPayload{Name: string(data)}, nil
}

// EncodeNodeNameResult encodes the plaintext NODE_NAME_RESULT payload.
func EncodeNodeNameResult(p NodeNameResultPayload) []byte {
	return []byte{byte(p.Code)}
}

// DecodeNodeNameResult decodes the plaintext NODE_NAME_RESULT payload.
func DecodeNodeNameResult(data []byte) (NodeNameResultPayload, error) {
	if len(data) != 1 {
		return NodeNameResultPayload{}, fmt.Errorf("frame: %w: node_name_result expects 1 byte, got %d", ErrFrameTooShort, len(data))
	}
	return NodeNameResultPayload{Code: int8(data[0])}, nil
}

// EncodeBroadcastKeyResponse encodes the plaintext BROADCAST_KEY_RESPONSE payload.
func EncodeBroadcastKeyResponse(p BroadcastKeyResponsePayload) []byte {
	buf := make([]byte, 1+32)
	buf[0] = p.Epoch
	copy(buf[1:], p.Key[:])
	return buf
}

// DecodeBroadcastKeyResponse decodes the plaintext BROADCAST_KEY_RESPONSE payload.
func DecodeBroadcastKeyResponse(data []byte) (BroadcastKeyResponsePayload, error) {
	if len(data) != 33 {
		return BroadcastKeyResponsePayload{}, fmt.Errorf("frame: %w: broadcast_key_response expects 33 bytes, got %d", ErrFrameTooShort, len(data))
	}
	var p BroadcastKeyResponsePayload
	p.Epoch = data[0]
	copy(p.Key[:], data[1:])
	return p, nil
}

func checkSize(buf []byte) ([]byte, error) {
	if len(buf) > MaxFrameSize {
		return nil, fmt.Errorf("frame: %w: %d bytes > %d", ErrFrameTooLarge, len(buf), MaxFrameSize)
	}
	return buf, nil
}
