// Package frame encodes and decodes EnigmaIOT wire frames: fixed-length
// fields, explicit tags, no proportional-to-untrusted-length allocation.
package frame

import "errors"

// MsgType is the 1-byte frame tag that begins every frame.
type MsgType byte

const (
	MsgClientHello MsgType = 0xFF
	MsgServerHello MsgType = 0xFE

	MsgSensorData          MsgType = 0x01
	MsgSensorBroadcastData MsgType = 0x81
	MsgUnencryptedNodeData MsgType = 0x11

	MsgDownstreamDataSet          MsgType = 0x02
	MsgDownstreamDataGet          MsgType = 0x12
	MsgDownstreamBroadcastDataSet MsgType = 0x82
	MsgDownstreamBroadcastDataGet MsgType = 0x92

	MsgControlData                    MsgType = 0x03
	MsgDownstreamControlData          MsgType = 0x04
	MsgDownstreamBroadcastControlData MsgType = 0x84

	// MsgHADiscovery and MsgBroadcastKeyRequest share wire tag 0x08. They are
	// disambiguated by direction at decode time (see DecodeControlFrame),
	// never by guessing from payload shape.
	MsgHADiscovery         MsgType = 0x08
	MsgBroadcastKeyRequest MsgType = 0x08

	MsgClockRequest  MsgType = 0x05
	MsgClockResponse MsgType = 0x06

	MsgNodeNameSet    MsgType = 0x07
	MsgNodeNameResult MsgType = 0x17

	MsgBroadcastKeyResponse MsgType = 0x18

	MsgInvalidateKey MsgType = 0xFB
)

// Direction disambiguates frames whose tag is reused in both directions.
type Direction byte

const (
	Upstream   Direction = 0
	Downstream Direction = 1
)

// MaxFrameSize matches the ESP-NOW-like radio's MTU (spec §1, §4.1).
const MaxFrameSize = 250

const (
	pubKeySize  = 32
	ivSize      = 12
	hmacSize    = 32
	nonceSize   = 12
	aeadTagSize = 16
	maxNameSize = 32
)

var (
	ErrFrameTooShort   = errors.New("frame: too short to decode")
	ErrFrameTooLarge   = errors.New("frame: exceeds maximum MTU")
	ErrUnknownMsgType  = errors.New("frame: unknown message type")
	ErrNameTooLong     = errors.New("frame: node name exceeds 32 bytes")
	ErrAmbiguousTag    = errors.New("frame: tag 0x08 requires an explicit direction to decode")
)

// HelloFrame is the payload of CLIENT_HELLO / SERVER_HELLO.
type HelloFrame struct {
	PublicKey [pubKeySize]byte
	IV        [ivSize]byte
	HMAC      [hmacSize]byte
}

// EncryptedFrame is the common layout for every session- or broadcast-keyed
// frame type: key_id || counter || nonce || ciphertext(+tag).
type EncryptedFrame struct {
	KeyID      byte
	Counter    uint16
	Nonce      [nonceSize]byte
	Ciphertext []byte // includes the trailing 16-byte AEAD tag
}

// UnencryptedFrame is the payload of UNENCRYPTED_NODE_DATA.
type UnencryptedFrame struct {
	Counter uint16
	Payload []byte
}

// InvalidateKeyFrame is the payload of INVALIDATE_KEY: sent in the clear,
// authenticated with the network key because the recipient may no longer
// hold (or ever have held) a session key.
type InvalidateKeyFrame struct {
	Reason byte
	HMAC   [hmacSize]byte
}

// Invalidation reason codes (spec §4.2 state table, §7 error taxonomy).
const (
	ReasonUnknownError      byte = 0x00
	ReasonWrongData         byte = 0x01
	ReasonUnregisteredNode  byte = 0x02
	ReasonKeyExpired        byte = 0x03
	ReasonKicked            byte = 0x04
)

// Clock sync payloads (plaintext once decrypted from an EncryptedFrame).
type ClockRequestPayload struct {
	T1 uint64 // microseconds
}

type ClockResponsePayload struct {
	T1, T2, T3 uint64
}

// NodeNameSetPayload / NodeNameResultPayload are the decrypted payloads of
// NODE_NAME_SET / NODE_NAME_RESULT.
type NodeNameSetPayload struct {
	Name string
}

type NodeNameResultPayload struct {
	Code int8
}

// Node-name result codes (spec §7).
const (
	NameResultOK            int8 = 0
	NameResultTaken         int8 = -1
	NameResultTooLong       int8 = -2
	NameResultEmpty         int8 = -3
	NameResultInternalError int8 = -4
)

// BroadcastKeyResponsePayload is the decrypted payload of
// BROADCAST_KEY_RESPONSE.
type BroadcastKeyResponsePayload struct {
	Epoch byte
	Key   [32]byte
}
