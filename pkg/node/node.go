// Package node implements the EnigmaIOT node side of the protocol: the
// handshake orchestrator that registers with a gateway, the session-keyed
// send/receive path, and the capability-record hooks a sensor application
// plugs into instead of subclassing a controller base class. Grounded on
// client/daemon/handshake.go's HandshakeOrchestrator (hello/challenge/
// response/established step sequence) and client/daemon/connection.go's
// single-loop dispatch style, adapted from a TCP relay client to a
// connectionless radio peer.
package node

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/enigmaiot/enigmaiot/pkg/crypto/aead"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/classical"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/handshakemac"
	"github.com/enigmaiot/enigmaiot/pkg/frame"
	"github.com/enigmaiot/enigmaiot/pkg/logging"
	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
	"github.com/enigmaiot/enigmaiot/pkg/queue"
	"github.com/enigmaiot/enigmaiot/pkg/radio"
	"github.com/enigmaiot/enigmaiot/pkg/session"
)

var (
	ErrNotRegistered   = errors.New("node: not registered with a gateway")
	ErrHandshakeTimeout = errors.New("node: handshake timed out")
)

// Callbacks are the capability-record hooks a sensor application supplies
// instead of subclassing a controller base class (spec.md §9 "re-architected
// patterns").
type Callbacks struct {
	OnSetup func(n *Node)
	OnLoop  func(n *Node)
	OnRx    func(payload []byte, lost uint16, isControl bool)
}

type rawFrame struct {
	data []byte
}

// Node is one peer's view of its own session with a single gateway.
type Node struct {
	localMAC   nodetable.MAC
	gatewayMAC nodetable.MAC
	networkKey []byte
	sleepy     bool

	status       nodetable.Status
	sessionKey   [32]byte
	noncePrefix  [8]byte
	keyID        byte
	upCounter    uint16
	downCounter  uint16
	downStrikes  int
	name         string

	broadcastEpoch      byte
	broadcastKey        [32]byte
	broadcastSeen       uint16
	broadcastUpCounter  uint16

	pendingName string

	handshakePriv      []byte
	handshakeIV        [12]byte
	handshakeDeadline   time.Time
	handshakeTimeout    time.Duration

	rx     *queue.Ring[rawFrame]
	radio  radio.Radio
	logger *logging.Logger

	callbacks Callbacks
}

// Config bundles node construction parameters beyond the radio/logger.
type Config struct {
	GatewayMAC       nodetable.MAC
	NetworkKey       []byte
	Sleepy           bool
	QueueSize        int
	OverflowSize     int
	HandshakeTimeout time.Duration
}

// New constructs a Node bound to r, ready to Arm and Register.
func New(r radio.Radio, cfg Config, logger *logging.Logger, cb Callbacks) *Node {
	var localMAC nodetable.MAC
	copy(localMAC[:], r.LocalMAC()[:])

	return &Node{
		localMAC:         localMAC,
		gatewayMAC:       cfg.GatewayMAC,
		networkKey:       cfg.NetworkKey,
		sleepy:           cfg.Sleepy,
		status:           nodetable.Unregistered,
		handshakeTimeout: cfg.HandshakeTimeout,
		rx:               queue.NewRing[rawFrame](cfg.QueueSize, cfg.OverflowSize),
		radio:            r,
		logger:           logger,
		callbacks:        cb,
	}
}

// Arm installs the receive callback without blocking on Listen.
func (n *Node) Arm() {
	n.radio.SetReceiveCallback(n.onReceive)
}

// Start arms the node and runs the application's OnSetup hook.
func (n *Node) Start() {
	n.Arm()
	if n.callbacks.OnSetup != nil {
		n.callbacks.OnSetup(n)
	}
}

func (n *Node) onReceive(src radio.MAC, data []byte) {
	if nodetable.MAC(src) != n.gatewayMAC {
		return // only one peer is trusted: the configured gateway
	}
	cp := append([]byte(nil), data...)
	n.rx.Push(rawFrame{data: cp})
}

// Dispatch drains and processes one queued frame, reporting whether one was
// available.
func (n *Node) Dispatch() bool {
	rf, ok := n.rx.Pop()
	if !ok {
		return false
	}
	n.handleFrame(rf.data)
	return true
}

// Tick runs the application's OnLoop hook; callers invoke it on a fixed
// interval alongside Dispatch, matching the cooperative scheduling model
// spec.md §5 describes for both ends of the link.
func (n *Node) Tick() {
	if n.callbacks.OnLoop != nil {
		n.callbacks.OnLoop(n)
	}
}

// Status reports the node's current place in the handshake lifecycle.
func (n *Node) Status() nodetable.Status { return n.status }

// Register sends CLIENT_HELLO and transitions to InitPending. The
// SERVER_HELLO reply is processed asynchronously by Dispatch; callers poll
// Status to learn the outcome.
func (n *Node) Register() error {
	kp, err := classical.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("node: generate handshake keypair: %w", err)
	}
	var pub [32]byte
	copy(pub[:], kp.PublicKey)

	var iv [12]byte
	if _, err := rand.Read(iv[:]); err != nil {
		return fmt.Errorf("node: generate handshake iv: %w", err)
	}

	h := handshakemac.Compute(n.networkKey, []byte{byte(frame.MsgClientHello)}, pub[:], iv[:])
	hello, err := frame.EncodeHello(frame.MsgClientHello, frame.HelloFrame{PublicKey: pub, IV: iv, HMAC: h})
	if err != nil {
		return fmt.Errorf("node: encode client hello: %w", err)
	}

	n.handshakePriv = kp.PrivateKey
	n.handshakeIV = iv
	n.handshakeDeadline = time.Now().Add(n.handshakeTimeout)
	n.status = nodetable.InitPending

	return n.send(hello)
}

// CheckHandshakeTimeout reverts to Unregistered if InitPending has exceeded
// HANDSHAKE_TIMEOUT without a SERVER_HELLO (spec.md §5 "cancellation &
// timeouts"). Callers invoke it from the same tick loop as Dispatch/Tick.
func (n *Node) CheckHandshakeTimeout(now time.Time) {
	if n.status == nodetable.InitPending && now.After(n.handshakeDeadline) {
		n.status = nodetable.Unregistered
		n.handshakePriv = nil
	}
}

func (n *Node) handleFrame(data []byte) {
	msgType, err := frame.PeekType(data)
	if err != nil {
		return // BadFrame: drop silently
	}

	switch msgType {
	case frame.MsgServerHello:
		n.handleServerHello(data)
	case frame.MsgInvalidateKey:
		n.handleInvalidateKey(data)
	default:
		n.handleEncrypted(msgType, data)
	}
}

func (n *Node) handleServerHello(data []byte) {
	if n.status != nodetable.InitPending {
		return
	}
	_, hf, err := frame.DecodeHello(data)
	if err != nil {
		return
	}

	key, prefix, err := session.CompleteHandshake(n.networkKey, n.handshakePriv, n.handshakeIV, hf.PublicKey, hf.IV, hf.HMAC, byte(frame.MsgClientHello))
	if err != nil {
		n.logger.Warn("handshake rejected by node", logging.Fields{"error": err.Error()})
		n.status = nodetable.Unregistered
		n.handshakePriv = nil
		return
	}

	n.sessionKey = key
	n.noncePrefix = prefix
	n.handshakePriv = nil
	n.keyID++ // key_id is never carried on the wire at handshake time: both
	// sides derive it identically as "one more than this peer's last
	// accepted value", starting at 1 on a node's first-ever handshake.
	n.upCounter = 0
	n.downCounter = 0
	n.downStrikes = 0
	n.status = nodetable.Registered
}

func (n *Node) handleInvalidateKey(data []byte) {
	ikf, err := frame.DecodeInvalidateKey(data)
	if err != nil {
		return
	}
	if !handshakemac.Verify(n.networkKey, ikf.HMAC, []byte{ikf.Reason}) {
		return
	}
	n.status = nodetable.Unregistered
}

func (n *Node) handleEncrypted(msgType frame.MsgType, data []byte) {
	if n.status != nodetable.Registered {
		return
	}
	_, ef, err := frame.DecodeEncryptedFrame(data)
	if err != nil {
		return
	}

	resolved, err := frame.DecodeControlFrame(frame.Downstream, msgType)
	if err != nil {
		return
	}

	if resolved == frame.MsgBroadcastKeyResponse || n.isBroadcastType(resolved) {
		n.handlePossiblyBroadcast(resolved, ef)
		return
	}

	if ef.KeyID != n.keyID {
		return // stale epoch: silent drop, same tie-break rule as the gateway
	}

	nonce := aead.BuildNonce(aead.Prefix(n.noncePrefix), ef.KeyID, aead.DirectionDownstream, ef.Counter)
	aad := buildAAD(resolved, n.gatewayMAC, n.localMAC, ef.KeyID)
	plaintext, err := aead.Open(n.sessionKey, nonce, ef.Ciphertext, aad)
	if err != nil {
		n.onDownstreamFailure()
		return
	}
	lost, err := session.CheckCounter(&n.downCounter, ef.Counter, session.ReplayWindow)
	if err != nil {
		n.onDownstreamFailure()
		return
	}
	n.downStrikes = 0

	switch resolved {
	case frame.MsgClockResponse:
		n.handleClockResponse(plaintext)
	case frame.MsgNodeNameResult:
		n.handleNodeNameResult(plaintext)
	case frame.MsgDownstreamDataSet, frame.MsgDownstreamDataGet:
		n.deliver(plaintext, lost, false)
	case frame.MsgDownstreamControlData:
		n.deliver(plaintext, lost, true)
	case frame.MsgHADiscovery:
		n.deliver(plaintext, lost, true)
	default:
		n.logger.Debug("unhandled downstream frame", logging.Fields{"type": fmt.Sprintf("0x%02x", byte(resolved))})
	}
}

// isBroadcastType reports whether resolved carries the gateway's broadcast
// key rather than the per-session one.
func (n *Node) isBroadcastType(t frame.MsgType) bool {
	switch t {
	case frame.MsgSensorBroadcastData, frame.MsgDownstreamBroadcastDataSet,
		frame.MsgDownstreamBroadcastDataGet, frame.MsgDownstreamBroadcastControlData:
		return true
	default:
		return false
	}
}

func (n *Node) handlePossiblyBroadcast(resolved frame.MsgType, ef frame.EncryptedFrame) {
	if resolved == frame.MsgBroadcastKeyResponse {
		if ef.KeyID != n.keyID {
			return
		}
		nonce := aead.BuildNonce(aead.Prefix(n.noncePrefix), ef.KeyID, aead.DirectionDownstream, ef.Counter)
		aad := buildAAD(resolved, n.gatewayMAC, n.localMAC, ef.KeyID)
		plaintext, err := aead.Open(n.sessionKey, nonce, ef.Ciphertext, aad)
		if err != nil {
			n.onDownstreamFailure()
			return
		}
		if _, err := session.CheckCounter(&n.downCounter, ef.Counter, session.ReplayWindow); err != nil {
			n.onDownstreamFailure()
			return
		}
		resp, err := frame.DecodeBroadcastKeyResponse(plaintext)
		if err != nil {
			return
		}
		n.broadcastEpoch = resp.Epoch
		n.broadcastKey = resp.Key
		n.broadcastSeen = 0
		return
	}

	// Broadcast frames carry their nonce on the wire rather than deriving
	// one from a per-session prefix: the gateway is the sole sender for
	// every receiver sharing this key, so the nonce is chosen (and
	// transmitted) there, not independently reconstructed per peer.
	aad := buildAAD(resolved, n.gatewayMAC, nodetable.MAC{}, ef.KeyID)
	plaintext, err := aead.Open(n.broadcastKey, ef.Nonce, ef.Ciphertext, aad)
	if err != nil {
		return
	}
	lost, err := session.CheckCounter(&n.broadcastSeen, ef.Counter, session.ReplayWindow)
	if err != nil {
		return
	}
	n.deliver(plaintext, lost, resolved == frame.MsgDownstreamBroadcastControlData)
}

func (n *Node) onDownstreamFailure() {
	n.downStrikes++
	if n.downStrikes < session.StrikeLimit {
		return
	}
	n.downStrikes = 0
	n.status = nodetable.Unregistered
}

func (n *Node) deliver(payload []byte, lost uint16, isControl bool) {
	if n.callbacks.OnRx != nil {
		n.callbacks.OnRx(payload, lost, isControl)
	}
}

func (n *Node) handleClockResponse(plaintext []byte) {
	_, err := frame.DecodeClockResponse(plaintext)
	if err != nil {
		return
	}
	// The response is only decoded to check its shape: no t4 is taken, no
	// offset or round-trip is computed, and nothing is passed to OnRx.
}

func (n *Node) handleNodeNameResult(plaintext []byte) {
	res, err := frame.DecodeNodeNameResult(plaintext)
	if err != nil {
		return
	}
	if res.Code == frame.NameResultOK {
		n.name = n.pendingName
	}
	n.pendingName = ""
}

// SendSensorData encrypts and transmits an upstream SENSOR_DATA frame.
func (n *Node) SendSensorData(payload []byte) error {
	return n.sendUpstream(frame.MsgSensorData, payload)
}

// SendControlData encrypts and transmits an upstream CONTROL_DATA frame.
func (n *Node) SendControlData(payload []byte) error {
	return n.sendUpstream(frame.MsgControlData, payload)
}

// SendBroadcastSensorData encrypts and transmits an upstream
// SENSOR_BRCAST_DATA frame under the gateway's broadcast key, so sibling
// nodes sharing that key can decrypt it too, not just the gateway (spec.md
// §6). Requires a broadcast key already issued via BROADCAST_KEY_RESPONSE.
func (n *Node) SendBroadcastSensorData(payload []byte) error {
	if n.status != nodetable.Registered {
		return ErrNotRegistered
	}
	n.broadcastUpCounter++
	prefix, err := aead.NewPrefix()
	if err != nil {
		return fmt.Errorf("node: generate broadcast nonce prefix: %w", err)
	}
	nonce := aead.BuildNonce(prefix, n.broadcastEpoch, aead.DirectionBroadcast, n.broadcastUpCounter)
	aad := buildAAD(frame.MsgSensorBroadcastData, n.localMAC, nodetable.MAC{}, n.broadcastEpoch)
	ciphertext, err := aead.Seal(n.broadcastKey, nonce, payload, aad)
	if err != nil {
		return fmt.Errorf("node: seal broadcast: %w", err)
	}
	encoded, err := frame.EncodeEncryptedFrame(frame.MsgSensorBroadcastData, frame.EncryptedFrame{
		KeyID:      n.broadcastEpoch,
		Counter:    n.broadcastUpCounter,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return fmt.Errorf("node: encode broadcast frame: %w", err)
	}
	return n.send(encoded)
}

// RequestBroadcastKey asks the gateway to (re-)send the current broadcast
// key, for a node that missed the one issued at registration.
func (n *Node) RequestBroadcastKey() error {
	return n.sendUpstream(frame.MsgBroadcastKeyRequest, nil)
}

// RequestClockSync sends CLOCK_REQUEST{t1}. Dispatch decodes the matching
// CLOCK_RESPONSE but computes no offset or round-trip from it and does not
// hand it to the application.
func (n *Node) RequestClockSync() error {
	payload := frame.EncodeClockRequest(frame.ClockRequestPayload{T1: uint64(time.Now().UnixMicro())})
	return n.sendUpstream(frame.MsgClockRequest, payload)
}

// SetName requests the gateway assign this node a unique display name.
func (n *Node) SetName(name string) error {
	payload, err := frame.EncodeNodeNameSet(frame.NodeNameSetPayload{Name: name})
	if err != nil {
		return fmt.Errorf("node: encode node name set: %w", err)
	}
	n.pendingName = name
	return n.sendUpstream(frame.MsgNodeNameSet, payload)
}

func (n *Node) sendUpstream(msgType frame.MsgType, plaintext []byte) error {
	if n.status != nodetable.Registered {
		return ErrNotRegistered
	}
	n.upCounter++
	nonce := aead.BuildNonce(aead.Prefix(n.noncePrefix), n.keyID, aead.DirectionUpstream, n.upCounter)
	aad := buildAAD(msgType, n.localMAC, n.gatewayMAC, n.keyID)
	ciphertext, err := aead.Seal(n.sessionKey, nonce, plaintext, aad)
	if err != nil {
		return fmt.Errorf("node: seal: %w", err)
	}
	encoded, err := frame.EncodeEncryptedFrame(msgType, frame.EncryptedFrame{
		KeyID:      n.keyID,
		Counter:    n.upCounter,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return fmt.Errorf("node: encode encrypted frame: %w", err)
	}
	return n.send(encoded)
}

func (n *Node) send(data []byte) error {
	var dst radio.MAC
	copy(dst[:], n.gatewayMAC[:])
	return n.radio.Send(dst, data)
}

func buildAAD(msgType frame.MsgType, src, dst nodetable.MAC, keyID byte) []byte {
	aad := make([]byte, 0, 1+6+6+1)
	aad = append(aad, byte(msgType))
	aad = append(aad, src[:]...)
	aad = append(aad, dst[:]...)
	aad = append(aad, keyID)
	return aad
}
