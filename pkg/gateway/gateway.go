// Package gateway implements the EnigmaIOT gateway side of the protocol:
// the dispatcher that drains the receive queue, drives each peer's
// handshake/session state machine, and answers control frames. Grounded on
// relay/server/connection.go's ConnectionManager (the single place that
// owns every ClientConnection and reacts to its state) and
// pkg/authentication/auth.go's request/response bookkeeping style, adapted
// from a TCP connection manager to a single-threaded dispatcher over a
// connectionless radio.
package gateway

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/enigmaiot/enigmaiot/pkg/broadcast"
	"github.com/enigmaiot/enigmaiot/pkg/clocksync"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/aead"
	"github.com/enigmaiot/enigmaiot/pkg/crypto/handshakemac"
	"github.com/enigmaiot/enigmaiot/pkg/frame"
	"github.com/enigmaiot/enigmaiot/pkg/hadiscovery"
	"github.com/enigmaiot/enigmaiot/pkg/logging"
	"github.com/enigmaiot/enigmaiot/pkg/metrics"
	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
	"github.com/enigmaiot/enigmaiot/pkg/persistence"
	"github.com/enigmaiot/enigmaiot/pkg/queue"
	"github.com/enigmaiot/enigmaiot/pkg/radio"
	"github.com/enigmaiot/enigmaiot/pkg/session"
)

// RawFrame is one captured radio datagram, exactly as the queue's producer
// side (the radio receive callback) hands it to the dispatcher.
type RawFrame struct {
	Src  nodetable.MAC
	Data []byte
}

// Callbacks are the application-facing notifications spec.md §6 names.
type Callbacks struct {
	OnDataRx                 func(src nodetable.MAC, payload []byte, lost uint16, isControl bool, nodeName string)
	OnNewNode                func(src nodetable.MAC, name string)
	OnNodeDisconnected       func(src nodetable.MAC, reason byte)
	OnHADiscovery            func(mac nodetable.MAC, payload []byte)
	OnGatewayRestartRequested func()
}

// Gateway owns the node table, the broadcast key lineage, the receive
// queue, and the radio it drives. All state-machine mutation happens on
// the single goroutine that calls Dispatch/Tick (spec.md §5's
// single-threaded cooperative model); the radio's receive callback only
// ever pushes into rx.
type Gateway struct {
	localMAC   nodetable.MAC
	networkKey []byte

	table        *nodetable.Table
	broadcastMgr *broadcast.Manager
	ha           *hadiscovery.Queue
	rx           *queue.Ring[RawFrame]
	radio        radio.Radio
	logger       *logging.Logger
	audit        *persistence.AuditLog // optional, nil if no DSN configured
	cache        *persistence.WarmCache // optional, nil if no Redis address configured

	handshakeTimeout    time.Duration
	maxKeyValidity      time.Duration
	lastQueueStats      queue.Stats
	broadcastDownCounter uint16
	broadcastRotatedAt   time.Time
	sleepySet            map[nodetable.MAC]bool

	callbacks Callbacks
}

// Config bundles the tunables Gateway needs beyond what config.GatewayConfig
// already carries as duration/string fields.
type Config struct {
	NodeTableCapacity int
	QueueSize         int
	OverflowSize      int
	HandshakeTimeout  time.Duration
	MaxKeyValidity    time.Duration
	HADiscovery       hadiscovery.Config
	// SleepyMACs lists, as hex strings (nodetable.MAC.String() format), the
	// nodes known to deep-sleep between transmissions. A sleepy node has no
	// spare round-trip to declare its own capability during the handshake
	// (spec.md §1, §4.8), so the gateway operator provisions this list the
	// same out-of-band way node names and the gateway MAC are provisioned.
	SleepyMACs []string
}

// New constructs a Gateway. broadcastMaster is the 32-byte secret the epoch-0
// broadcast key is derived from; callers load or mint it via pkg/config.
func New(r radio.Radio, networkKey []byte, broadcastMaster [32]byte, cfg Config, logger *logging.Logger, cb Callbacks) (*Gateway, error) {
	mgr, err := broadcast.NewManager(broadcastMaster)
	if err != nil {
		return nil, fmt.Errorf("gateway: broadcast manager: %w", err)
	}
	var localMAC nodetable.MAC
	copy(localMAC[:], r.LocalMAC()[:])

	sleepySet := make(map[nodetable.MAC]bool, len(cfg.SleepyMACs))
	for _, s := range cfg.SleepyMACs {
		mac, err := decodeHexMAC(s)
		if err != nil {
			logger.Warn("ignoring malformed sleepy mac", logging.Fields{"mac": s, "error": err.Error()})
			continue
		}
		sleepySet[mac] = true
	}

	return &Gateway{
		localMAC:           localMAC,
		networkKey:         networkKey,
		table:              nodetable.New(cfg.NodeTableCapacity),
		broadcastMgr:       mgr,
		ha:                 hadiscovery.New(cfg.HADiscovery),
		rx:                 queue.NewRing[RawFrame](cfg.QueueSize, cfg.OverflowSize),
		radio:              r,
		logger:             logger,
		handshakeTimeout:   cfg.HandshakeTimeout,
		maxKeyValidity:     cfg.MaxKeyValidity,
		broadcastRotatedAt: time.Now(),
		sleepySet:          sleepySet,
		callbacks:          cb,
	}, nil
}

// AttachAuditLog wires an optional Postgres audit log (SPEC_FULL §6).
func (g *Gateway) AttachAuditLog(a *persistence.AuditLog) { g.audit = a }

// AttachWarmCache wires an optional Redis warm cache (SPEC_FULL §6).
func (g *Gateway) AttachWarmCache(c *persistence.WarmCache) { g.cache = c }

// Arm installs the receive callback without invoking Listen. Start calls it
// automatically; tests and callers that drive their own listen loop can
// call it directly.
func (g *Gateway) Arm() {
	g.radio.SetReceiveCallback(g.onReceive)
}

// Start installs the receive callback and begins listening. Listen blocks,
// so callers typically run Start in its own goroutine and drive Dispatch
// and Tick from the main loop.
func (g *Gateway) Start() error {
	g.Arm()
	return g.radio.Listen()
}

// onReceive is the radio's producer callback: copy and enqueue, never
// block, never process (spec.md §4.7, §5).
func (g *Gateway) onReceive(src radio.MAC, data []byte) {
	var mac nodetable.MAC
	copy(mac[:], src[:])
	cp := append([]byte(nil), data...)
	g.rx.Push(RawFrame{Src: mac, Data: cp})
}

// Dispatch drains and processes one queued frame. It returns false when the
// queue was empty, so callers can loop "for g.Dispatch() {}" to drain a
// burst, or call it once per tick.
func (g *Gateway) Dispatch() bool {
	rf, ok := g.rx.Pop()
	if !ok {
		return false
	}
	g.handleFrame(rf.Src, rf.Data)
	return true
}

// Tick runs periodic housekeeping: idle eviction, HA-discovery delivery,
// and queue gauge refresh. Callers invoke it on a fixed interval (e.g. once
// a second) from the same goroutine that calls Dispatch.
func (g *Gateway) Tick(now time.Time) {
	// Expiry (1x MAX_KEY_VALIDITY) must run before idle eviction (2x):
	// otherwise a peer that has crossed both thresholds between ticks gets
	// silently removed by EvictIdle before the expiry pass ever sees it, so
	// it never gets its INVALIDATE_KEY(KEY_EXPIRED) or OnNodeDisconnected.
	g.table.IterateActive(func(n *nodetable.Node) bool {
		if now.Sub(n.LastActivity) > g.maxKeyValidity {
			g.expireNode(n, now)
		}
		return true
	})
	for _, mac := range g.table.EvictIdle(now, 2*g.maxKeyValidity) {
		g.logger.WithPeer(mac.String()).Info("evicted idle node", nil)
	}
	g.rotateBroadcastEpoch(now)
	g.ha.Tick(func(macHex string) {
		if g.callbacks.OnHADiscovery != nil {
			// The queue only carries the hex MAC; callers needing the
			// payload look it up via their own HA-topic cache.
			var mac nodetable.MAC
			b, err := decodeHexMAC(macHex)
			if err == nil {
				mac = b
				g.callbacks.OnHADiscovery(mac, nil)
			}
		}
	})
	stats := g.rx.Stats()
	metrics.QueueOverflowTotal.Add(float64(stats.Overflowed - g.lastQueueStats.Overflowed))
	metrics.QueueDroppedTotal.Add(float64(stats.Dropped - g.lastQueueStats.Dropped))
	g.lastQueueStats = stats
	metrics.NodesRegistered.Set(float64(g.table.CountActive()))
}

func decodeHexMAC(s string) (nodetable.MAC, error) {
	var mac nodetable.MAC
	if len(s) != 12 {
		return mac, fmt.Errorf("gateway: malformed hex mac %q", s)
	}
	for i := 0; i < 6; i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return mac, err
		}
		mac[i] = b
	}
	return mac, nil
}

// rotateBroadcastEpoch advances the broadcast key once MaxKeyValidity has
// elapsed since the last rotation, then redistributes the new key to every
// registered node. Reuses MaxKeyValidity rather than a dedicated broadcast
// rotation interval, since both bound how long a symmetric key may stay live.
func (g *Gateway) rotateBroadcastEpoch(now time.Time) {
	if now.Sub(g.broadcastRotatedAt) < g.maxKeyValidity {
		return
	}
	epoch, _, err := g.broadcastMgr.Rotate()
	if err != nil {
		g.logger.Error("broadcast key rotation failed", logging.Fields{"error": err.Error()})
		return
	}
	g.broadcastRotatedAt = now
	g.broadcastDownCounter = 0
	_, hasPrevious := g.broadcastMgr.Previous()
	g.logger.Info("broadcast key rotated", logging.Fields{"epoch": epoch, "grace_window_kept": hasPrevious})
	g.table.IterateActive(func(n *nodetable.Node) bool {
		g.sendBroadcastKey(n)
		return true
	})
}

func (g *Gateway) expireNode(n *nodetable.Node, now time.Time) {
	n.Status = nodetable.Unregistered
	n.InvalidationReason = frame.ReasonKeyExpired
	// Mark the expiry itself as the record's last activity, so the idle
	// eviction pass later in this same Tick (2x threshold) gives the record
	// a full grace window of its own rather than evicting it immediately
	// because the *original* last activity is already past 2x too.
	n.LastActivity = now
	g.sendInvalidateKey(n.MAC, frame.ReasonKeyExpired)
	metrics.InvalidationsTotal.WithLabelValues("expired").Inc()
	if g.audit != nil {
		if err := g.audit.Record(n.MAC, n.Name, persistence.EventExpired, frame.ReasonKeyExpired, now); err != nil {
			g.logger.Warn("audit log record failed", logging.Fields{"error": err.Error()})
		}
	}
	if g.callbacks.OnNodeDisconnected != nil {
		g.callbacks.OnNodeDisconnected(n.MAC, frame.ReasonKeyExpired)
	}
}

// handleFrame is the dispatcher's core: decode the leading tag, route to
// the handshake path or the session-keyed path.
func (g *Gateway) handleFrame(src nodetable.MAC, data []byte) {
	msgType, err := frame.PeekType(data)
	if err != nil {
		return // BadFrame: drop silently
	}

	switch msgType {
	case frame.MsgClientHello:
		g.handleClientHello(src, data)
	case frame.MsgInvalidateKey:
		g.handlePeerInvalidate(src, data)
	case frame.MsgUnencryptedNodeData:
		g.handleUnencrypted(src, data)
	default:
		g.handleEncrypted(src, msgType, data)
	}
}

func (g *Gateway) handleClientHello(src nodetable.MAC, data []byte) {
	_, hf, err := frame.DecodeHello(data)
	if err != nil {
		return // BadFrame
	}

	peerLog := g.logger.WithPeer(src.String())

	node, gwPub, gwIV, serverHMAC, err := session.BeginHandshake(g.networkKey, hf.PublicKey, hf.IV, hf.HMAC, byte(frame.MsgClientHello))
	if err != nil {
		peerLog.Warn("handshake rejected", logging.Fields{"error": err.Error()})
		metrics.HandshakesTotal.WithLabelValues("rejected").Inc()
		return
	}
	node.MAC = src
	node.KeyID = 1
	node.Sleepy = g.sleepySet[src]
	if prev, ok := g.table.FindByMAC(src); ok {
		node.KeyID = prev.KeyID + 1
		node.Name = prev.Name
	}
	if err := g.table.Insert(node); err != nil {
		peerLog.Warn("node table full", nil)
		g.sendInvalidateKey(src, frame.ReasonUnknownError)
		return
	}

	reply, err := frame.EncodeHello(frame.MsgServerHello, frame.HelloFrame{PublicKey: gwPub, IV: gwIV, HMAC: serverHMAC})
	if err != nil {
		g.logger.Error("encode server hello failed", logging.Fields{"error": err.Error()})
		return
	}
	g.send(src, reply)

	metrics.HandshakesTotal.WithLabelValues("success").Inc()
	if g.audit != nil {
		if err := g.audit.Record(src, node.Name, persistence.EventRegistered, 0, node.RegisteredAt); err != nil {
			g.logger.Warn("audit log record failed", logging.Fields{"error": err.Error()})
		}
	}
	if g.cache != nil {
		if err := g.cache.Mirror(node); err != nil {
			g.logger.Warn("warm cache mirror failed", logging.Fields{"error": err.Error()})
		}
	}
	if g.callbacks.OnNewNode != nil {
		g.callbacks.OnNewNode(src, node.Name)
	}

	g.sendBroadcastKey(node)
	g.ha.Register(src.String(), node.Sleepy)
}

func (g *Gateway) handlePeerInvalidate(src nodetable.MAC, data []byte) {
	ikf, err := frame.DecodeInvalidateKey(data)
	if err != nil {
		return
	}
	if n, ok := g.table.FindByMAC(src); ok {
		n.Status = nodetable.Unregistered
		n.InvalidationReason = ikf.Reason
		if g.callbacks.OnNodeDisconnected != nil {
			g.callbacks.OnNodeDisconnected(src, ikf.Reason)
		}
	}
}

func (g *Gateway) handleUnencrypted(src nodetable.MAC, data []byte) {
	n, ok := g.table.FindByMAC(src)
	if !ok || n.Status != nodetable.Registered {
		g.sendInvalidateKey(src, frame.ReasonUnregisteredNode)
		return
	}
	uf, err := frame.DecodeUnencrypted(data)
	if err != nil {
		return
	}
	lost, err := session.CheckCounter(&n.UpCounter, uf.Counter, session.ReplayWindow)
	if err != nil {
		g.onUpstreamFailure(n, err)
		return
	}
	n.UpStrikes = 0
	n.LastActivity = time.Now()
	n.PacketsOK++
	metrics.PacketsOKTotal.WithLabelValues("up").Inc()
	if g.callbacks.OnDataRx != nil {
		g.callbacks.OnDataRx(src, uf.Payload, lost, false, n.Name)
	}
}

func (g *Gateway) handleEncrypted(src nodetable.MAC, msgType frame.MsgType, data []byte) {
	n, ok := g.table.FindByMAC(src)
	if !ok || n.Status != nodetable.Registered {
		g.sendInvalidateKey(src, frame.ReasonUnregisteredNode)
		return
	}

	_, ef, err := frame.DecodeEncryptedFrame(data)
	if err != nil {
		return // BadFrame
	}

	resolved, err := frame.DecodeControlFrame(frame.Upstream, msgType)
	if err != nil {
		return
	}

	if resolved == frame.MsgSensorBroadcastData {
		// SENSOR_BRCAST_DATA is the one upstream message authenticated under
		// the broadcast key rather than this peer's session key (spec.md
		// §6): ef.KeyID names a broadcast epoch here, not n.KeyID.
		g.handleUpstreamBroadcast(n, ef)
		return
	}

	if ef.KeyID != n.KeyID {
		return // stale epoch: silent drop per tie-break rule
	}

	aad := buildAAD(resolved, src, g.localMAC, ef.KeyID)
	expectedNonce := aead.BuildNonce(aead.Prefix(n.NoncePrefix), ef.KeyID, aead.DirectionUpstream, ef.Counter)
	if expectedNonce != ef.Nonce {
		g.onUpstreamFailure(n, session.ErrReplay)
		return
	}
	plaintext, err := aead.Open(n.SessionKey, ef.Nonce, ef.Ciphertext, aad)
	if err != nil {
		g.onUpstreamFailure(n, err)
		return
	}

	lost, err := session.CheckCounter(&n.UpCounter, ef.Counter, session.ReplayWindow)
	if err != nil {
		g.onUpstreamFailure(n, err)
		return
	}
	n.UpStrikes = 0
	n.LastActivity = time.Now()
	n.PacketsOK++
	metrics.PacketsOKTotal.WithLabelValues("up").Inc()

	switch resolved {
	case frame.MsgSensorData:
		g.deliverData(n, plaintext, lost, false)
	case frame.MsgControlData:
		g.deliverData(n, plaintext, lost, true)
	case frame.MsgBroadcastKeyRequest:
		g.sendBroadcastKey(n)
	case frame.MsgClockRequest:
		g.handleClockRequest(n, plaintext)
	case frame.MsgNodeNameSet:
		g.handleNodeNameSet(n, plaintext)
	default:
		g.logger.Debug("unhandled upstream control frame", logging.Fields{"type": fmt.Sprintf("0x%02x", byte(resolved))})
	}
}

// handleUpstreamBroadcast verifies and delivers SENSOR_BRCAST_DATA: sealed
// under the broadcast key for the epoch the sender names, with the nonce
// carried on the wire since many nodes share this key and none can rely on a
// per-peer prefix+counter to stay unique across senders.
func (g *Gateway) handleUpstreamBroadcast(n *nodetable.Node, ef frame.EncryptedFrame) {
	key, ok := g.broadcastMgr.KeyForEpoch(ef.KeyID)
	if !ok {
		return // unknown or long-expired epoch: silent drop
	}
	aad := buildAAD(frame.MsgSensorBroadcastData, n.MAC, nodetable.MAC{}, ef.KeyID)
	plaintext, err := aead.Open(key, ef.Nonce, ef.Ciphertext, aad)
	if err != nil {
		g.onUpstreamFailure(n, err)
		return
	}
	lost, err := session.CheckCounter(&n.BroadcastSeen, ef.Counter, session.ReplayWindow)
	if err != nil {
		g.onUpstreamFailure(n, err)
		return
	}
	n.UpStrikes = 0
	n.LastActivity = time.Now()
	n.PacketsOK++
	metrics.PacketsOKTotal.WithLabelValues("up").Inc()
	g.deliverData(n, plaintext, lost, false)
}

func (g *Gateway) deliverData(n *nodetable.Node, payload []byte, lost uint16, isControl bool) {
	if g.callbacks.OnDataRx != nil {
		g.callbacks.OnDataRx(n.MAC, payload, lost, isControl, n.Name)
	}
}

func (g *Gateway) onUpstreamFailure(n *nodetable.Node, cause error) {
	n.PacketsErr++
	metrics.PacketsErrTotal.WithLabelValues("up", classifyFailure(cause)).Inc()
	n.UpStrikes++
	if n.UpStrikes < session.StrikeLimit {
		return
	}
	n.UpStrikes = 0
	n.Status = nodetable.Unregistered
	n.InvalidationReason = frame.ReasonWrongData
	g.sendInvalidateKey(n.MAC, frame.ReasonWrongData)
	metrics.InvalidationsTotal.WithLabelValues("wrong_data").Inc()
	if g.callbacks.OnNodeDisconnected != nil {
		g.callbacks.OnNodeDisconnected(n.MAC, frame.ReasonWrongData)
	}
}

func classifyFailure(err error) string {
	switch err {
	case session.ErrReplay:
		return "replay"
	default:
		return "decrypt"
	}
}

func (g *Gateway) handleClockRequest(n *nodetable.Node, plaintext []byte) {
	req, err := frame.DecodeClockRequest(plaintext)
	if err != nil {
		return
	}
	t2 := uint64(clocksync.Now())
	resp := frame.EncodeClockResponse(frame.ClockResponsePayload{T1: req.T1, T2: t2, T3: uint64(clocksync.Now())})
	g.sendEncrypted(n, frame.MsgClockResponse, resp)
}

func (g *Gateway) handleNodeNameSet(n *nodetable.Node, plaintext []byte) {
	set, err := frame.DecodeNodeNameSet(plaintext)
	if err != nil {
		g.replyNodeNameResult(n, frame.NameResultTooLong)
		return
	}
	if set.Name == "" {
		g.replyNodeNameResult(n, frame.NameResultEmpty)
		return
	}
	if err := g.table.Rename(n.MAC, set.Name); err != nil {
		g.replyNodeNameResult(n, frame.NameResultTaken)
		return
	}
	g.replyNodeNameResult(n, frame.NameResultOK)
}

func (g *Gateway) replyNodeNameResult(n *nodetable.Node, code int8) {
	payload := frame.EncodeNodeNameResult(frame.NodeNameResultPayload{Code: code})
	g.sendEncrypted(n, frame.MsgNodeNameResult, payload)
}

func (g *Gateway) sendBroadcastKey(n *nodetable.Node) {
	epoch, key := g.broadcastMgr.Current()
	payload := frame.EncodeBroadcastKeyResponse(frame.BroadcastKeyResponsePayload{Epoch: epoch, Key: key})
	g.sendEncrypted(n, frame.MsgBroadcastKeyResponse, payload)
	n.BroadcastKeySent = true
}

// SendBroadcastDataSet seals payload under the current broadcast key and
// transmits DOWNSTREAM_BRCAST_DATA_SET to every registered node (spec.md
// §4.5, §6).
func (g *Gateway) SendBroadcastDataSet(payload []byte) {
	g.sendBroadcast(frame.MsgDownstreamBroadcastDataSet, payload)
}

// SendBroadcastDataGet transmits DOWNSTREAM_BRCAST_DATA_GET to every
// registered node, asking each to report its current value.
func (g *Gateway) SendBroadcastDataGet(payload []byte) {
	g.sendBroadcast(frame.MsgDownstreamBroadcastDataGet, payload)
}

// SendBroadcastControl transmits DOWNSTREAM_BRCAST_CTRL_DATA to every
// registered node.
func (g *Gateway) SendBroadcastControl(payload []byte) {
	g.sendBroadcast(frame.MsgDownstreamBroadcastControlData, payload)
}

// sendBroadcast seals plaintext once under the current broadcast key and
// fans the identical ciphertext out to every Registered node. Like the
// node's downstream broadcast receive path, the nonce is freshly random per
// message and travels on the wire rather than being reconstructed from a
// per-peer prefix, since every recipient (and, for SENSOR_BRCAST_DATA, every
// sender) shares this one key.
func (g *Gateway) sendBroadcast(msgType frame.MsgType, plaintext []byte) {
	epoch, key := g.broadcastMgr.Current()
	prefix, err := aead.NewPrefix()
	if err != nil {
		g.logger.Error("broadcast nonce prefix generation failed", logging.Fields{"error": err.Error()})
		return
	}
	g.broadcastDownCounter++
	nonce := aead.BuildNonce(prefix, epoch, aead.DirectionBroadcast, g.broadcastDownCounter)
	aad := buildAAD(msgType, g.localMAC, nodetable.MAC{}, epoch)
	ciphertext, err := aead.Seal(key, nonce, plaintext, aad)
	if err != nil {
		g.logger.Error("broadcast seal failed", logging.Fields{"error": err.Error()})
		return
	}
	encoded, err := frame.EncodeEncryptedFrame(msgType, frame.EncryptedFrame{
		KeyID:      epoch,
		Counter:    g.broadcastDownCounter,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		g.logger.Error("broadcast encode failed", logging.Fields{"error": err.Error()})
		return
	}
	g.table.IterateActive(func(n *nodetable.Node) bool {
		g.send(n.MAC, encoded)
		return true
	})
}

// sendEncrypted encrypts plaintext under n's session key, with a fresh
// downstream counter, and transmits it as msgType.
func (g *Gateway) sendEncrypted(n *nodetable.Node, msgType frame.MsgType, plaintext []byte) {
	n.DownCounter++
	nonce := aead.BuildNonce(aead.Prefix(n.NoncePrefix), n.KeyID, aead.DirectionDownstream, n.DownCounter)
	aad := buildAAD(msgType, g.localMAC, n.MAC, n.KeyID)
	ciphertext, err := aead.Seal(n.SessionKey, nonce, plaintext, aad)
	if err != nil {
		g.logger.Error("seal failed", logging.Fields{"error": err.Error()})
		return
	}
	encoded, err := frame.EncodeEncryptedFrame(msgType, frame.EncryptedFrame{
		KeyID:      n.KeyID,
		Counter:    n.DownCounter,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		g.logger.Error("encode encrypted frame failed", logging.Fields{"error": err.Error()})
		return
	}
	g.send(n.MAC, encoded)
}

func (g *Gateway) sendInvalidateKey(dst nodetable.MAC, reason byte) {
	h := handshakemac.Compute(g.networkKey, []byte{reason})
	encoded, err := frame.EncodeInvalidateKey(frame.InvalidateKeyFrame{Reason: reason, HMAC: h})
	if err != nil {
		return
	}
	g.send(dst, encoded)
}

func (g *Gateway) send(dst nodetable.MAC, data []byte) {
	var rdst radio.MAC
	copy(rdst[:], dst[:])
	if err := g.radio.Send(rdst, data); err != nil {
		g.logger.WithPeer(dst.String()).Warn("send failed", logging.Fields{"error": err.Error()})
	}
}

func buildAAD(msgType frame.MsgType, src, dst nodetable.MAC, keyID byte) []byte {
	aad := make([]byte, 0, 1+6+6+1)
	aad = append(aad, byte(msgType))
	aad = append(aad, src[:]...)
	aad = append(aad, dst[:]...)
	aad = append(aad, keyID)
	return aad
}

// Kick forcibly invalidates a registered node (admin action).
func (g *Gateway) Kick(mac nodetable.MAC, reason byte) error {
	n, ok := g.table.FindByMAC(mac)
	if !ok {
		return nodetable.ErrNotFound
	}
	n.Status = nodetable.Unregistered
	n.InvalidationReason = reason
	g.sendInvalidateKey(mac, reason)
	metrics.InvalidationsTotal.WithLabelValues("kicked").Inc()
	if g.callbacks.OnNodeDisconnected != nil {
		g.callbacks.OnNodeDisconnected(mac, reason)
	}
	return nil
}

// Table exposes the node table for read-only inspection.
func (g *Gateway) Table() *nodetable.Table { return g.table }

// GenerateBroadcastMaster mints a fresh 32-byte broadcast master secret for
// first-run provisioning.
func GenerateBroadcastMaster() ([32]byte, error) {
	var m [32]byte
	if _, err := rand.Read(m[:]); err != nil {
		return m, fmt.Errorf("gateway: generate broadcast master: %w", err)
	}
	return m, nil
}
