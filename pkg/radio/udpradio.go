package radio

import (
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// maxUDPFrame bounds the datagrams this radio will read: 6-byte MAC prefix
// plus the protocol's own MaxFrameSize (250).
const maxUDPFrame = 6 + 250

// UDPRadio stands in for ESP-NOW on a development workstation: a UDP socket
// carrying [srcMAC(6) || payload] datagrams, with a static MAC-to-address
// directory in place of real radio addressing. Grounded on
// pkg/p2p/udp_connection.go's raw net.UDPConn plus frameHandler callback and
// atomic send/recv counters, trimmed of its IPv4-checksum/RTT-echo
// machinery (not meaningful for a 6-byte-addressed broadcast radio).
type UDPRadio struct {
	conn     *net.UDPConn
	localMAC MAC

	mu        sync.RWMutex
	directory map[MAC]*net.UDPAddr
	onReceive ReceiveFunc

	sendCount uint64
	recvCount uint64

	closed atomic.Bool
}

// NewUDPRadio binds listenAddr (e.g. ":7667") and identifies itself as
// localMAC.
func NewUDPRadio(listenAddr string, localMAC MAC) (*UDPRadio, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("radio: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("radio: listen: %w", err)
	}
	return &UDPRadio{
		conn:      conn,
		localMAC:  localMAC,
		directory: make(map[MAC]*net.UDPAddr),
	}, nil
}

// LocalMAC implements Radio.
func (u *UDPRadio) LocalMAC() MAC {
	return u.localMAC
}

// AddPeer registers where frames to mac should be sent. The gateway and
// node binaries call this once at startup (and the gateway again whenever a
// node's observed source address changes); a real ESP-NOW driver needs no
// such step because the hardware addresses by MAC directly.
func (u *UDPRadio) AddPeer(mac MAC, addr *net.UDPAddr) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.directory[mac] = addr
}

// SetReceiveCallback implements Radio.
func (u *UDPRadio) SetReceiveCallback(fn ReceiveFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onReceive = fn
}

// Send implements Radio.
func (u *UDPRadio) Send(dst MAC, data []byte) error {
	u.mu.RLock()
	addr, ok := u.directory[dst]
	u.mu.RUnlock()
	if !ok {
		return fmt.Errorf("radio: %w: %s", ErrUnknownDestination, hex.EncodeToString(dst[:]))
	}

	packet := make([]byte, 0, 6+len(data))
	packet = append(packet, u.localMAC[:]...)
	packet = append(packet, data...)

	if _, err := u.conn.WriteToUDP(packet, addr); err != nil {
		return fmt.Errorf("radio: send: %w", err)
	}
	atomic.AddUint64(&u.sendCount, 1)
	return nil
}

// Listen implements Radio. The receive callback, per spec.md §4.7, must
// copy the frame and return quickly; it may run in this goroutine's
// "driver context" and nothing downstream of it may block.
func (u *UDPRadio) Listen() error {
	buf := make([]byte, maxUDPFrame)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if u.closed.Load() {
				return nil
			}
			return fmt.Errorf("radio: read: %w", err)
		}
		if n < 6 {
			continue // malformed datagram, too short to carry a source MAC
		}

		var src MAC
		copy(src[:], buf[:6])
		payload := make([]byte, n-6)
		copy(payload, buf[6:n])

		atomic.AddUint64(&u.recvCount, 1)

		u.mu.RLock()
		cb := u.onReceive
		u.mu.RUnlock()
		if cb != nil {
			cb(src, payload)
		}
	}
}

// Close implements Radio.
func (u *UDPRadio) Close() error {
	u.closed.Store(true)
	return u.conn.Close()
}

// Stats returns the send/receive datagram counts.
func (u *UDPRadio) Stats() (sent, received uint64) {
	return atomic.LoadUint64(&u.sendCount), atomic.LoadUint64(&u.recvCount)
}
