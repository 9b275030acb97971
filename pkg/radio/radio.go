// Package radio abstracts the link-layer transport EnigmaIOT runs over.
// The protocol only requires fire-and-forget send/receive addressed by a
// 6-byte MAC; pkg/radio/udpradio.go provides a UDP-broadcast-backed
// implementation standing in for ESP-NOW on non-microcontroller runtimes.
package radio

import "errors"

// MAC is a 6-byte link-layer address.
type MAC [6]byte

// ErrUnknownDestination is returned by Send when dst has no known endpoint.
var ErrUnknownDestination = errors.New("radio: unknown destination MAC")

// ReceiveFunc is invoked once per inbound frame. Implementations must copy
// data before returning if they retain it past the call, matching the
// spec's requirement that the producer side never blocks.
type ReceiveFunc func(src MAC, data []byte)

// Radio is the link-layer transport EnigmaIOT sends and receives frames
// over: symmetric send/receive of raw bytes addressed by 6-byte MAC
// (spec.md §2, "Radio Abstraction").
type Radio interface {
	// LocalMAC returns this endpoint's own address.
	LocalMAC() MAC
	// Send transmits data to dst. It does not guarantee delivery or
	// ordering — matching the underlying broadcast radio's semantics.
	Send(dst MAC, data []byte) error
	// SetReceiveCallback installs the function invoked for every inbound
	// frame. It must be called before Listen.
	SetReceiveCallback(fn ReceiveFunc)
	// Listen starts the receive loop; it blocks until Close is called or
	// the underlying transport fails.
	Listen() error
	// Close releases the underlying transport.
	Close() error
}
