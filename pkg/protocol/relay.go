// ABOUTME: Binary relay framing for audio forwarded to the master
// ABOUTME: One length byte, the sender address, then the payload
package protocol

import (
	"errors"
	"fmt"
)

// MaxAddrLen is the longest sender address a relay frame can carry.
const MaxAddrLen = 255

var (
	// ErrShortFrame is returned for frames that end before the address does.
	ErrShortFrame = errors.New("protocol: relay frame too short")
	// ErrAddrTooLong is returned when an address does not fit in one byte.
	ErrAddrTooLong = errors.New("protocol: relay address too long")
)

// EncodeRelayFrame prefixes payload with the sender address.
func EncodeRelayFrame(addr string, payload []byte) ([]byte, error) {
	if len(addr) > MaxAddrLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrAddrTooLong, len(addr))
	}
	frame := make([]byte, 1+len(addr)+len(payload))
	frame[0] = byte(len(addr))
	copy(frame[1:], addr)
	copy(frame[1+len(addr):], payload)
	return frame, nil
}

// DecodeRelayFrame splits a relay frame. The payload aliases frame.
func DecodeRelayFrame(frame []byte) (addr string, payload []byte, err error) {
	if len(frame) < 1 {
		return "", nil, ErrShortFrame
	}
	n := int(frame[0])
	if len(frame) < 1+n {
		return "", nil, fmt.Errorf("%w: address needs %d bytes, have %d", ErrShortFrame, n, len(frame)-1)
	}
	return string(frame[1 : 1+n]), frame[1+n:], nil
}
