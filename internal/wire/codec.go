// Package wire implements the 2-byte chunk header codec used by PWS:
// encode/decode of the big-endian header, and index reconstruction from a
// truncated 14-bit wire value.
package wire

import "encoding/binary"

// Header layout (16 bits, MSB-first):
//
//	bit 15       signal bit
//	bit 14       jet bit
//	bits 0-13    i_lsb (low 14 bits of index) or signal code
const (
	HeaderSize = 2

	SignalBit = uint16(1) << 15
	JetBit    = uint16(1) << 14

	// LSBWindow is the modulus of the on-wire index (14-bit LSB space).
	LSBWindow = 1 << 14
	lsbMask   = LSBWindow - 1

	// Signal codes. Payloads are signal-specific (see package pws).
	SignalACK         = uint16(0x8010)
	SignalRESEND      = uint16(0x8011)
	SignalResendError = uint16(0x8012)
	SignalPING        = uint16(0x8020)
	SignalPONG        = uint16(0x8021)
)

// EncodeHeader returns the 2-byte big-endian header for a data or jet-command
// chunk. isCommand only has meaning when jet is true; per spec the command
// form (header >= 0xC000) only ever appears on the jet channel.
func EncodeHeader(index uint64, jet, isCommand bool) [2]byte {
	v := uint16(index % LSBWindow)
	if jet {
		v |= JetBit
	}
	if isCommand {
		v |= SignalBit
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b
}

// EncodeSignal returns the 2-byte big-endian header for a signal chunk.
func EncodeSignal(code uint16) [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], code)
	return b
}

// DecodeHeader reads the big-endian 16-bit header value from the first 2
// bytes of a chunk.
func DecodeHeader(b []byte) uint16 {
	return binary.BigEndian.Uint16(b[:2])
}

// IsSignal reports whether a decoded header value is a signal (range
// 32768-49151).
func IsSignal(h uint16) bool {
	return h&SignalBit != 0 && h&JetBit == 0
}

// IsJetCommand reports whether a decoded header value is a jet command
// (range 49152-65535, i.e. both the signal and jet bits set).
func IsJetCommand(h uint16) bool {
	return h&SignalBit != 0 && h&JetBit != 0
}

// IsJetData reports whether a decoded header value is jet-channel data
// (range 16384-32767).
func IsJetData(h uint16) bool {
	return h&SignalBit == 0 && h&JetBit != 0
}

// IsMessage reports whether a decoded header value is an RPC-channel data
// chunk (range 0-16383).
func IsMessage(h uint16) bool {
	return h&SignalBit == 0 && h&JetBit == 0
}

// Lsb extracts the low 14 bits of a decoded header (index or signal
// payload, depending on header range).
func Lsb(h uint16) uint16 {
	return h & lsbMask
}

// Unmod reconstructs the full index n such that n mod window == xx and
// |near - n| <= window/2, with ties at the split point mapping to the lower
// half. window defaults conceptually to LSBWindow (16384) for PWS indices,
// but is parameterized so the law in spec law 1 can be tested generically.
// When near is smaller than window/2 the result can fall below zero and wrap
// to a value near 2^64; the distance bound then holds on the uint64 ring.
func Unmod(xx uint16, near uint64, window uint64) uint64 {
	w := int64(window)
	x := int64(uint64(xx) % window)
	n := int64(near % window)

	diff := x - n
	diff = ((diff % w) + w) % w // into [0, w)
	if diff >= w/2 {
		// Ties (diff == w/2) map to the lower candidate (spec law 1).
		diff -= w
	}

	base := int64(near) + diff
	return uint64(base)
}

// UnmodDefault calls Unmod with the PWS default window of 16384.
func UnmodDefault(xx uint16, near uint64) uint64 {
	return Unmod(xx, near, LSBWindow)
}
