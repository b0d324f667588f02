// Package codec implements the byte-level IPSC wire helpers: big-endian
// hex-id packing, dotted-quad IP conversion, and the MODE/FLAGS bit
// decoders described by the IPSC header.
package codec

import (
	"fmt"
	"net"
)

// PackID packs v into the low width bytes of a big-endian byte run.
// width is 2, 3, or 4 depending on the field (subscriber IDs are 3 bytes,
// RadioIDs are 4).
func PackID(v uint32, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// UnpackID reads a big-endian byte run of any width into an unsigned
// integer.
func UnpackID(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// IPToBytes converts a dotted-quad IPv4 address to its 4-byte
// representation.
func IPToBytes(dotted string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(dotted)
	if ip == nil {
		return out, fmt.Errorf("codec: invalid IPv4 address %q", dotted)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("codec: %q is not an IPv4 address", dotted)
	}
	copy(out[:], v4)
	return out, nil
}

// BytesToIP renders a 4-byte IPv4 address in dotted-quad form.
func BytesToIP(b [4]byte) string {
	return net.IPv4(b[0], b[1], b[2], b[3]).String()
}

// MODE byte bit masks. PeerModeMask is a two-bit field; the four possible
// values are broken out below. Confirmed against the packet-type/mode
// constants in the ipsc2hbrp reference test (_examples/other_examples);
// see DESIGN.md for the full grounding note.
const (
	PeerOpMask   byte = 0x40
	PeerModeMask byte = 0x30
	TS1Mask      byte = 0x08
	TS2Mask      byte = 0x02
)

// PeerMode enumerates the two-bit PEER_MODE_MSK field of the MODE byte.
type PeerMode int

const (
	PeerModeNoRadio PeerMode = iota
	PeerModeAnalog
	PeerModeDigital
	PeerModeUnknown
)

func (m PeerMode) String() string {
	switch m {
	case PeerModeNoRadio:
		return "NO_RADIO"
	case PeerModeAnalog:
		return "ANALOG"
	case PeerModeDigital:
		return "DIGITAL"
	default:
		return "UNKNOWN"
	}
}

// ModeDecode is the decoded form of a MODE byte, as seen on a peer.
type ModeDecode struct {
	PeerOperational bool
	PeerMode        PeerMode
	TS1             bool
	TS2             bool
}

// DecodeMode splits a MODE byte into its operational/mode/timeslot bits.
func DecodeMode(b byte) ModeDecode {
	var mode PeerMode
	switch b & PeerModeMask {
	case 0x00:
		mode = PeerModeNoRadio
	case 0x10:
		mode = PeerModeAnalog
	case 0x20:
		mode = PeerModeDigital
	default:
		mode = PeerModeUnknown
	}
	return ModeDecode{
		PeerOperational: b&PeerOpMask != 0,
		PeerMode:        mode,
		TS1:             b&TS1Mask != 0,
		TS2:             b&TS2Mask != 0,
	}
}

// ModeByte returns the literal MODE byte a local peer advertises for a
// given TS1/TS2 linking configuration. These four values are not
// independently-composed bit flags in the reference protocol; they are a
// lookup table.
func ModeByte(ts1, ts2 bool) byte {
	switch {
	case ts1 && ts2:
		return 0x6A
	case ts1 && !ts2:
		return 0x69
	case !ts1 && ts2:
		return 0x66
	default:
		return 0x65
	}
}

// FLAGS byte masks. Byte index 2 (the third of the 4 FLAGS bytes) carries
// CSBK/RCM/conventional-application bits; byte index 3 carries the XNL
// status bits, the auth flag, and the data/voice/master capability bits.
const (
	CSBKMask      byte = 0x80 // byte index 2
	RptMonMask    byte = 0x40 // byte index 2
	ConAppMask    byte = 0x20 // byte index 2
	XNLStatMask   byte = 0x80 // byte index 3
	XNLMasterMask byte = 0x40 // byte index 3
	XNLSlaveMask  byte = 0x20 // byte index 3
	PktAuthMask   byte = 0x10 // byte index 3
	DataCallMask  byte = 0x08 // byte index 3
	VoiceCallMask byte = 0x04 // byte index 3
	MstrPeerMask  byte = 0x02 // byte index 3
)

// FlagsBase/FlagsAuth are the FLAGS a peer advertises at registration,
// with or without auth enabled.
const (
	FlagsBase uint32 = 0x0000000C // VOICE_CALL_MSK | DATA_CALL_MSK
	FlagsAuth uint32 = 0x0000001C // FlagsBase | PKT_AUTH_MSK
)

// FlagsDecode is the decoded form of a 4-byte FLAGS field.
type FlagsDecode struct {
	CSBK      bool
	RCM       bool
	ConApp    bool
	XNLConn   bool
	XNLMaster bool
	XNLSlave  bool
	Auth      bool
	Data      bool
	Voice     bool
	Master    bool
}

// DecodeFlags splits a 4-byte FLAGS field into its component bits.
func DecodeFlags(b [4]byte) FlagsDecode {
	byte3 := b[2]
	byte4 := b[3]
	return FlagsDecode{
		CSBK:      byte3&CSBKMask != 0,
		RCM:       byte3&RptMonMask != 0,
		ConApp:    byte3&ConAppMask != 0,
		XNLConn:   byte4&XNLStatMask != 0,
		XNLMaster: byte4&XNLMasterMask != 0,
		XNLSlave:  byte4&XNLSlaveMask != 0,
		Auth:      byte4&PktAuthMask != 0,
		Data:      byte4&DataCallMask != 0,
		Voice:     byte4&VoiceCallMask != 0,
		Master:    byte4&MstrPeerMask != 0,
	}
}

// FlagsBytes renders a FLAGS uint32 (FlagsBase or FlagsAuth) as the 4-byte
// wire form.
func FlagsBytes(flags uint32) [4]byte {
	return [4]byte{
		byte(flags >> 24),
		byte(flags >> 16),
		byte(flags >> 8),
		byte(flags),
	}
}
