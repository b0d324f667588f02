// Package packet defines the IPSC control-packet opcodes, the
// packet-class membership sets used to validate a frame's source before
// dispatch, and encoders/decoders for the 12 control packets and the
// peer-list entries carried inside PEER_LIST_REPLY.
package packet

import (
	"fmt"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/codec"
)

// Opcode is the 1-byte IPSC packet type that opens every frame.
type Opcode byte

// Opcode values. GroupVoice through MasterAliveReply are confirmed
// against the ipsc2hbrp reference test in _examples/other_examples; the
// remaining peer-role and control-monitor opcodes extend that table
// self-consistently (see DESIGN.md).
const (
	OpGroupVoice   Opcode = 0x80
	OpPrivateVoice Opcode = 0x81
	OpGroupData    Opcode = 0x83
	OpPrivateData  Opcode = 0x84
	OpRptWakeUp    Opcode = 0x85

	OpXCMPXNL       Opcode = 0x70
	OpCallMonStatus Opcode = 0x71
	OpCallMonRpt    Opcode = 0x72
	OpCallMonNack   Opcode = 0x73

	OpMasterRegReq   Opcode = 0x90
	OpMasterRegReply Opcode = 0x91
	OpPeerListReq    Opcode = 0x92
	OpPeerListReply  Opcode = 0x93
	OpPeerRegReq     Opcode = 0x94
	OpPeerRegReply   Opcode = 0x95
	OpMasterAliveReq Opcode = 0x96
	OpMasterAliveRep Opcode = 0x97
	OpPeerAliveReq   Opcode = 0x98
	OpPeerAliveReply Opcode = 0x99
	OpDeRegReq       Opcode = 0x9A
	OpDeRegReply     Opcode = 0x9B
)

func (o Opcode) String() string {
	switch o {
	case OpGroupVoice:
		return "GROUP_VOICE"
	case OpPrivateVoice:
		return "PVT_VOICE"
	case OpGroupData:
		return "GROUP_DATA"
	case OpPrivateData:
		return "PVT_DATA"
	case OpRptWakeUp:
		return "RPT_WAKE_UP"
	case OpXCMPXNL:
		return "XCMP_XNL"
	case OpCallMonStatus:
		return "CALL_MON_STATUS"
	case OpCallMonRpt:
		return "CALL_MON_RPT"
	case OpCallMonNack:
		return "CALL_MON_NACK"
	case OpMasterRegReq:
		return "MASTER_REG_REQ"
	case OpMasterRegReply:
		return "MASTER_REG_REPLY"
	case OpPeerListReq:
		return "PEER_LIST_REQ"
	case OpPeerListReply:
		return "PEER_LIST_REPLY"
	case OpPeerRegReq:
		return "PEER_REG_REQ"
	case OpPeerRegReply:
		return "PEER_REG_REPLY"
	case OpMasterAliveReq:
		return "MASTER_ALIVE_REQ"
	case OpMasterAliveRep:
		return "MASTER_ALIVE_REPLY"
	case OpPeerAliveReq:
		return "PEER_ALIVE_REQ"
	case OpPeerAliveReply:
		return "PEER_ALIVE_REPLY"
	case OpDeRegReq:
		return "DE_REG_REQ"
	case OpDeRegReply:
		return "DE_REG_REPLY"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(o))
	}
}

// IPSCVersion is the single-byte protocol version appended to the
// handshake and keepalive packets.
const IPSCVersion byte = 0x04

// HeaderLen is the opcode + 4-byte RadioID prefix common to every control
// packet.
const HeaderLen = 5

// USERPackets are the four user-plane packet types carrying voice/data
// traffic.
var USERPackets = opcodeSet(OpGroupVoice, OpPrivateVoice, OpGroupData, OpPrivateData)

// AnyPeerRequired packets are accepted if their source RadioID is either
// a known peer or the system's master, the accept-if-either reading of
// the reference source check.
var AnyPeerRequired = opcodeSet(
	OpGroupVoice, OpPrivateVoice, OpGroupData, OpPrivateData,
	OpXCMPXNL, OpCallMonStatus, OpCallMonRpt, OpCallMonNack,
	OpDeRegReq, OpDeRegReply, OpRptWakeUp,
)

// PeerRequired packets are accepted only from a known peer.
var PeerRequired = opcodeSet(OpPeerAliveReq, OpPeerAliveReply, OpPeerRegReq, OpPeerRegReply)

// MasterRequired packets are accepted only from the system's registered
// master.
var MasterRequired = opcodeSet(OpMasterAliveRep, OpPeerListReply)

func opcodeSet(ops ...Opcode) map[Opcode]struct{} {
	set := make(map[Opcode]struct{}, len(ops))
	for _, o := range ops {
		set[o] = struct{}{}
	}
	return set
}

// RadioID is the 4-byte identifier of a master or peer.
type RadioID [4]byte

// Uint32 renders a RadioID as its decimal/integer value for display.
func (r RadioID) Uint32() uint32 { return codec.UnpackID(r[:]) }

func (r RadioID) String() string { return fmt.Sprintf("%d", r.Uint32()) }

// RadioIDFrom packs a uint32 into a RadioID.
func RadioIDFrom(v uint32) RadioID {
	var r RadioID
	copy(r[:], codec.PackID(v, 4))
	return r
}

func header(op Opcode, id RadioID) []byte {
	buf := make([]byte, 0, HeaderLen)
	buf = append(buf, byte(op))
	buf = append(buf, id[:]...)
	return buf
}

// ParseHeader extracts the opcode and sender RadioID common to every
// control and user packet. Returns an error if data is shorter than
// HeaderLen.
func ParseHeader(data []byte) (Opcode, RadioID, error) {
	if len(data) < HeaderLen {
		return 0, RadioID{}, fmt.Errorf("packet: frame too short for header: %d bytes", len(data))
	}
	var id RadioID
	copy(id[:], data[1:5])
	return Opcode(data[0]), id, nil
}

// tsFlags encodes the MODE(1B)||FLAGS(4B) field every registration and
// keepalive frame carries: mode, then the 4-byte FLAGS value.
func tsFlags(mode byte, flags [4]byte) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, mode)
	return append(buf, flags[:]...)
}

// BuildMasterRegReq builds a peer->master MASTER_REG_REQ: opcode, local
// RadioID, tsFlags, ipscVersion.
func BuildMasterRegReq(local RadioID, mode byte, flags [4]byte) []byte {
	buf := header(OpMasterRegReq, local)
	buf = append(buf, tsFlags(mode, flags)...)
	return append(buf, IPSCVersion)
}

// BuildMasterRegReply builds a master->peer MASTER_REG_REPLY: opcode,
// local RadioID, tsFlags, numPeers(2B), ipscVersion.
func BuildMasterRegReply(local RadioID, mode byte, flags [4]byte, numPeers uint16) []byte {
	buf := header(OpMasterRegReply, local)
	buf = append(buf, tsFlags(mode, flags)...)
	buf = append(buf, codec.PackID(uint32(numPeers), 2)...)
	return append(buf, IPSCVersion)
}

// BuildMasterAliveReq builds a peer->master MASTER_ALIVE_REQ.
func BuildMasterAliveReq(local RadioID, mode byte, flags [4]byte) []byte {
	buf := header(OpMasterAliveReq, local)
	buf = append(buf, tsFlags(mode, flags)...)
	return append(buf, IPSCVersion)
}

// BuildMasterAliveReply builds a master->peer MASTER_ALIVE_REPLY.
func BuildMasterAliveReply(local RadioID, mode byte, flags [4]byte) []byte {
	buf := header(OpMasterAliveRep, local)
	buf = append(buf, tsFlags(mode, flags)...)
	return append(buf, IPSCVersion)
}

// BuildPeerListReq builds a peer->master PEER_LIST_REQ (header only).
func BuildPeerListReq(local RadioID) []byte {
	return header(OpPeerListReq, local)
}

// PeerListEntry is the 11-byte per-peer record carried inside a
// PEER_LIST_REPLY body.
type PeerListEntry struct {
	RadioID RadioID
	IP      [4]byte
	Port    uint16
	Mode    byte
}

const peerListEntryLen = 11

// BuildPeerListReply builds a master->peer PEER_LIST_REPLY: opcode, local
// RadioID, peerListLen(2B), entries...
func BuildPeerListReply(local RadioID, entries []PeerListEntry) []byte {
	buf := header(OpPeerListReply, local)
	body := BuildPeerList(entries)
	buf = append(buf, codec.PackID(uint32(len(body)), 2)...)
	return append(buf, body...)
}

// BuildPeerList encodes a slice of PeerListEntry into the raw entry bytes
// (without the length prefix), 11 bytes per entry.
func BuildPeerList(entries []PeerListEntry) []byte {
	buf := make([]byte, 0, len(entries)*peerListEntryLen)
	for _, e := range entries {
		buf = append(buf, e.RadioID[:]...)
		buf = append(buf, e.IP[:]...)
		buf = append(buf, codec.PackID(uint32(e.Port), 2)...)
		buf = append(buf, e.Mode)
	}
	return buf
}

// ParsePeerList decodes the raw peer-list entry bytes (the body following
// the 2-byte length field) into PeerListEntry values. Truncated trailing
// bytes that don't form a full 11-byte entry are skipped; the full
// entries before them are still returned.
func ParsePeerList(body []byte) []PeerListEntry {
	n := len(body) / peerListEntryLen
	entries := make([]PeerListEntry, 0, n)
	for i := 0; i < n; i++ {
		off := i * peerListEntryLen
		var e PeerListEntry
		copy(e.RadioID[:], body[off:off+4])
		copy(e.IP[:], body[off+4:off+8])
		e.Port = uint16(codec.UnpackID(body[off+8 : off+10]))
		e.Mode = body[off+10]
		entries = append(entries, e)
	}
	return entries
}

// BuildPeerRegReq builds a peer->peer PEER_REG_REQ: opcode, local RadioID,
// ipscVersion.
func BuildPeerRegReq(local RadioID) []byte {
	return append(header(OpPeerRegReq, local), IPSCVersion)
}

// BuildPeerRegReply builds a peer->peer PEER_REG_REPLY.
func BuildPeerRegReply(local RadioID) []byte {
	return append(header(OpPeerRegReply, local), IPSCVersion)
}

// BuildPeerAliveReq builds a peer->peer PEER_ALIVE_REQ: opcode, local
// RadioID, tsFlags.
func BuildPeerAliveReq(local RadioID, mode byte, flags [4]byte) []byte {
	return append(header(OpPeerAliveReq, local), tsFlags(mode, flags)...)
}

// BuildPeerAliveReply builds a peer->peer PEER_ALIVE_REPLY.
func BuildPeerAliveReply(local RadioID, mode byte, flags [4]byte) []byte {
	return append(header(OpPeerAliveReply, local), tsFlags(mode, flags)...)
}

// BuildDeRegReq builds a DE_REG_REQ (header only).
func BuildDeRegReq(local RadioID) []byte {
	return header(OpDeRegReq, local)
}

// BuildDeRegReply builds a DE_REG_REPLY (header only).
func BuildDeRegReply(local RadioID) []byte {
	return header(OpDeRegReply, local)
}

// UserPacket is a decoded GROUP_VOICE/PVT_VOICE/GROUP_DATA/PVT_DATA frame.
type UserPacket struct {
	SourceID      uint32 // 3-byte subscriber ID
	DestinationID uint32 // 3-byte talkgroup/subscriber ID
	CallType      byte
	Timeslot      int // 1 or 2
	End           bool
}

const (
	userOffsetSrc      = 6
	userOffsetDst      = 9
	userOffsetCallType = 12
	userOffsetCallInfo = 17
	userMinLen         = 18

	tsCallMask byte = 0x40
	endMask    byte = 0x80
)

// ParseUserPacket decodes the source/destination/call-type/timeslot/end
// fields of a USER_PACKETS frame.
func ParseUserPacket(data []byte) (UserPacket, error) {
	if len(data) < userMinLen {
		return UserPacket{}, fmt.Errorf("packet: user frame too short: %d bytes", len(data))
	}
	callInfo := data[userOffsetCallInfo]
	ts := 1
	if callInfo&tsCallMask != 0 {
		ts = 2
	}
	return UserPacket{
		SourceID:      codec.UnpackID(data[userOffsetSrc : userOffsetSrc+3]),
		DestinationID: codec.UnpackID(data[userOffsetDst : userOffsetDst+3]),
		CallType:      data[userOffsetCallType],
		Timeslot:      ts,
		End:           callInfo&endMask != 0,
	}, nil
}
