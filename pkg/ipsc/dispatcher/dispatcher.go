// Package dispatcher implements UDP datagram ingress for an IPSC system:
// authentication, opcode classification, source validation against the
// packet-class sets, state mutation, and handoff to the host
// application's callbacks.
package dispatcher

import (
	"fmt"
	"net"
	"time"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/auth"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/codec"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/engine"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/ipscerr"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/state"
)

// Callbacks is the boundary the dispatcher exposes to the host
// application. Implementations must not retain raw past return.
type Callbacks interface {
	GroupVoice(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte)
	PrivateVoice(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte)
	GroupData(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte)
	PrivateData(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte)
	XCMPXNL(system string, peerID packet.RadioID, raw []byte)
	CallMonStatus(system string, peerID packet.RadioID, raw []byte)
	CallMonRpt(system string, peerID packet.RadioID, raw []byte)
	CallMonNack(system string, peerID packet.RadioID, raw []byte)
	RepeaterWakeUp(system string, peerID packet.RadioID, raw []byte)
	UnknownMessage(system string, peerID packet.RadioID, raw []byte)

	// Lifecycle hooks fire on registration/auth state transitions so a
	// host application can audit-log them without the dispatcher
	// depending on any particular store.
	MasterRegistered(system string, masterID packet.RadioID)
	PeerAdmitted(system string, peerID packet.RadioID)
	PeerConnected(system string, peerID packet.RadioID)
	PeerDeregistered(system string, peerID packet.RadioID)
	AuthFailure(system string, from *net.UDPAddr)
}

const peerListHeaderLen = 7 // opcode(1) + radioID(4) + peerListLen(2)

// Dispatch authenticates, classifies and routes one inbound datagram for
// sys. It runs under sys's lock so it never overlaps a maintenance tick
// for the same system. Every returned error has already been handled
// (the frame dropped, state left unmodified); callers should log it and
// continue, never treat it as fatal.
func Dispatch(sys *state.System, authr auth.Authenticator, out engine.Sender, data []byte, from *net.UDPAddr, cb Callbacks, now time.Time) error {
	sys.Lock()
	defer sys.Unlock()

	payload, ok := authr.Verify(data)
	if !ok {
		cb.AuthFailure(sys.Config.Name, from)
		return fmt.Errorf("dispatcher: %w", ipscerr.ErrAuthFailure)
	}

	op, peerID, err := packet.ParseHeader(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: %w: %v", ipscerr.ErrUnknownOpcode, err)
	}

	switch {
	case isUserOrAnyPeer(op):
		return dispatchAnyPeer(sys, authr, out, payload, op, peerID, from, cb, now)
	case isPeerRequired(op):
		return dispatchPeerRequired(sys, authr, out, payload, op, peerID, from, cb, now)
	case isMasterRequired(op):
		return dispatchMasterRequired(sys, payload, op, peerID, now)
	case op == packet.OpMasterRegReply:
		handleMasterRegReply(sys, payload, peerID, now)
		cb.MasterRegistered(sys.Config.Name, peerID)
		return nil
	case sys.Config.MasterPeer && isMasterRoleRequest(op):
		return dispatchMasterRoleRequest(sys, authr, out, payload, op, peerID, from, cb, now)
	default:
		cb.UnknownMessage(sys.Config.Name, peerID, payload)
		return fmt.Errorf("dispatcher: %w: 0x%02X", ipscerr.ErrUnknownOpcode, byte(op))
	}
}

func isUserOrAnyPeer(op packet.Opcode) bool {
	_, ok := packet.AnyPeerRequired[op]
	return ok
}

func isPeerRequired(op packet.Opcode) bool {
	_, ok := packet.PeerRequired[op]
	return ok
}

func isMasterRequired(op packet.Opcode) bool {
	_, ok := packet.MasterRequired[op]
	return ok
}

func isMasterRoleRequest(op packet.Opcode) bool {
	return op == packet.OpMasterRegReq || op == packet.OpMasterAliveReq || op == packet.OpPeerListReq
}

// validAnyPeerSource accepts a frame whose source is either the system's
// registered master or a known peer, the accept-if-either reading of
// the reference source check.
func validAnyPeerSource(sys *state.System, peerID packet.RadioID) bool {
	if sys.Master.RadioID != (packet.RadioID{}) && peerID == sys.Master.RadioID {
		return true
	}
	_, known := sys.Peers[peerID]
	return known
}

func dispatchAnyPeer(sys *state.System, authr auth.Authenticator, out engine.Sender, data []byte, op packet.Opcode, peerID packet.RadioID, from *net.UDPAddr, cb Callbacks, now time.Time) error {
	if !validAnyPeerSource(sys, peerID) {
		return fmt.Errorf("dispatcher: %w: %v from %v", ipscerr.ErrUnknownSource, op, peerID)
	}

	if _, isUser := packet.USERPackets[op]; isUser {
		up, err := packet.ParseUserPacket(data)
		if err != nil {
			return fmt.Errorf("dispatcher: %w: %v", ipscerr.ErrUnknownOpcode, err)
		}
		sys.ResetKeepAlive(peerID, now)
		switch op {
		case packet.OpGroupVoice:
			cb.GroupVoice(sys.Config.Name, up.SourceID, up.DestinationID, up.Timeslot, up.End, peerID, data)
		case packet.OpPrivateVoice:
			cb.PrivateVoice(sys.Config.Name, up.SourceID, up.DestinationID, up.Timeslot, up.End, peerID, data)
		case packet.OpGroupData:
			cb.GroupData(sys.Config.Name, up.SourceID, up.DestinationID, up.Timeslot, up.End, peerID, data)
		case packet.OpPrivateData:
			cb.PrivateData(sys.Config.Name, up.SourceID, up.DestinationID, up.Timeslot, up.End, peerID, data)
		}
		return nil
	}

	switch op {
	case packet.OpXCMPXNL:
		cb.XCMPXNL(sys.Config.Name, peerID, data)
	case packet.OpCallMonStatus:
		cb.CallMonStatus(sys.Config.Name, peerID, data)
	case packet.OpCallMonRpt:
		cb.CallMonRpt(sys.Config.Name, peerID, data)
	case packet.OpCallMonNack:
		cb.CallMonNack(sys.Config.Name, peerID, data)
	case packet.OpRptWakeUp:
		cb.RepeaterWakeUp(sys.Config.Name, peerID, data)
	case packet.OpDeRegReq, packet.OpDeRegReply:
		sys.RemovePeer(peerID)
		cb.PeerDeregistered(sys.Config.Name, peerID)
	}
	return nil
}

func dispatchPeerRequired(sys *state.System, authr auth.Authenticator, out engine.Sender, data []byte, op packet.Opcode, peerID packet.RadioID, from *net.UDPAddr, cb Callbacks, now time.Time) error {
	p, known := sys.Peers[peerID]
	if !known {
		return fmt.Errorf("dispatcher: %w: %v from %v", ipscerr.ErrUnknownSource, op, peerID)
	}

	switch op {
	case packet.OpPeerAliveReq:
		if len(data) >= packet.HeaderLen+5 {
			p.Mode = data[packet.HeaderLen]
			p.ModeDecode = codec.DecodeMode(p.Mode)
			copy(p.Flags[:], data[packet.HeaderLen+1:packet.HeaderLen+5])
			p.FlagsDecode = codec.DecodeFlags(p.Flags)
		}
		sendTo(authr, out, from, packet.BuildPeerAliveReply(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags))
		sys.ResetKeepAlive(peerID, now)
	case packet.OpPeerRegReq:
		sendTo(authr, out, from, packet.BuildPeerRegReply(sys.Config.LocalRadioID))
	case packet.OpPeerAliveReply:
		sys.ResetKeepAlive(peerID, now)
		p.Status.KeepAlivesReceived++
	case packet.OpPeerRegReply:
		p.Role = state.PeerConnected
		p.Status.Connected = true
		cb.PeerConnected(sys.Config.Name, peerID)
	}
	return nil
}

func dispatchMasterRequired(sys *state.System, data []byte, op packet.Opcode, peerID packet.RadioID, now time.Time) error {
	if sys.Master.RadioID == (packet.RadioID{}) || peerID != sys.Master.RadioID {
		return fmt.Errorf("dispatcher: %w: %v from %v", ipscerr.ErrUnknownSource, op, peerID)
	}

	switch op {
	case packet.OpMasterAliveRep:
		sys.ResetKeepAlive(peerID, now)
	case packet.OpPeerListReply:
		sys.Master.Status.PeerListReceived = true
		if len(data) > 18 {
			entries := parsePeerListBody(data)
			sys.ReconcilePeerList(entries)
		}
		sys.ResetKeepAlive(peerID, now)
	}
	return nil
}

func parsePeerListBody(data []byte) []packet.PeerListEntry {
	n := int(codec.UnpackID(data[packet.HeaderLen : packet.HeaderLen+2]))
	end := peerListHeaderLen + n
	if end > len(data) {
		end = len(data)
	}
	return packet.ParsePeerList(data[peerListHeaderLen:end])
}

func handleMasterRegReply(sys *state.System, data []byte, peerID packet.RadioID, now time.Time) {
	if len(data) < packet.HeaderLen+7 {
		return
	}
	mode := data[packet.HeaderLen]
	var flags [4]byte
	copy(flags[:], data[packet.HeaderLen+1:packet.HeaderLen+5])
	numPeers := int(codec.UnpackID(data[packet.HeaderLen+5 : packet.HeaderLen+7]))

	sys.Master.RadioID = peerID
	sys.Master.Mode = mode
	sys.Master.ModeDecode = codec.DecodeMode(mode)
	sys.Master.Flags = flags
	sys.Master.FlagsDecode = codec.DecodeFlags(flags)
	sys.Master.NumPeers = numPeers
	sys.Master.Role = state.MasterConnected
	sys.Master.Status.Connected = true
	sys.ResetKeepAlive(peerID, now)
}

func dispatchMasterRoleRequest(sys *state.System, authr auth.Authenticator, out engine.Sender, data []byte, op packet.Opcode, peerID packet.RadioID, from *net.UDPAddr, cb Callbacks, now time.Time) error {
	switch op {
	case packet.OpMasterRegReq:
		numPeers := len(sys.Peers) + 1 // us plus every peer already known
		sendTo(authr, out, from, packet.BuildMasterRegReply(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags, uint16(numPeers)))

		mode := sys.Config.Mode
		var flags [4]byte
		if len(data) >= packet.HeaderLen+5 {
			mode = data[packet.HeaderLen]
			copy(flags[:], data[packet.HeaderLen+1:packet.HeaderLen+5])
		}
		sys.Peers[peerID] = &state.PeerState{
			RadioID:     peerID,
			IP:          udpAddrToBytes(from),
			Port:        uint16(from.Port),
			Mode:        mode,
			ModeDecode:  codec.DecodeMode(mode),
			Flags:       flags,
			FlagsDecode: codec.DecodeFlags(flags),
			Role:        state.PeerConnected,
			Status: state.Status{
				Connected:       true,
				LastKeepAliveRx: now,
			},
		}
		cb.PeerAdmitted(sys.Config.Name, peerID)
	case packet.OpMasterAliveReq:
		if p, ok := sys.Peers[peerID]; ok {
			p.Status.LastKeepAliveRx = now
		}
		sendTo(authr, out, from, packet.BuildMasterAliveReply(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags))
	case packet.OpPeerListReq:
		if _, ok := sys.Peers[peerID]; !ok {
			return fmt.Errorf("dispatcher: %w: %v from %v", ipscerr.ErrUnknownSource, op, peerID)
		}
		entries := sys.PeerListEntries()
		sendTo(authr, out, from, packet.BuildPeerListReply(sys.Config.LocalRadioID, entries))
	}
	return nil
}

func sendTo(authr auth.Authenticator, out engine.Sender, addr *net.UDPAddr, data []byte) {
	_ = out.SendTo(addr, authr.Wrap(data))
}

func udpAddrToBytes(addr *net.UDPAddr) [4]byte {
	var b [4]byte
	ip := addr.IP.To4()
	if ip != nil {
		copy(b[:], ip)
	}
	return b
}
