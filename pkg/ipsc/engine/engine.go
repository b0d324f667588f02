// Package engine implements the per-tick maintenance logic for both IPSC
// roles: the peer-role registration/keepalive sequence and the
// master-role staleness sweep. Both ticks run under the owning System's
// lock so a tick never overlaps a dispatch for the same system.
package engine

import (
	"net"
	"time"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/auth"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/state"
)

// Sender abstracts the UDP socket write so the engine and its tests don't
// depend on a live net.UDPConn.
type Sender interface {
	SendTo(addr *net.UDPAddr, data []byte) error
}

// Notifier receives the maintenance-driven state transitions the tick
// functions produce, so a host application can audit-log them without
// the engine depending on any particular logging or persistence
// package. A nil Notifier is valid and simply drops every event.
type Notifier interface {
	PeerEvicted(system string, peerID packet.RadioID)
	MasterDisconnected(system string)
}

func notifyPeerEvicted(n Notifier, system string, peerID packet.RadioID) {
	if n != nil {
		n.PeerEvicted(system, peerID)
	}
}

func notifyMasterDisconnected(n Notifier, system string) {
	if n != nil {
		n.MasterDisconnected(system)
	}
}

// masterStaleAfter is the master-role staleness window.
const masterStaleAfter = 120 * time.Second

func send(authr auth.Authenticator, out Sender, addr *net.UDPAddr, data []byte) {
	_ = out.SendTo(addr, authr.Wrap(data))
}

// PeerRoleTick runs one maintenance-timer iteration for a system acting
// as an IPSC peer (the common case): register with the master if not yet
// connected, send a keepalive otherwise, request the peer list once the
// master is connected, and maintain registration/keepalive with every
// known peer.
func PeerRoleTick(sys *state.System, authr auth.Authenticator, out Sender, notif Notifier, now time.Time) {
	sys.Lock()
	defer sys.Unlock()

	masterAddr, err := sys.Config.MasterAddr()
	if err != nil {
		return
	}

	if sys.Master.Role < state.MasterConnected {
		sys.Master.Role = state.MasterRegistering
		send(authr, out, masterAddr, packet.BuildMasterRegReq(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags))
		return
	}

	send(authr, out, masterAddr, packet.BuildMasterAliveReq(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags))
	applyMissCounter(&sys.Master.Status, sys.Config.MaxMissed, func() {
		sys.Master.Role = state.MasterUnknown
		sys.Master.Status.PeerListReceived = false
		sys.Master.Status.Connected = false
		notifyMasterDisconnected(notif, sys.Config.Name)
	})

	if sys.Master.Role == state.MasterConnected {
		if sys.Master.NumPeers > 0 {
			sys.Master.Role = state.MasterPeerListPending
			send(authr, out, masterAddr, packet.BuildPeerListReq(sys.Config.LocalRadioID))
		} else {
			sys.Master.Status.PeerListReceived = true
			sys.Master.Role = state.MasterReady
		}
	}

	if !sys.Master.Status.PeerListReceived {
		return
	}

	for _, id := range sys.SortedPeerIDs() {
		if id == sys.Config.LocalRadioID {
			continue
		}
		p := sys.Peers[id]
		addr := p.Addr()

		if p.Role != state.PeerConnected {
			p.Role = state.PeerRegistering
			send(authr, out, addr, packet.BuildPeerRegReq(sys.Config.LocalRadioID))
			continue
		}

		send(authr, out, addr, packet.BuildPeerAliveReq(sys.Config.LocalRadioID, sys.Config.Mode, sys.Config.Flags))
		evicted := false
		applyMissCounter(&p.Status, sys.Config.MaxMissed, func() { evicted = true })
		if evicted {
			sys.RemovePeer(id)
			notifyPeerEvicted(notif, sys.Config.Name, id)
		}
	}
}

// applyMissCounter implements the miss-counter logic shared by the
// master keepalive and the per-peer keepalive: if a reply to the
// previous keepalive is still outstanding, count it missed; past the
// miss threshold, call onEvict and zero the outstanding count; in all
// cases, record that a new keepalive was just sent.
func applyMissCounter(status *state.Status, maxMissed int, onEvict func()) {
	if status.KeepAlivesOutstanding > 0 {
		status.KeepAlivesMissed++
	}
	if status.KeepAlivesOutstanding >= maxMissed {
		onEvict()
		status.KeepAlivesOutstanding = 0
	}
	status.KeepAlivesSent++
	status.KeepAlivesOutstanding++
}

// MasterRoleTick runs one maintenance-timer iteration for a system
// acting as the IPSC master: any peer silent for more than 120 seconds
// is de-registered and the remaining peer list is broadcast to every
// surviving peer.
func MasterRoleTick(sys *state.System, authr auth.Authenticator, out Sender, notif Notifier, now time.Time) {
	sys.Lock()
	defer sys.Unlock()

	var stale []packet.RadioID
	for _, id := range sys.SortedPeerIDs() {
		p := sys.Peers[id]
		if now.Sub(p.Status.LastKeepAliveRx) > masterStaleAfter {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}
	for _, id := range stale {
		sys.RemovePeer(id)
		notifyPeerEvicted(notif, sys.Config.Name, id)
	}

	entries := sys.PeerListEntries()
	body := packet.BuildPeerListReply(sys.Config.LocalRadioID, entries)
	for _, id := range sys.SortedPeerIDs() {
		send(authr, out, sys.Peers[id].Addr(), body)
	}
}
