// Package state holds the per-IPSC-system data model: the immutable
// SystemConfig derived at load, the MasterState and PeerState machines,
// and the System type that owns them plus the single coarse lock that
// serializes every handler for that system.
package state

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/codec"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
)

// SystemConfig is immutable after Derive is called at load time. The raw
// fields come from pkg/config; Mode, Flags, FlagsDecode and IPSCVersion
// are computed once and never change for the life of the process.
type SystemConfig struct {
	Name          string
	Enabled       bool
	LocalRadioID  packet.RadioID
	AuthEnabled   bool
	AuthKey       []byte
	IP            string
	Port          int
	MasterIP      string
	MasterPort    int
	AliveTimerSec int
	MaxMissed     int
	TS1Link       bool
	TS2Link       bool
	MasterPeer    bool // are we the master for this system?

	Mode        byte
	Flags       [4]byte
	FlagsDecode codec.FlagsDecode
	IPSCVersion byte
}

// Derive computes Mode, Flags, FlagsDecode and IPSCVersion from the
// TS1Link/TS2Link/AuthEnabled raw fields. Call once after populating the
// raw fields; subsequent reads treat SystemConfig as immutable.
func (c *SystemConfig) Derive() {
	c.Mode = codec.ModeByte(c.TS1Link, c.TS2Link)
	flagsVal := codec.FlagsBase
	if c.AuthEnabled {
		flagsVal = codec.FlagsAuth
	}
	c.Flags = codec.FlagsBytes(flagsVal)
	c.FlagsDecode = codec.DecodeFlags(c.Flags)
	c.IPSCVersion = packet.IPSCVersion
}

// MasterAddr returns the UDP address of this system's configured master.
func (c *SystemConfig) MasterAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.MasterIP, c.MasterPort))
}

// Status is the keep-alive bookkeeping shared by MasterState and
// PeerState.
type Status struct {
	Connected             bool
	PeerListReceived      bool
	KeepAlivesSent        uint64
	KeepAlivesMissed      uint64
	KeepAlivesOutstanding int
	KeepAlivesReceived    uint64
	LastKeepAliveRx       time.Time
}

// resetKeepAlive implements the reset rule: any authenticated inbound
// frame from a party zeroes its outstanding count and stamps the
// receive time.
func (s *Status) resetKeepAlive(now time.Time) {
	s.KeepAlivesOutstanding = 0
	s.LastKeepAliveRx = now
}

// MasterRole is the peer-role view of the master state machine.
type MasterRole int

const (
	MasterUnknown MasterRole = iota
	MasterRegistering
	MasterConnected
	MasterPeerListPending
	MasterReady
)

func (r MasterRole) String() string {
	switch r {
	case MasterUnknown:
		return "UNKNOWN"
	case MasterRegistering:
		return "REGISTERING"
	case MasterConnected:
		return "CONNECTED"
	case MasterPeerListPending:
		return "PEER_LIST_PENDING"
	case MasterReady:
		return "READY"
	default:
		return "INVALID"
	}
}

// MasterState tracks our view of the system's master.
type MasterState struct {
	RadioID     packet.RadioID
	Mode        byte
	Flags       [4]byte
	ModeDecode  codec.ModeDecode
	FlagsDecode codec.FlagsDecode
	NumPeers    int
	Role        MasterRole
	Status      Status
}

// PeerRole is the per-peer state machine.
type PeerRole int

const (
	PeerUnknown PeerRole = iota
	PeerRegistering
	PeerConnected
	PeerRemoved
)

func (r PeerRole) String() string {
	switch r {
	case PeerUnknown:
		return "UNKNOWN"
	case PeerRegistering:
		return "REGISTERING"
	case PeerConnected:
		return "CONNECTED"
	case PeerRemoved:
		return "REMOVED"
	default:
		return "INVALID"
	}
}

// PeerState is a known member of the IPSC network, either learned from a
// master's peer list (peer role) or admitted via MASTER_REG_REQ (master
// role).
type PeerState struct {
	RadioID     packet.RadioID
	IP          [4]byte
	Port        uint16
	Mode        byte
	ModeDecode  codec.ModeDecode
	Flags       [4]byte
	FlagsDecode codec.FlagsDecode
	Role        PeerRole
	Status      Status
}

// Addr renders a PeerState's IP/port as a *net.UDPAddr.
func (p *PeerState) Addr() *net.UDPAddr {
	ip := codec.BytesToIP(p.IP)
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: int(p.Port)}
}

// System owns one IPSC network's UDP socket, configuration, master state
// and peer map. Every handler for a System runs under System.Mutex,
// giving cooperative single-threaded semantics: a tick and a dispatch
// for the same system never execute concurrently.
type System struct {
	sync.Mutex

	Config *SystemConfig
	Master MasterState
	Peers  map[packet.RadioID]*PeerState

	Conn *net.UDPConn
}

// NewSystem constructs a System with an empty peer map and a freshly
// zeroed MasterState.
func NewSystem(cfg *SystemConfig) *System {
	return &System{
		Config: cfg,
		Peers:  make(map[packet.RadioID]*PeerState),
	}
}

// GetPeer returns the peer with the given RadioID, or nil. Callers must
// hold the System's lock.
func (s *System) GetPeer(id packet.RadioID) *PeerState {
	return s.Peers[id]
}

// ResetKeepAlive applies the reset rule to the master or a peer
// identified by id, whichever matches. Callers must hold the lock.
func (s *System) ResetKeepAlive(id packet.RadioID, now time.Time) {
	if id == s.Master.RadioID && s.Master.RadioID != (packet.RadioID{}) {
		s.Master.Status.resetKeepAlive(now)
		return
	}
	if p, ok := s.Peers[id]; ok {
		p.Status.resetKeepAlive(now)
	}
}

// RemovePeer deletes a peer from the map, implementing the DE_REG_REQ and
// miss-threshold eviction paths.
func (s *System) RemovePeer(id packet.RadioID) {
	delete(s.Peers, id)
}

// SortedPeerIDs returns the system's peer RadioIDs in a stable order, for
// deterministic iteration during maintenance ticks and peer-list builds.
func (s *System) SortedPeerIDs() []packet.RadioID {
	ids := make([]packet.RadioID, 0, len(s.Peers))
	for id := range s.Peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Uint32() < ids[j].Uint32()
	})
	return ids
}

// PeerListEntries renders the current peer map as PeerListEntry values
// suitable for BuildPeerListReply. The local node is not added; only
// peers present in the map are listed.
func (s *System) PeerListEntries() []packet.PeerListEntry {
	ids := s.SortedPeerIDs()
	entries := make([]packet.PeerListEntry, 0, len(ids))
	for _, id := range ids {
		p := s.Peers[id]
		entries = append(entries, packet.PeerListEntry{
			RadioID: p.RadioID,
			IP:      p.IP,
			Port:    p.Port,
			Mode:    p.Mode,
		})
	}
	return entries
}

// ReconcilePeerList applies a PEER_LIST_REPLY's decoded entries to the
// peer map: known RadioIDs are updated in place (new ip/port/mode; their
// role and status counters are left untouched), unknown ones are inserted
// fresh, and any peer absent from the advertised set is removed. A
// peer-list entry never carries FLAGS on the wire, so Flags/FlagsDecode
// are cleared rather than copied from anywhere. The local node's own
// RadioID is never added as a peer even if the master includes it in
// the list.
func (s *System) ReconcilePeerList(entries []packet.PeerListEntry) {
	advertised := make(map[packet.RadioID]struct{}, len(entries))
	for _, e := range entries {
		if e.RadioID == s.Config.LocalRadioID {
			continue
		}
		advertised[e.RadioID] = struct{}{}

		if existing, ok := s.Peers[e.RadioID]; ok {
			existing.IP = e.IP
			existing.Port = e.Port
			existing.Mode = e.Mode
			existing.ModeDecode = codec.DecodeMode(e.Mode)
			existing.Flags = [4]byte{}
			existing.FlagsDecode = codec.FlagsDecode{}
			continue
		}
		s.Peers[e.RadioID] = &PeerState{
			RadioID:    e.RadioID,
			IP:         e.IP,
			Port:       e.Port,
			Mode:       e.Mode,
			ModeDecode: codec.DecodeMode(e.Mode),
			Role:       PeerUnknown,
		}
	}
	for id := range s.Peers {
		if _, ok := advertised[id]; !ok {
			delete(s.Peers, id)
		}
	}
}

// PeerSnapshot is a read-only view of a PeerState for the event log and
// any future reporting consumer.
type PeerSnapshot struct {
	RadioID string
	IP      string
	Port    uint16
	Mode    byte
	Role    string
	Status  Status
}

// MasterSnapshot is a read-only view of a MasterState.
type MasterSnapshot struct {
	RadioID string
	Role    string
	Status  Status
}

// Snapshot is a read-only, fully-copied view of a System at a point in
// time, safe to hand to a goroutine outside the System's lock.
type Snapshot struct {
	Name   string
	Master MasterSnapshot
	Peers  []PeerSnapshot
}

// Snapshot copies out the System's current state under its lock.
func (s *System) Snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()

	snap := Snapshot{
		Name: s.Config.Name,
		Master: MasterSnapshot{
			RadioID: s.Master.RadioID.String(),
			Role:    s.Master.Role.String(),
			Status:  s.Master.Status,
		},
	}
	for _, id := range s.SortedPeerIDs() {
		p := s.Peers[id]
		snap.Peers = append(snap.Peers, PeerSnapshot{
			RadioID: p.RadioID.String(),
			IP:      codec.BytesToIP(p.IP),
			Port:    p.Port,
			Mode:    p.Mode,
			Role:    p.Role.String(),
			Status:  p.Status,
		})
	}
	return snap
}
