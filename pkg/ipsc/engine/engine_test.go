package engine

import (
	"net"
	"testing"
	"time"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/auth"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/state"
)

type fakeSender struct {
	sent []sentFrame
}

type sentFrame struct {
	addr *net.UDPAddr
	data []byte
}

func (f *fakeSender) SendTo(addr *net.UDPAddr, data []byte) error {
	f.sent = append(f.sent, sentFrame{addr: addr, data: append([]byte(nil), data...)})
	return nil
}

type fakeNotifier struct {
	evictedPeers []packet.RadioID
	masterDisc   []string
}

func (f *fakeNotifier) PeerEvicted(system string, peerID packet.RadioID) {
	f.evictedPeers = append(f.evictedPeers, peerID)
}

func (f *fakeNotifier) MasterDisconnected(system string) {
	f.masterDisc = append(f.masterDisc, system)
}

func testSystem() *state.System {
	cfg := &state.SystemConfig{
		Name:          "A",
		Enabled:       true,
		LocalRadioID:  packet.RadioIDFrom(1001),
		AuthEnabled:   false,
		MasterIP:      "127.0.0.1",
		MasterPort:    50000,
		AliveTimerSec: 5,
		MaxMissed:     3,
		TS1Link:       true,
	}
	cfg.Derive()
	return state.NewSystem(cfg)
}

func TestPeerRoleTickRegistersWithMaster(t *testing.T) {
	sys := testSystem()
	out := &fakeSender{}
	now := time.Now()

	PeerRoleTick(sys, auth.NoopAuthenticator{}, out, nil, now)

	if len(out.sent) != 1 {
		t.Fatalf("expected 1 frame sent, got %d", len(out.sent))
	}
	op, id, err := packet.ParseHeader(out.sent[0].data)
	if err != nil {
		t.Fatal(err)
	}
	if op != packet.OpMasterRegReq || id != sys.Config.LocalRadioID {
		t.Errorf("unexpected frame: op=%v id=%v", op, id)
	}
	if sys.Master.Role != state.MasterRegistering {
		t.Errorf("Master.Role = %v, want REGISTERING", sys.Master.Role)
	}
}

func TestPeerRoleTickSendsAliveReqOnceConnected(t *testing.T) {
	sys := testSystem()
	sys.Master.Role = state.MasterConnected
	sys.Master.RadioID = packet.RadioIDFrom(9000)
	sys.Master.NumPeers = 0

	out := &fakeSender{}
	PeerRoleTick(sys, auth.NoopAuthenticator{}, out, nil, time.Now())

	if len(out.sent) != 1 {
		t.Fatalf("expected 1 frame (MASTER_ALIVE_REQ), got %d", len(out.sent))
	}
	op, _, _ := packet.ParseHeader(out.sent[0].data)
	if op != packet.OpMasterAliveReq {
		t.Errorf("op = %v, want MASTER_ALIVE_REQ", op)
	}
	if sys.Master.Status.KeepAlivesSent != 1 || sys.Master.Status.KeepAlivesOutstanding != 1 {
		t.Errorf("unexpected master status: %+v", sys.Master.Status)
	}
	// NumPeers == 0 synthesizes peerListReceived without a PEER_LIST_REQ.
	if !sys.Master.Status.PeerListReceived {
		t.Error("expected synthesized PeerListReceived = true when NumPeers == 0")
	}
	if sys.Master.Role != state.MasterReady {
		t.Errorf("Master.Role = %v, want READY", sys.Master.Role)
	}
}

func TestPeerRoleTickRequestsPeerListWhenNumPeersPositive(t *testing.T) {
	sys := testSystem()
	sys.Master.Role = state.MasterConnected
	sys.Master.RadioID = packet.RadioIDFrom(9000)
	sys.Master.NumPeers = 2

	out := &fakeSender{}
	PeerRoleTick(sys, auth.NoopAuthenticator{}, out, nil, time.Now())

	if len(out.sent) != 2 {
		t.Fatalf("expected MASTER_ALIVE_REQ + PEER_LIST_REQ, got %d frames", len(out.sent))
	}
	op, _, _ := packet.ParseHeader(out.sent[1].data)
	if op != packet.OpPeerListReq {
		t.Errorf("second frame op = %v, want PEER_LIST_REQ", op)
	}
	if sys.Master.Role != state.MasterPeerListPending {
		t.Errorf("Master.Role = %v, want PEER_LIST_PENDING", sys.Master.Role)
	}
}

// TestMissCounterMonotonicity checks that without any inbound frame,
// after K ticks with K >= maxMissed, the affected party transitions to
// disconnected exactly once.
func TestMissCounterMonotonicity(t *testing.T) {
	sys := testSystem()
	sys.Master.Role = state.MasterConnected
	sys.Master.RadioID = packet.RadioIDFrom(9000)
	sys.Master.NumPeers = 0

	out := &fakeSender{}
	disconnects := 0
	prevRole := sys.Master.Role
	for i := 0; i < sys.Config.MaxMissed+2; i++ {
		PeerRoleTick(sys, auth.NoopAuthenticator{}, out, nil, time.Now())
		if prevRole != state.MasterUnknown && sys.Master.Role == state.MasterUnknown {
			disconnects++
		}
		prevRole = sys.Master.Role
	}
	if disconnects != 1 {
		t.Errorf("expected exactly 1 disconnect transition, got %d", disconnects)
	}
}

// TestS2PeerEvictionByMiss verifies a peer that stops replying to
// keepalives is evicted once its miss count passes the threshold.
func TestS2PeerEvictionByMiss(t *testing.T) {
	sys := testSystem()
	sys.Master.Role = state.MasterReady
	sys.Master.RadioID = packet.RadioIDFrom(9000)
	sys.Master.Status.PeerListReceived = true
	sys.ReconcilePeerList([]packet.PeerListEntry{
		{RadioID: packet.RadioIDFrom(1002), IP: [4]byte{127, 0, 0, 1}, Port: 50001, Mode: 0x65},
	})
	sys.Peers[packet.RadioIDFrom(1002)].Role = state.PeerConnected

	// The master keeps responding throughout; only peer 1002 goes silent.
	resetMaster := func() {
		sys.Lock()
		sys.ResetKeepAlive(sys.Master.RadioID, time.Now())
		sys.Unlock()
	}

	out := &fakeSender{}
	notif := &fakeNotifier{}
	for i := 0; i < sys.Config.MaxMissed; i++ {
		PeerRoleTick(sys, auth.NoopAuthenticator{}, out, notif, time.Now())
		resetMaster()
		if _, ok := sys.Peers[packet.RadioIDFrom(1002)]; !ok {
			t.Fatalf("peer evicted early, on tick %d", i+1)
		}
	}
	PeerRoleTick(sys, auth.NoopAuthenticator{}, out, notif, time.Now())
	resetMaster()
	if _, ok := sys.Peers[packet.RadioIDFrom(1002)]; ok {
		t.Fatal("expected peer 1002 evicted after maxMissed ticks")
	}
	if len(notif.evictedPeers) != 1 || notif.evictedPeers[0] != packet.RadioIDFrom(1002) {
		t.Errorf("expected notifier to record eviction of 1002, got %v", notif.evictedPeers)
	}

	// Subsequent ticks must not attempt to retry the evicted peer.
	before := len(out.sent)
	PeerRoleTick(sys, auth.NoopAuthenticator{}, out, notif, time.Now())
	after := len(out.sent)
	if after != before+1 { // only the MASTER_ALIVE_REQ
		t.Errorf("expected only the master keepalive to be sent after eviction, got %d new frames", after-before)
	}
}

func TestMasterRoleTickEvictsStalePeers(t *testing.T) {
	sys := testSystem()
	sys.ReconcilePeerList([]packet.PeerListEntry{
		{RadioID: packet.RadioIDFrom(1002), IP: [4]byte{127, 0, 0, 1}, Port: 50001, Mode: 0x65},
		{RadioID: packet.RadioIDFrom(1003), IP: [4]byte{127, 0, 0, 1}, Port: 50002, Mode: 0x65},
	})
	now := time.Now()
	sys.Peers[packet.RadioIDFrom(1002)].Status.LastKeepAliveRx = now.Add(-200 * time.Second)
	sys.Peers[packet.RadioIDFrom(1003)].Status.LastKeepAliveRx = now

	out := &fakeSender{}
	notif := &fakeNotifier{}
	MasterRoleTick(sys, auth.NoopAuthenticator{}, out, notif, now)

	if _, ok := sys.Peers[packet.RadioIDFrom(1002)]; ok {
		t.Error("expected stale peer 1002 evicted")
	}
	if _, ok := sys.Peers[packet.RadioIDFrom(1003)]; !ok {
		t.Error("expected fresh peer 1003 retained")
	}
	if len(notif.evictedPeers) != 1 || notif.evictedPeers[0] != packet.RadioIDFrom(1002) {
		t.Errorf("expected notifier to record eviction of 1002, got %v", notif.evictedPeers)
	}
	if len(out.sent) != 1 {
		t.Fatalf("expected a broadcast PEER_LIST_REPLY to the one remaining peer, got %d sends", len(out.sent))
	}
	op, _, _ := packet.ParseHeader(out.sent[0].data)
	if op != packet.OpPeerListReply {
		t.Errorf("op = %v, want PEER_LIST_REPLY", op)
	}
}

func TestMasterRoleTickNoOpWhenNoStalePeers(t *testing.T) {
	sys := testSystem()
	sys.ReconcilePeerList([]packet.PeerListEntry{
		{RadioID: packet.RadioIDFrom(1002), IP: [4]byte{127, 0, 0, 1}, Port: 50001, Mode: 0x65},
	})
	now := time.Now()
	sys.Peers[packet.RadioIDFrom(1002)].Status.LastKeepAliveRx = now

	out := &fakeSender{}
	MasterRoleTick(sys, auth.NoopAuthenticator{}, out, nil, now)

	if len(out.sent) != 0 {
		t.Errorf("expected no broadcast when no peer is stale, got %d sends", len(out.sent))
	}
}
