// Package ipsc wires the codec, auth, packet, state, engine and
// dispatcher packages into one runnable IPSC system: bind a UDP socket,
// run the receive loop and the maintenance ticker concurrently, and shut
// down cleanly by de-registering from the master and every connected
// peer.
package ipsc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/auth"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/dispatcher"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/engine"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/ipscerr"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/state"
	"github.com/kb9vqg/ipsclink/pkg/logger"
)

// System runs one IPSC network end to end: one UDP socket, one receive
// loop, and one maintenance ticker per instance, covering both the peer
// and master roles.
type System struct {
	state *state.System
	authr auth.Authenticator
	cb    dispatcher.Callbacks
	notif engine.Notifier
	log   *logger.Logger
}

// NewSystem constructs a System from a derived SystemConfig. cfg.Derive
// must already have been called. If cb also implements engine.Notifier,
// it receives the maintenance engine's eviction/disconnect events too.
func NewSystem(cfg *state.SystemConfig, cb dispatcher.Callbacks, log *logger.Logger) *System {
	notif, _ := cb.(engine.Notifier)
	return &System{
		state: state.NewSystem(cfg),
		authr: auth.New(cfg.AuthEnabled, cfg.AuthKey),
		cb:    cb,
		notif: notif,
		log:   log.WithComponent("ipsc." + cfg.Name),
	}
}

// Name returns the system's configured name.
func (s *System) Name() string { return s.state.Config.Name }

// Snapshot returns a read-only view of the system's current state, for
// the event log or any future reporting consumer.
func (s *System) Snapshot() state.Snapshot { return s.state.Snapshot() }

type udpSender struct{ conn *net.UDPConn }

func (u udpSender) SendTo(addr *net.UDPAddr, data []byte) error {
	_, err := u.conn.WriteToUDP(data, addr)
	return err
}

// Start binds the system's UDP socket and runs its receive loop and
// maintenance ticker until ctx is cancelled or either loop returns an
// error.
func (s *System) Start(ctx context.Context) error {
	localAddr := &net.UDPAddr{IP: net.ParseIP(s.state.Config.IP), Port: s.state.Config.Port}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return fmt.Errorf("ipsc: %w: bind %s: %v", ipscerr.ErrFatalInit, localAddr, err)
	}
	defer conn.Close()

	s.state.Lock()
	s.state.Conn = conn
	s.state.Unlock()

	s.log.Info("system started", logger.String("local", conn.LocalAddr().String()))

	sender := udpSender{conn: conn}
	errChan := make(chan error, 2)

	go func() { errChan <- s.receiveLoop(ctx, conn, sender) }()
	go func() { errChan <- s.maintenanceLoop(ctx, sender) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

func (s *System) receiveLoop(ctx context.Context, conn *net.UDPConn, sender engine.Sender) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("ipsc: %w: %v", ipscerr.ErrSocketError, err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if err := dispatcher.Dispatch(s.state, s.authr, sender, data, from, s.cb, time.Now()); err != nil {
			s.log.Warn("dropped datagram", logger.String("from", from.String()), logger.Error(err))
		}
	}
}

func (s *System) maintenanceLoop(ctx context.Context, sender engine.Sender) error {
	ticker := time.NewTicker(time.Duration(s.state.Config.AliveTimerSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if s.state.Config.MasterPeer {
				engine.MasterRoleTick(s.state, s.authr, sender, s.notif, now)
			} else {
				engine.PeerRoleTick(s.state, s.authr, sender, s.notif, now)
			}
		}
	}
}

// Shutdown sends DE_REG_REQ to the master and every connected peer, then
// returns; it does not close the socket (Start's deferred Close handles
// that once the receive loop unwinds).
func (s *System) Shutdown() {
	s.state.Lock()
	conn := s.state.Conn
	local := s.state.Config.LocalRadioID
	masterAddr, addrErr := s.state.Config.MasterAddr()
	hasMaster := s.state.Master.RadioID != (packet.RadioID{}) && s.state.Master.Status.Connected
	peerAddrs := make([]*net.UDPAddr, 0, len(s.state.Peers))
	for _, id := range s.state.SortedPeerIDs() {
		p := s.state.Peers[id]
		if p.Role == state.PeerConnected {
			peerAddrs = append(peerAddrs, p.Addr())
		}
	}
	s.state.Unlock()

	if conn == nil {
		return
	}

	dereg := s.authr.Wrap(packet.BuildDeRegReq(local))
	if hasMaster && addrErr == nil {
		if _, err := conn.WriteToUDP(dereg, masterAddr); err != nil {
			s.log.Warn("failed to send DE_REG_REQ to master", logger.Error(err))
		}
	}
	for _, addr := range peerAddrs {
		if _, err := conn.WriteToUDP(dereg, addr); err != nil {
			s.log.Warn("failed to send DE_REG_REQ to peer", logger.String("peer", addr.String()), logger.Error(err))
		}
	}
}
