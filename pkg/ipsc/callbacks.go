package ipsc

import (
	"net"

	"github.com/kb9vqg/ipsclink/pkg/eventlog"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/dispatcher"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/engine"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/logger"
)

// LoggingCallbacks is the default dispatcher.Callbacks implementation:
// it logs every inbound message class and, when a Repository is
// attached, records control-plane state transitions (registration,
// admission, eviction) to the event log. Traffic-bearing packets
// (voice, data, XCMP/XNL) are logged but not persisted; RF frames are
// too high-volume for durable storage.
type LoggingCallbacks struct {
	log  *logger.Logger
	repo *eventlog.Repository
}

// NewLoggingCallbacks constructs a LoggingCallbacks. repo may be nil, in
// which case callbacks only log.
func NewLoggingCallbacks(log *logger.Logger, repo *eventlog.Repository) *LoggingCallbacks {
	return &LoggingCallbacks{log: log, repo: repo}
}

var (
	_ dispatcher.Callbacks = (*LoggingCallbacks)(nil)
	_ engine.Notifier      = (*LoggingCallbacks)(nil)
)

func (c *LoggingCallbacks) record(system string, kind, radioID string) {
	if c.repo == nil {
		return
	}
	if err := c.repo.Record(&eventlog.Event{System: system, Kind: kind, RadioID: radioID}); err != nil {
		c.log.Warn("failed to record event", logger.String("kind", kind), logger.Error(err))
	}
}

func (c *LoggingCallbacks) GroupVoice(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte) {
	c.log.Debug("group voice", logger.String("system", system), logger.Uint32("src", srcSub), logger.Uint32("dst", dstSub), logger.Int("ts", ts), logger.Bool("end", end), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) PrivateVoice(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte) {
	c.log.Debug("private voice", logger.String("system", system), logger.Uint32("src", srcSub), logger.Uint32("dst", dstSub), logger.Int("ts", ts), logger.Bool("end", end), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) GroupData(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte) {
	c.log.Debug("group data", logger.String("system", system), logger.Uint32("src", srcSub), logger.Uint32("dst", dstSub), logger.Int("ts", ts), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) PrivateData(system string, srcSub, dstSub uint32, ts int, end bool, peerID packet.RadioID, raw []byte) {
	c.log.Debug("private data", logger.String("system", system), logger.Uint32("src", srcSub), logger.Uint32("dst", dstSub), logger.Int("ts", ts), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) XCMPXNL(system string, peerID packet.RadioID, raw []byte) {
	c.log.Debug("xcmp/xnl", logger.String("system", system), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) CallMonStatus(system string, peerID packet.RadioID, raw []byte) {
	c.log.Debug("call monitor status", logger.String("system", system), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) CallMonRpt(system string, peerID packet.RadioID, raw []byte) {
	c.log.Debug("call monitor report", logger.String("system", system), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) CallMonNack(system string, peerID packet.RadioID, raw []byte) {
	c.log.Debug("call monitor nack", logger.String("system", system), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) RepeaterWakeUp(system string, peerID packet.RadioID, raw []byte) {
	c.log.Info("repeater wake up", logger.String("system", system), logger.String("peer", peerID.String()))
}

func (c *LoggingCallbacks) UnknownMessage(system string, peerID packet.RadioID, raw []byte) {
	c.log.Warn("unknown message", logger.String("system", system), logger.String("peer", peerID.String()), logger.Int("len", len(raw)))
}

func (c *LoggingCallbacks) MasterRegistered(system string, masterID packet.RadioID) {
	c.log.Info("master registered", logger.String("system", system), logger.String("master", masterID.String()))
	c.record(system, eventlog.KindMasterRegistered, masterID.String())
}

func (c *LoggingCallbacks) PeerAdmitted(system string, peerID packet.RadioID) {
	c.log.Info("peer admitted", logger.String("system", system), logger.String("peer", peerID.String()))
	c.record(system, eventlog.KindPeerAdmitted, peerID.String())
}

func (c *LoggingCallbacks) PeerConnected(system string, peerID packet.RadioID) {
	c.log.Info("peer connected", logger.String("system", system), logger.String("peer", peerID.String()))
	c.record(system, eventlog.KindPeerConnected, peerID.String())
}

func (c *LoggingCallbacks) PeerDeregistered(system string, peerID packet.RadioID) {
	c.log.Info("peer deregistered", logger.String("system", system), logger.String("peer", peerID.String()))
	c.record(system, eventlog.KindPeerDeregistered, peerID.String())
}

func (c *LoggingCallbacks) AuthFailure(system string, from *net.UDPAddr) {
	addr := ""
	if from != nil {
		addr = from.String()
	}
	c.log.Warn("auth failure", logger.String("system", system), logger.String("from", addr))
	c.record(system, eventlog.KindAuthFailure, addr)
}

func (c *LoggingCallbacks) PeerEvicted(system string, peerID packet.RadioID) {
	c.log.Warn("peer evicted", logger.String("system", system), logger.String("peer", peerID.String()))
	c.record(system, eventlog.KindPeerEvicted, peerID.String())
}

func (c *LoggingCallbacks) MasterDisconnected(system string) {
	c.log.Warn("master disconnected", logger.String("system", system))
	c.record(system, eventlog.KindMasterDisconnected, "")
}
