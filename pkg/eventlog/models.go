package eventlog

import (
	"time"

	"gorm.io/gorm"
)

// Event kinds recorded for a system's state transitions.
const (
	KindMasterRegistered   = "master_registered"
	KindMasterDisconnected = "master_disconnected"
	KindPeerAdmitted       = "peer_admitted"
	KindPeerConnected      = "peer_connected"
	KindPeerEvicted        = "peer_evicted"
	KindPeerDeregistered   = "peer_deregistered"
	KindAuthFailure        = "auth_failure"
)

// Event is one audit-trail record of an IPSC system's master/peer
// registration, eviction or de-registration transition.
type Event struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	System    string    `gorm:"index;not null" json:"system"`
	Kind      string    `gorm:"index;not null" json:"kind"`
	RadioID   string    `gorm:"index" json:"radio_id"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Event.
func (Event) TableName() string {
	return "ipsc_events"
}

// BeforeCreate ensures Timestamp and CreatedAt are populated.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return nil
}
