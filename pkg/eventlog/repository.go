package eventlog

import "gorm.io/gorm"

// Repository provides the recording and query surface over ipsc_events.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps a GORM database handle for event-log access.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record appends one event to the log.
func (r *Repository) Record(e *Event) error {
	return r.db.Create(e).Error
}

// Recent retrieves the most recent limit events, optionally filtered to
// one system (an empty system returns events across all systems).
func (r *Repository) Recent(system string, limit int) ([]Event, error) {
	var events []Event
	q := r.db.Order("timestamp DESC").Limit(limit)
	if system != "" {
		q = q.Where("system = ?", system)
	}
	err := q.Find(&events).Error
	return events, err
}
