// Package eventlog persists IPSC state-transition events (master
// registration, peer admission, eviction, de-registration) to a SQLite
// audit trail of connection-state history.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"

	"github.com/kb9vqg/ipsclink/pkg/logger"
)

// DB wraps the GORM connection backing the event log.
type DB struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Config holds event-log database configuration.
type Config struct {
	Path string // path to the SQLite database file
}

// NewDB opens (creating if necessary) the event-log database, enables
// WAL mode, and migrates the Event table.
func NewDB(cfg Config, log *logger.Logger) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = "ipsclink-events.db"
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("eventlog: failed to create database directory: %w", err)
		}
	}

	gormLog := gormlogger.New(
		&gormLogAdapter{log: log},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        cfg.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("eventlog: failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("eventlog: failed to get database instance: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", "PRAGMA busy_timeout=5000"} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("eventlog: failed to apply %q: %w", pragma, err)
		}
	}
	// The pool is capped at one connection, so appends and Repository
	// queries take turns on it rather than running concurrently.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("eventlog: failed to run migrations: %w", err)
	}

	log.Info("event log database initialized", logger.String("path", cfg.Path))

	return &DB{db: db, logger: log}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the underlying GORM database instance.
func (d *DB) GetDB() *gorm.DB {
	return d.db
}

type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
