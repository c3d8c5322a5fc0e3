// Package journal keeps a best-effort local record of provisioning runs and
// supervision transitions in sqlite. It is observational only: the engine
// never reads it back, remote state is always re-queried.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Journal records events into a local sqlite database. All failures are
// logged and ignored; a nil Journal is a valid no-op.
type Journal struct {
	db *sql.DB
}

// Open initializes the database at path. On any failure it logs and returns
// nil so callers can record unconditionally.
func Open(path string) *Journal {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.WithError(err).Warn("journal init mkdir failed")
		return nil
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.WithError(err).Warn("journal open failed")
		return nil
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Warn("journal ping failed")
		_ = db.Close()
		return nil
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events(phase TEXT, outcome TEXT, detail TEXT, ts INTEGER); CREATE INDEX IF NOT EXISTS idx_events_phase ON events(phase);`); err != nil {
		log.WithError(err).Warn("journal init schema failed")
		_ = db.Close()
		return nil
	}
	return &Journal{db: db}
}

// Record inserts one event. Best effort.
func (j *Journal) Record(phase, outcome, detail string) {
	if j == nil || j.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = j.db.ExecContext(ctx, `INSERT INTO events(phase, outcome, detail, ts) VALUES(?,?,?,?)`, phase, outcome, detail, time.Now().Unix())
}

// Close releases the database handle.
func (j *Journal) Close() {
	if j == nil || j.db == nil {
		return
	}
	_ = j.db.Close()
}
