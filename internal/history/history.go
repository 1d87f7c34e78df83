// Package history records completed runs in the history store and
// serves the history listing.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/replx/db"
	"github.com/oxhq/replx/models"
)

// DefaultDSN returns the history database location: the
// REPLX_HISTORY_DSN environment value when set (file path or libsql
// URL), otherwise .replx/history.db under the user home, falling
// back to the working directory.
func DefaultDSN() string {
	if dsn := os.Getenv("REPLX_HISTORY_DSN"); dsn != "" {
		return dsn
	}
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, ".replx", "history.db")
}

// Recorder writes and reads run records.
type Recorder struct {
	gdb *gorm.DB
}

// Open connects to the history store at dsn.
func Open(dsn string, debug bool) (*Recorder, error) {
	gdb, err := db.Connect(dsn, debug)
	if err != nil {
		return nil, err
	}
	return &Recorder{gdb: gdb}, nil
}

// Entry is the data recorded for one run.
type Entry struct {
	ScanRoot    string
	MappingPath string
	Mode        string
	JournalPath string
	Completed   int
	Failed      int
	Skipped     int
	Stats       map[string]any
	StartedAt   time.Time
}

// Record stores a finished run.
func (r *Recorder) Record(e Entry) error {
	var stats datatypes.JSON
	if e.Stats != nil {
		if b, err := json.Marshal(e.Stats); err == nil {
			stats = datatypes.JSON(b)
		}
	}

	status := "completed"
	if e.Failed > 0 {
		status = "failed"
	}

	now := time.Now()
	run := models.Run{
		ID:          uuid.NewString(),
		ScanRoot:    e.ScanRoot,
		MappingPath: e.MappingPath,
		Mode:        e.Mode,
		JournalPath: e.JournalPath,
		Completed:   e.Completed,
		Failed:      e.Failed,
		Skipped:     e.Skipped,
		Stats:       stats,
		Status:      status,
		StartedAt:   e.StartedAt,
		FinishedAt:  &now,
	}
	return r.gdb.Create(&run).Error
}

// Recent returns the most recent runs, newest first.
func (r *Recorder) Recent(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.Run
	err := r.gdb.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Close releases the underlying connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
