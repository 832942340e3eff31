// Package database provides an optional write-behind archive for
// completed runs. The in-memory store (internal/store) is the source of
// truth while a run is active; this package persists one row per
// completed run when DATABASE_URL is configured, for post-hoc inspection.
// Adapted from the teacher's GORM-backed Simulation/SimulationResult
// schema, collapsed to a single table since a run's config and result
// are both fixed at finalize time and never updated afterward.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Initialize connects to postgres and migrates the archive schema.
func Initialize(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return db, nil
}

// RunRecord archives one completed run's configuration and final metrics.
type RunRecord struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	TestID       string    `gorm:"size:64;uniqueIndex;not null" json:"test_id"`
	TestType     string    `gorm:"size:255" json:"test_type"`
	TargetURL    string    `gorm:"size:500;not null" json:"target_url"`
	Method       string    `gorm:"size:10;not null" json:"method"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	RequestCount int64     `json:"request_count"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	FinalRPS     float64   `json:"final_rps"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	P95LatencyMs float64   `json:"p95_latency_ms"`
	P99LatencyMs float64   `json:"p99_latency_ms"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// Archive writes one RunRecord. The archive is best-effort: a failure here
// never fails or blocks a run, it is only logged by the caller.
func Archive(db *gorm.DB, record RunRecord) error {
	return db.Create(&record).Error
}

// Archiver wraps a live connection so the dispatcher can depend on the
// narrow ArchiveRun method instead of a raw *gorm.DB, mirroring how
// broadcast.Publisher narrows the hub for the same reason.
type Archiver struct {
	db *gorm.DB
}

// NewArchiver wraps db for use as a dispatcher.Archiver.
func NewArchiver(db *gorm.DB) *Archiver {
	return &Archiver{db: db}
}

// ArchiveRun writes one RunRecord through the wrapped connection.
func (a *Archiver) ArchiveRun(record RunRecord) error {
	return Archive(a.db, record)
}
