package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Status enum
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status closes a scan run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TimeLayout is the fixed-width UTC layout every timestamp is persisted with,
// so ordering by the text column matches chronological order on all drivers.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Aggregate Root: ScanRun
type ScanRun struct {
	ID         ScanID     `json:"scan_id"`
	Target     string     `json:"target"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// Alert is one finding attributed to a ScanRun. Append-only.
type Alert struct {
	ID          int64     `json:"id"`
	ScanID      ScanID    `json:"scan_id"`
	Name        string    `json:"alert_name"`
	Risk        string    `json:"risk"`
	Confidence  string    `json:"confidence,omitempty"`
	Description string    `json:"description,omitempty"`
	Solution    string    `json:"solution,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultRow is one row of the ScanRun LEFT JOIN Alert listing. Alert columns
// are nil for a run without alerts. Timestamps stay in their persisted text form.
type ResultRow struct {
	ScanID         ScanID  `db:"scan_id"`
	Target         string  `db:"target"`
	Status         Status  `db:"status"`
	StartedAt      string  `db:"started_at"`
	FinishedAt     *string `db:"finished_at"`
	AlertName      *string `db:"alert_name"`
	Risk           *string `db:"risk"`
	AlertCreatedAt *string `db:"alert_created_at"`
}

// EngineAlert is one record returned by the scanning engine's alert listing.
type EngineAlert struct {
	Name        string `json:"alert_name"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
}
