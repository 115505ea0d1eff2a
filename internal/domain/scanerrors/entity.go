package scanerrors

import "time"

// Phase names recorded with a scan error
const (
	PhaseOpen    = "open"
	PhaseSpider  = "spider"
	PhaseAttack  = "active_scan"
	PhaseCollect = "collect"
	PhaseFinish  = "finish"
)

// ScanError represents a persisted scan error entry
type ScanError struct {
	ID        int64     `json:"id" db:"id"`
	ScanID    string    `json:"scan_id" db:"scan_id"`
	Phase     string    `json:"phase" db:"phase"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"-"`
}
