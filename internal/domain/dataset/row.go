package dataset

// FeatureRow is one alert enriched with scan-level features. Derived, never
// persisted in the Result Store.
type FeatureRow struct {
	ScanID              string   `json:"scan_id"`
	Target              string   `json:"target"`
	StartedAt           string   `json:"started_at,omitempty"`
	FinishedAt          string   `json:"finished_at,omitempty"`
	ScanDurationSeconds *float64 `json:"scan_duration_seconds"`
	AlertsInScan        int      `json:"alerts_in_scan"`
	AlertName           string   `json:"alert_name"`
	Risk                string   `json:"risk"`
	AlertCreatedAt      string   `json:"alert_created_at,omitempty"`
}

// ScanSnapshot is one element of the exported snapshot document.
type ScanSnapshot struct {
	ScanID     string          `json:"scan_id"`
	Target     string          `json:"target"`
	StartedAt  *string         `json:"started_at"`
	FinishedAt *string         `json:"finished_at"`
	Status     string          `json:"status"`
	Alerts     []AlertSnapshot `json:"alerts"`
}

// AlertSnapshot is one alert inside a ScanSnapshot. Pointers keep JSON nulls
// distinguishable from empty strings.
type AlertSnapshot struct {
	AlertName *string `json:"alert_name"`
	Risk      *string `json:"risk"`
	CreatedAt *string `json:"created_at"`
}
