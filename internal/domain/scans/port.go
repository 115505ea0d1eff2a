package scans

import "context"

// Repository port (Result Store). Every call is one atomically committed unit.
type Repository interface {
	// CreateScan inserts a Running ScanRun with a fresh id and started_at = now.
	CreateScan(ctx context.Context, target string) (ScanID, error)
	// FinishScan sets a terminal status and finished_at = now.
	// Returns a *NotFoundError when id does not exist.
	FinishScan(ctx context.Context, id ScanID, status Status) error
	// InsertAlert appends one alert; CreatedAt and ID are filled in.
	InsertAlert(ctx context.Context, a *Alert) error
	// FetchAll returns ScanRun LEFT JOIN Alert, most recent scan first.
	FetchAll(ctx context.Context) ([]ResultRow, error)

	Get(ctx context.Context, id ScanID) (*ScanRun, error)
	ListAlerts(ctx context.Context, id ScanID) ([]Alert, error)
}

// Engine port (external scanning engine, asynchronous and poll based)
type Engine interface {
	Open(ctx context.Context, target string) error
	StartSpider(ctx context.Context, target string) (string, error)
	SpiderStatus(ctx context.Context, jobID string) (int, error)
	StartActiveScan(ctx context.Context, target string) (string, error)
	ActiveScanStatus(ctx context.Context, jobID string) (int, error)
	Alerts(ctx context.Context, target string) ([]EngineAlert, error)
}
