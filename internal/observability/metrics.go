package observability

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores process counters. All fields are updated atomically.
type Metrics struct {
	RequestsTotal       uint64
	RequestsInProgress  uint64
	RequestsSuccess     uint64
	RequestsFailed      uint64
	ScansTotal          uint64
	ScansRunning        uint64
	ScansFailed         uint64
	AlertsPersisted     uint64
	AlertInsertFailures uint64
	TrainingRuns        uint64
	TrainingFailures    uint64
	StartTime           time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

func IncrementRequests() { atomic.AddUint64(&globalMetrics.RequestsTotal, 1) }
func IncrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, 1) }
func DecrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0)) }
func IncrementSuccess() { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }
func IncrementFailed() { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }
func IncrementScans() { atomic.AddUint64(&globalMetrics.ScansTotal, 1) }
func IncrementScansRunning() { atomic.AddUint64(&globalMetrics.ScansRunning, 1) }
func DecrementScansRunning() { atomic.AddUint64(&globalMetrics.ScansRunning, ^uint64(0)) }
func IncrementScansFailed() { atomic.AddUint64(&globalMetrics.ScansFailed, 1) }

// AddAlertsPersisted counts alerts stored by the orchestrator.
func AddAlertsPersisted(n int) { atomic.AddUint64(&globalMetrics.AlertsPersisted, uint64(n)) }

// AddAlertInsertFailures counts alerts the store rejected.
func AddAlertInsertFailures(n int) { atomic.AddUint64(&globalMetrics.AlertInsertFailures, uint64(n)) }

func IncrementTrainingRuns() { atomic.AddUint64(&globalMetrics.TrainingRuns, 1) }
func IncrementTrainingFailures() { atomic.AddUint64(&globalMetrics.TrainingFailures, 1) }

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":        atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress":  atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":      atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":       atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"scans_total":           atomic.LoadUint64(&globalMetrics.ScansTotal),
		"scans_running":         atomic.LoadUint64(&globalMetrics.ScansRunning),
		"scans_failed":          atomic.LoadUint64(&globalMetrics.ScansFailed),
		"alerts_persisted":      atomic.LoadUint64(&globalMetrics.AlertsPersisted),
		"alert_insert_failures": atomic.LoadUint64(&globalMetrics.AlertInsertFailures),
		"training_runs":         atomic.LoadUint64(&globalMetrics.TrainingRuns),
		"training_failures":     atomic.LoadUint64(&globalMetrics.TrainingFailures),
		"uptime_seconds":        time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}
