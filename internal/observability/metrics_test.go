package observability

import (
	"context"
	"testing"
)

func TestCountersAppearInSnapshot(t *testing.T) {
	before := GetMetrics()["alerts_persisted"].(uint64)
	AddAlertsPersisted(3)
	IncrementScansRunning()
	DecrementScansRunning()

	m := GetMetrics()
	if got := m["alerts_persisted"].(uint64); got != before+3 {
		t.Fatalf("alerts_persisted = %d, want %d", got, before+3)
	}
	if _, ok := m["training_runs"]; !ok {
		t.Fatal("training_runs missing from snapshot")
	}
}

func TestInitTracingNoneIsNoop(t *testing.T) {
	shutdown, err := InitTracing("test", TracingConfig{Exporter: "none"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
