package scans

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeRisk(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"low", "Low"},
		{"  HIGH ", "High"},
		{"Medium", "Medium"},
		{"informational", "Informational"},
		{"false positive", "False Positive"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeRisk(c.in); got != c.want {
			t.Errorf("NormalizeRisk(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeRiskIdempotent(t *testing.T) {
	for _, in := range []string{"Low", "high", " mEdIuM", "Informational", "False Positive"} {
		once := NormalizeRisk(in)
		if twice := NormalizeRisk(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Fatal("running must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed must be terminal")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nf := fmt.Errorf("finish: %w", &NotFoundError{ScanID: "abc"})
	if !errors.Is(nf, ErrNotFound) {
		t.Fatalf("expected ErrNotFound match, got %v", nf)
	}

	base := errors.New("disk full")
	se := &StorageError{Op: "create scan", Err: base}
	if !errors.Is(se, base) {
		t.Fatal("StorageError must unwrap to its cause")
	}
	var target *StorageError
	if !errors.As(fmt.Errorf("wrapped: %w", se), &target) || target.Op != "create scan" {
		t.Fatalf("errors.As StorageError failed: %+v", target)
	}

	ee := &EngineError{Phase: "spider", Err: base}
	if ee.Error() != "engine: spider: disk full" {
		t.Fatalf("unexpected engine error text %q", ee.Error())
	}
}
