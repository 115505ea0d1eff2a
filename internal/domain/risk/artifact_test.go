package risk

import (
	"sort"
	"testing"
)

func TestBuildLabelMapSortedBijection(t *testing.T) {
	labels := []string{"Medium", "High", "Low", "High", "Informational", "Low"}
	m := BuildLabelMap(labels)

	want := map[string]int{"High": 0, "Informational": 1, "Low": 2, "Medium": 3}
	if len(m) != len(want) {
		t.Fatalf("expected %d labels, got %d (%v)", len(want), len(m), m)
	}
	for l, i := range want {
		if m[l] != i {
			t.Fatalf("label %q: got %d want %d", l, m[l], i)
		}
	}

	inv := m.Labels()
	for i, l := range inv {
		if m[l] != i {
			t.Fatalf("inverse mismatch at %d: %q", i, l)
		}
	}
	got := append([]string(nil), inv...)
	sort.Strings(got)
	if len(got) != 4 || got[0] != "High" || got[3] != "Medium" {
		t.Fatalf("inverse does not recover label set: %v", got)
	}
}

func TestBuildLabelMapOrderIndependent(t *testing.T) {
	a := BuildLabelMap([]string{"Low", "High"})
	b := BuildLabelMap([]string{"High", "Low", "Low"})
	if a["High"] != b["High"] || a["Low"] != b["Low"] {
		t.Fatalf("label map depends on row order: %v vs %v", a, b)
	}
}

func TestBuildLabelMapSingleLabel(t *testing.T) {
	m := BuildLabelMap([]string{"High", "High"})
	if len(m) != 1 || m["High"] != 0 {
		t.Fatalf("unexpected single label map %v", m)
	}
}
