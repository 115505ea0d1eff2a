package features

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTFIDFAnalyze(t *testing.T) {
	tf := NewTFIDF(1, 2, 0)
	got := tf.Analyze("Cross-Site Scripting (Reflected) a")
	want := []string{"cross", "site", "scripting", "reflected", "cross site", "site scripting", "scripting reflected"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Analyze = %q, want %q", got, want)
	}
}

func TestTFIDFFitAndTransform(t *testing.T) {
	tf := NewTFIDF(1, 2, 0)
	docs := []string{"sql injection", "sql injection", "xss reflected"}
	if err := tf.Fit(docs); err != nil {
		t.Fatalf("fit: %v", err)
	}
	// sorted vocabulary
	wantVocab := map[string]int{"injection": 0, "reflected": 1, "sql": 2, "sql injection": 3, "xss": 4, "xss reflected": 5}
	if !reflect.DeepEqual(tf.Vocabulary, wantVocab) {
		t.Fatalf("vocabulary = %v", tf.Vocabulary)
	}
	// smoothed idf: ln((1+3)/(1+2))+1 for terms in 2 of 3 docs
	if !near(tf.IDF[2], math.Log(4.0/3.0)+1) || !near(tf.IDF[4], math.Log(2)+1) {
		t.Fatalf("idf = %v", tf.IDF)
	}

	row := make([]float64, tf.Width())
	tf.TransformInto("SQL injection", row)
	var norm float64
	for _, v := range row {
		norm += v * v
	}
	if !near(norm, 1) {
		t.Fatalf("row not L2 normalized: %v", row)
	}
	if row[4] != 0 || row[0] == 0 {
		t.Fatalf("unexpected row: %v", row)
	}

	tf.TransformInto("completely unknown words", row)
	for _, v := range row {
		if v != 0 {
			t.Fatalf("unknown terms must encode as zeros: %v", row)
		}
	}
}

func TestTFIDFMaxFeaturesKeepsMostFrequent(t *testing.T) {
	tf := NewTFIDF(1, 1, 2)
	if err := tf.Fit([]string{"aa bb", "aa cc", "aa bb dd"}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(tf.Vocabulary) != 2 {
		t.Fatalf("vocabulary = %v", tf.Vocabulary)
	}
	if _, ok := tf.Vocabulary["aa"]; !ok {
		t.Fatal("most frequent term dropped")
	}
	if _, ok := tf.Vocabulary["bb"]; !ok {
		t.Fatal("second most frequent term dropped")
	}
}

func TestTFIDFEmptyVocabulary(t *testing.T) {
	err := NewTFIDF(1, 2, 0).Fit([]string{"a", "!", ""})
	if !errors.Is(err, ErrEmptyVocabulary) {
		t.Fatalf("want ErrEmptyVocabulary, got %v", err)
	}
}

func TestOneHotIgnoresUnknown(t *testing.T) {
	var o OneHot
	o.Fit([]string{"http://b", "http://a", "http://b"})
	if !reflect.DeepEqual(o.Categories, []string{"http://a", "http://b"}) {
		t.Fatalf("categories = %v", o.Categories)
	}
	dst := make([]float64, o.Width())
	o.TransformInto("http://b", dst)
	if !reflect.DeepEqual(dst, []float64{0, 1}) {
		t.Fatalf("encode = %v", dst)
	}
	o.TransformInto("http://new", dst)
	if !reflect.DeepEqual(dst, []float64{0, 0}) {
		t.Fatalf("unknown must be all zeros: %v", dst)
	}
}

func TestScaler(t *testing.T) {
	var s Scaler
	s.Fit([][]float64{{1, 2, 3}, {5, 5, 5}})
	if !near(s.Mean[0], 2) || !near(s.Scale[0], math.Sqrt(2.0/3.0)) {
		t.Fatalf("col 0 mean=%v scale=%v", s.Mean[0], s.Scale[0])
	}
	if s.Scale[1] != 1 {
		t.Fatalf("constant column scale = %v, want 1", s.Scale[1])
	}
	dst := make([]float64, 2)
	s.TransformInto([]float64{2, 5}, dst)
	if !near(dst[0], 0) || !near(dst[1], 0) {
		t.Fatalf("transform = %v", dst)
	}
}

func dur(v float64) *float64 { return &v }

func TestPreprocessorRoundTrip(t *testing.T) {
	records := []Record{
		{AlertName: "XSS reflected", Target: "http://a", ScanDurationSeconds: dur(120), AlertsInScan: 3},
		{AlertName: "SQL Injection", Target: "http://a", ScanDurationSeconds: dur(120), AlertsInScan: 3},
		{AlertName: "Cookie without flag", Target: "http://b", ScanDurationSeconds: nil, AlertsInScan: 1},
	}
	p := NewPreprocessor(Options{MaxFeatures: 2000})
	if err := p.Fit(records); err != nil {
		t.Fatalf("fit: %v", err)
	}
	x := p.Transform(records)
	r, c := x.Dims()
	if r != 3 || c != p.Width() || c != p.Text.Width()+2+2 {
		t.Fatalf("dims = %dx%d, width %d", r, c, p.Width())
	}
	// the nil duration is read as 0
	if p.Numeric.Mean[0] != 80 {
		t.Fatalf("duration mean = %v, want 80", p.Numeric.Mean[0])
	}

	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalPreprocessor(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	y := back.Transform(records)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !near(x.At(i, j), y.At(i, j)) {
				t.Fatalf("cell %d,%d differs after round trip: %v vs %v", i, j, x.At(i, j), y.At(i, j))
			}
		}
	}

	if _, err := UnmarshalPreprocessor([]byte(`{"text":null}`)); err == nil {
		t.Fatal("expected error for incomplete preprocessor")
	}
}

func TestPreprocessorFitErrors(t *testing.T) {
	if err := NewPreprocessor(Options{}).Fit(nil); err == nil {
		t.Fatal("expected error on no records")
	}
	err := NewPreprocessor(Options{}).Fit([]Record{{AlertName: "?", Target: "t"}})
	if !errors.Is(err, ErrEmptyVocabulary) {
		t.Fatalf("want ErrEmptyVocabulary, got %v", err)
	}
}
