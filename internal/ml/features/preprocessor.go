package features

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Record is the model input for one alert.
type Record struct {
	AlertName           string
	Target              string
	ScanDurationSeconds *float64 // nil is read as 0
	AlertsInScan        float64
}

func (r Record) numeric() []float64 {
	d := 0.0
	if r.ScanDurationSeconds != nil {
		d = *r.ScanDurationSeconds
	}
	return []float64{d, r.AlertsInScan}
}

// Options configure a Preprocessor before Fit.
type Options struct {
	MaxFeatures int // TF-IDF vocabulary cap, 0 for no cap
}

// Preprocessor combines the text, categorical and numeric branches into one
// matrix, in that column order.
type Preprocessor struct {
	Text    *TFIDF  `json:"text"`
	Target  *OneHot `json:"target"`
	Numeric *Scaler `json:"numeric"`
}

func NewPreprocessor(opt Options) *Preprocessor {
	return &Preprocessor{
		Text:    NewTFIDF(1, 2, opt.MaxFeatures),
		Target:  &OneHot{},
		Numeric: &Scaler{},
	}
}

// Fit learns every branch from records.
func (p *Preprocessor) Fit(records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("fit preprocessor: no records")
	}
	docs := make([]string, len(records))
	targets := make([]string, len(records))
	cols := [][]float64{make([]float64, len(records)), make([]float64, len(records))}
	for i, r := range records {
		docs[i] = r.AlertName
		targets[i] = r.Target
		for j, v := range r.numeric() {
			cols[j][i] = v
		}
	}
	if err := p.Text.Fit(docs); err != nil {
		return fmt.Errorf("fit text features: %w", err)
	}
	p.Target.Fit(targets)
	p.Numeric.Fit(cols)
	return nil
}

// Width is the number of columns Transform produces.
func (p *Preprocessor) Width() int {
	return p.Text.Width() + p.Target.Width() + p.Numeric.Width()
}

// Transform encodes records into a len(records) x Width() matrix; nil when
// records is empty.
func (p *Preprocessor) Transform(records []Record) *mat.Dense {
	if len(records) == 0 {
		return nil
	}
	x := mat.NewDense(len(records), p.Width(), nil)
	tw, cw := p.Text.Width(), p.Target.Width()
	for i, r := range records {
		row := x.RawRowView(i)
		p.Text.TransformInto(r.AlertName, row[:tw])
		p.Target.TransformInto(r.Target, row[tw:tw+cw])
		p.Numeric.TransformInto(r.numeric(), row[tw+cw:])
	}
	return x
}

// Marshal serializes the fitted preprocessor.
func (p *Preprocessor) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPreprocessor restores a preprocessor written by Marshal.
func UnmarshalPreprocessor(data []byte) (*Preprocessor, error) {
	var p Preprocessor
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Text == nil || p.Target == nil || p.Numeric == nil {
		return nil, fmt.Errorf("preprocessor: missing branch")
	}
	if len(p.Text.IDF) != len(p.Text.Vocabulary) || len(p.Numeric.Mean) != len(p.Numeric.Scale) {
		return nil, fmt.Errorf("preprocessor: inconsistent branch sizes")
	}
	return &p, nil
}
