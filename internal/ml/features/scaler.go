package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance using the
// population standard deviation. Constant columns keep scale 1.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit takes the values column by column.
func (s *Scaler) Fit(columns [][]float64) {
	s.Mean = make([]float64, len(columns))
	s.Scale = make([]float64, len(columns))
	for j, col := range columns {
		if len(col) == 0 {
			s.Scale[j] = 1
			continue
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		sd := math.Sqrt(variance)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Scale[j] = sd
	}
}

func (s *Scaler) Width() int { return len(s.Mean) }

func (s *Scaler) TransformInto(values, dst []float64) {
	for j, v := range values {
		dst[j] = (v - s.Mean[j]) / s.Scale[j]
	}
}
