// Package gbdt is a multiclass gradient-boosted decision tree classifier with
// a softmax objective and histogram split finding.
package gbdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params are the boosting hyperparameters.
type Params struct {
	Estimators      int     `json:"estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	Lambda          float64 `json:"lambda"` // L2 regularization of leaf values
	MaxBins         int     `json:"max_bins"`
}

// DefaultParams suit small, sparse training sets.
func DefaultParams() Params {
	return Params{
		Estimators:      200,
		LearningRate:    0.1,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Lambda:          1,
		MaxBins:         64,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Estimators <= 0 {
		p.Estimators = d.Estimators
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.Lambda < 0 {
		p.Lambda = 0
	}
	if p.MaxBins < 2 || p.MaxBins > 256 {
		p.MaxBins = d.MaxBins
	}
	return p
}

const minChildHessian = 1e-3

// Node is one tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"` // x <= Threshold goes left
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree is a flat regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Model is a fitted classifier. Trees[m][c] is the tree of class c at round m.
type Model struct {
	Classes      int       `json:"classes"`
	Features     int       `json:"features"`
	LearningRate float64   `json:"learning_rate"`
	InitScores   []float64 `json:"init_scores"`
	Trees        [][]Tree  `json:"trees"`
	Params       Params    `json:"params"`
}

// Fit trains on x (n rows) with labels y in [0, classes).
func Fit(x mat.Matrix, y []int, classes int, params Params) (*Model, error) {
	n, d := x.Dims()
	if n == 0 {
		return nil, errors.New("gbdt: no training rows")
	}
	if len(y) != n {
		return nil, fmt.Errorf("gbdt: %d labels for %d rows", len(y), n)
	}
	if classes < 1 {
		return nil, fmt.Errorf("gbdt: classes must be >= 1, got %d", classes)
	}
	counts := make([]float64, classes)
	for i, c := range y {
		if c < 0 || c >= classes {
			return nil, fmt.Errorf("gbdt: label %d of row %d outside [0,%d)", c, i, classes)
		}
		counts[c]++
	}
	p := params.withDefaults()

	m := &Model{
		Classes:      classes,
		Features:     d,
		LearningRate: p.LearningRate,
		InitScores:   make([]float64, classes),
		Params:       p,
	}
	for c := range counts {
		prior := counts[c] / float64(n)
		if prior == 0 {
			prior = 1e-15
		}
		m.InitScores[c] = math.Log(prior)
	}
	if classes == 1 {
		return m, nil
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		mat.Row(rows[i], i, x)
	}
	b := newBinner(rows, d, p.MaxBins)

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), m.InitScores...)
	}
	prob := make([][]float64, n)
	for i := range prob {
		prob[i] = make([]float64, classes)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for round := 0; round < p.Estimators; round++ {
		for i := range scores {
			softmax(scores[i], prob[i])
		}
		trees := make([]Tree, classes)
		for c := 0; c < classes; c++ {
			for i := 0; i < n; i++ {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				pc := prob[i][c]
				grad[i] = pc - target
				hess[i] = math.Max(pc*(1-pc), 1e-16)
			}
			tb := treeBuilder{bins: b, grad: grad, hess: hess, p: p}
			tb.build(append([]int(nil), all...), 0)
			trees[c] = Tree{Nodes: tb.nodes}
		}
		for c := 0; c < classes; c++ {
			for i := 0; i < n; i++ {
				scores[i][c] += p.LearningRate * trees[c].predict(rows[i])
			}
		}
		m.Trees = append(m.Trees, trees)
	}
	return m, nil
}

// PredictProba returns class probabilities for one feature vector.
func (m *Model) PredictProba(x []float64) []float64 {
	scores := append([]float64(nil), m.InitScores...)
	for _, round := range m.Trees {
		for c := range round {
			scores[c] += m.LearningRate * round[c].predict(x)
		}
	}
	out := make([]float64, m.Classes)
	softmax(scores, out)
	return out
}

// Predict returns the most probable class of every row of x.
func (m *Model) Predict(x mat.Matrix) []int {
	n, d := x.Dims()
	out := make([]int, n)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		out[i] = floats.MaxIdx(m.PredictProba(row))
	}
	return out
}

func (m *Model) Marshal() ([]byte, error) { return json.Marshal(m) }

// Unmarshal restores a model written by Marshal.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Classes < 1 || len(m.InitScores) != m.Classes {
		return nil, fmt.Errorf("gbdt: corrupt model: %d classes, %d init scores", m.Classes, len(m.InitScores))
	}
	for r, round := range m.Trees {
		if len(round) != m.Classes {
			return nil, fmt.Errorf("gbdt: corrupt model: round %d has %d trees", r, len(round))
		}
	}
	return &m, nil
}

func softmax(scores, out []float64) {
	mx := floats.Max(scores)
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - mx)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
}

// binner maps every feature to at most maxBins ordered buckets.
type binner struct {
	thresholds [][]float64 // per feature, upper edge of each bin but the last
	codes      [][]uint8   // codes[feature][row]
}

func newBinner(rows [][]float64, d, maxBins int) *binner {
	b := &binner{thresholds: make([][]float64, d), codes: make([][]uint8, d)}
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		b.thresholds[j] = edges(col, maxBins)
		codes := make([]uint8, len(rows))
		for i, v := range col {
			codes[i] = uint8(sort.SearchFloat64s(b.thresholds[j], v))
		}
		b.codes[j] = codes
	}
	return b
}

// edges returns split points between distinct values, thinned to quantiles
// when there are more than maxBins distinct values.
func edges(col []float64, maxBins int) []float64 {
	distinct := append([]float64(nil), col...)
	sort.Float64s(distinct)
	k := 0
	for i, v := range distinct {
		if i == 0 || v != distinct[k-1] {
			distinct[k] = v
			k++
		}
	}
	distinct = distinct[:k]
	if len(distinct) <= 1 {
		return nil
	}
	if len(distinct) <= maxBins {
		out := make([]float64, len(distinct)-1)
		for i := range out {
			out[i] = (distinct[i] + distinct[i+1]) / 2
		}
		return out
	}
	out := make([]float64, 0, maxBins-1)
	for q := 1; q < maxBins; q++ {
		i := q * len(distinct) / maxBins
		e := (distinct[i-1] + distinct[i]) / 2
		if len(out) == 0 || e > out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

type treeBuilder struct {
	bins  *binner
	grad  []float64
	hess  []float64
	p     Params
	nodes []Node
}

type split struct {
	feature int
	bin     int
	gain    float64
}

func (tb *treeBuilder) leaf(g, h float64) int {
	tb.nodes = append(tb.nodes, Node{Feature: -1, Value: -g / (h + tb.p.Lambda)})
	return len(tb.nodes) - 1
}

// build grows the subtree over idx and returns its node index.
func (tb *treeBuilder) build(idx []int, depth int) int {
	var g, h float64
	for _, i := range idx {
		g += tb.grad[i]
		h += tb.hess[i]
	}
	if depth >= tb.p.MaxDepth || len(idx) < tb.p.MinSamplesSplit || len(idx) < 2*tb.p.MinSamplesLeaf {
		return tb.leaf(g, h)
	}
	best, ok := tb.bestSplit(idx, g, h)
	if !ok {
		return tb.leaf(g, h)
	}

	codes := tb.bins.codes[best.feature]
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if int(codes[i]) <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	self := len(tb.nodes)
	tb.nodes = append(tb.nodes, Node{Feature: best.feature, Threshold: tb.bins.thresholds[best.feature][best.bin]})
	l := tb.build(left, depth+1)
	r := tb.build(right, depth+1)
	tb.nodes[self].Left = l
	tb.nodes[self].Right = r
	return self
}

func (tb *treeBuilder) bestSplit(idx []int, g, h float64) (split, bool) {
	lambda := tb.p.Lambda
	parent := g * g / (h + lambda)
	best := split{gain: 1e-12}
	found := false

	for f, thr := range tb.bins.thresholds {
		nb := len(thr) + 1
		if nb < 2 {
			continue
		}
		gs := make([]float64, nb)
		hs := make([]float64, nb)
		cs := make([]int, nb)
		codes := tb.bins.codes[f]
		for _, i := range idx {
			c := codes[i]
			gs[c] += tb.grad[i]
			hs[c] += tb.hess[i]
			cs[c]++
		}
		var gl, hl float64
		var cl int
		for bin := 0; bin < nb-1; bin++ {
			gl += gs[bin]
			hl += hs[bin]
			cl += cs[bin]
			cr := len(idx) - cl
			if cl < tb.p.MinSamplesLeaf {
				continue
			}
			if cr < tb.p.MinSamplesLeaf {
				break
			}
			hr := h - hl
			if hl < minChildHessian || hr < minChildHessian {
				continue
			}
			gr := g - gl
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain {
				best = split{feature: f, bin: bin, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
