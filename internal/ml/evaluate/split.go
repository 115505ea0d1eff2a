// Package evaluate holds the train/test split and the diagnostics printed
// after training.
package evaluate

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Split holds row indices of each partition, ascending.
type Split struct {
	Train      []int
	Test       []int
	Stratified bool
}

// TrainTestSplit partitions len(y) rows, holding out ceil(n*testSize) rows
// for testing. With stratify and at least two distinct labels, every label
// keeps its share in both partitions; a label with a single row stays in
// train. Fewer than two rows all go to train.
func TrainTestSplit(y []int, testSize float64, seed uint64, stratify bool) Split {
	n := len(y)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	if n < 2 || testSize <= 0 {
		return Split{Train: all, Test: []int{}}
	}
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	byLabel := map[int][]int{}
	for i, label := range y {
		byLabel[label] = append(byLabel[label], i)
	}
	if !stratify || len(byLabel) < 2 {
		rng.Shuffle(n, func(i, j int) { all[i], all[j] = all[j], all[i] })
		return finish(all[nTest:], all[:nTest], false)
	}

	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	quota := allocate(labels, byLabel, n, nTest)
	var train, test []int
	for _, label := range labels {
		rows := byLabel[label]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		test = append(test, rows[:quota[label]]...)
		train = append(train, rows[quota[label]:]...)
	}
	return finish(train, test, true)
}

// allocate splits nTest over labels proportionally to their size by largest
// remainder, never taking a label's last row.
func allocate(labels []int, byLabel map[int][]int, n, nTest int) map[int]int {
	type share struct {
		label int
		frac  float64
	}
	quota := map[int]int{}
	shares := make([]share, 0, len(labels))
	assigned := 0
	for _, label := range labels {
		exact := float64(len(byLabel[label])) * float64(nTest) / float64(n)
		q := int(math.Floor(exact))
		if limit := len(byLabel[label]) - 1; q > limit {
			q = limit
		}
		quota[label] = q
		assigned += q
		shares = append(shares, share{label: label, frac: exact - math.Floor(exact)})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for assigned < nTest {
		progressed := false
		for _, s := range shares {
			if assigned == nTest {
				break
			}
			if quota[s.label] < len(byLabel[s.label])-1 {
				quota[s.label]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return quota
}

func finish(train, test []int, stratified bool) Split {
	train = append([]int{}, train...)
	test = append([]int{}, test...)
	sort.Ints(train)
	sort.Ints(test)
	return Split{Train: train, Test: test, Stratified: stratified}
}
