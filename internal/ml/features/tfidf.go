// Package features turns alert records into numeric feature matrices: TF-IDF
// over alert names, one-hot over targets, standardized numeric columns.
package features

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ErrEmptyVocabulary is returned by TFIDF.Fit when no document has a token.
var ErrEmptyVocabulary = errors.New("empty vocabulary: documents contain no tokens of two or more word characters")

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// TFIDF is a word n-gram TF-IDF vectorizer: lowercase, tokens of two or more
// word characters, smoothed idf, L2-normalized rows.
type TFIDF struct {
	MinN        int            `json:"min_n"`
	MaxN        int            `json:"max_n"`
	MaxFeatures int            `json:"max_features"`
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

func NewTFIDF(minN, maxN, maxFeatures int) *TFIDF {
	return &TFIDF{MinN: minN, MaxN: maxN, MaxFeatures: maxFeatures}
}

// Analyze returns the n-grams of doc in order of appearance.
func (t *TFIDF) Analyze(doc string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(doc), -1)
	var grams []string
	for n := t.MinN; n <= t.MaxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}

// Fit learns the vocabulary and idf weights. When MaxFeatures > 0 only the
// most frequent terms are kept, ties broken alphabetically.
func (t *TFIDF) Fit(docs []string) error {
	total := map[string]int{}
	df := map[string]int{}
	for _, d := range docs {
		seen := map[string]bool{}
		for _, g := range t.Analyze(d) {
			total[g]++
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}
	if len(total) == 0 {
		return ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(total))
	for term := range total {
		terms = append(terms, term)
	}
	if t.MaxFeatures > 0 && len(terms) > t.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if total[terms[i]] != total[terms[j]] {
				return total[terms[i]] > total[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:t.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	t.Vocabulary = make(map[string]int, len(terms))
	t.IDF = make([]float64, len(terms))
	for i, term := range terms {
		t.Vocabulary[term] = i
		t.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Width is the number of output columns.
func (t *TFIDF) Width() int { return len(t.IDF) }

// TransformInto writes the L2-normalized tf-idf vector of doc into dst.
// Terms outside the vocabulary are ignored.
func (t *TFIDF) TransformInto(doc string, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for _, g := range t.Analyze(doc) {
		if j, ok := t.Vocabulary[g]; ok {
			dst[j]++
		}
	}
	var norm float64
	for j, tf := range dst {
		if tf == 0 {
			continue
		}
		dst[j] = tf * t.IDF[j]
		norm += dst[j] * dst[j]
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for j := range dst {
		dst[j] /= norm
	}
}
