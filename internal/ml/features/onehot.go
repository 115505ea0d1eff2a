package features

import "sort"

// OneHot encodes one categorical column. Categories unseen at fit time
// encode as all zeros.
type OneHot struct {
	Categories []string `json:"categories"` // sorted
}

func (o *OneHot) Fit(values []string) {
	seen := map[string]bool{}
	o.Categories = o.Categories[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			o.Categories = append(o.Categories, v)
		}
	}
	sort.Strings(o.Categories)
}

func (o *OneHot) Width() int { return len(o.Categories) }

func (o *OneHot) TransformInto(value string, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	i := sort.SearchStrings(o.Categories, value)
	if i < len(o.Categories) && o.Categories[i] == value {
		dst[i] = 1
	}
}
