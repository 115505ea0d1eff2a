package evaluate

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"
)

// ClassMetrics are the per-class scores; undefined ratios are 0.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is the classification report over the labels that occur in either
// the truth or the predictions, in class index order.
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Support     int            `json:"support"`
	// Confusion[i][j] counts rows of class Classes[i] predicted as Classes[j].
	Confusion [][]int `json:"confusion"`
}

// Evaluate scores pred against truth. names maps class index to label; a
// missing name prints the index.
func Evaluate(truth, pred []int, names []string) Report {
	present := map[int]bool{}
	for _, c := range truth {
		present[c] = true
	}
	for _, c := range pred {
		present[c] = true
	}
	classes := make([]int, 0, len(present))
	for c := range present {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}

	k := len(classes)
	cm := mat.NewDense(max(k, 1), max(k, 1), nil)
	correct := 0
	for i := range truth {
		cm.Set(pos[truth[i]], pos[pred[i]], cm.At(pos[truth[i]], pos[pred[i]])+1)
		if truth[i] == pred[i] {
			correct++
		}
	}

	r := Report{Support: len(truth), Confusion: make([][]int, k)}
	var macro, weighted ClassMetrics
	for i, c := range classes {
		tp := cm.At(i, i)
		rowSum := mat.Sum(cm.RowView(i))
		colSum := mat.Sum(cm.ColView(i))
		m := ClassMetrics{Label: labelName(c, names), Support: int(rowSum)}
		m.Precision = ratio(tp, colSum)
		m.Recall = ratio(tp, rowSum)
		m.F1 = ratio(2*m.Precision*m.Recall, m.Precision+m.Recall)
		r.Classes = append(r.Classes, m)

		macro.Precision += m.Precision
		macro.Recall += m.Recall
		macro.F1 += m.F1
		w := float64(m.Support)
		weighted.Precision += w * m.Precision
		weighted.Recall += w * m.Recall
		weighted.F1 += w * m.F1

		r.Confusion[i] = make([]int, k)
		for j := 0; j < k; j++ {
			r.Confusion[i][j] = int(cm.At(i, j))
		}
	}
	if k > 0 {
		macro.Precision /= float64(k)
		macro.Recall /= float64(k)
		macro.F1 /= float64(k)
	}
	if n := float64(len(truth)); n > 0 {
		weighted.Precision /= n
		weighted.Recall /= n
		weighted.F1 /= n
		r.Accuracy = float64(correct) / n
	}
	macro.Label, macro.Support = "macro avg", len(truth)
	weighted.Label, weighted.Support = "weighted avg", len(truth)
	r.MacroAvg, r.WeightedAvg = macro, weighted
	return r
}

// String renders the report like a classic text classification report
// followed by the confusion matrix.
func (r Report) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, m := range r.Classes {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintln(w, "\t\t\t\t\t")
	fmt.Fprintf(w, "accuracy\t\t\t%.2f\t%d\t\n", r.Accuracy, r.Support)
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	w.Flush()

	b.WriteString("\nconfusion matrix (rows: true, columns: predicted)\n")
	w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, m := range r.Classes {
		fmt.Fprintf(w, "\t%s", m.Label)
	}
	fmt.Fprintln(w, "\t")
	for i, row := range r.Confusion {
		fmt.Fprint(w, r.Classes[i].Label)
		for _, v := range row {
			fmt.Fprintf(w, "\t%d", v)
		}
		fmt.Fprintln(w, "\t")
	}
	w.Flush()
	return b.String()
}

func labelName(c int, names []string) string {
	if c >= 0 && c < len(names) && names[c] != "" {
		return names[c]
	}
	return fmt.Sprint(c)
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
