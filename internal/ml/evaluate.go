package ml

import (
	"fmt"
	"strings"
)

// ClassMetrics holds one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes binary predictions against ground truth. Confusion is
// indexed [true][predicted].
type Report struct {
	Accuracy  float64         `json:"accuracy"`
	Classes   [2]ClassMetrics `json:"classes"`
	Confusion [2][2]int       `json:"confusion"`
	Samples   int             `json:"samples"`
	// ValidationLoss is set for models that report a loss.
	ValidationLoss float64 `json:"validation_loss,omitempty"`
}

// Evaluate computes accuracy, per-class precision/recall/F1 and the confusion matrix.
// Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []int) (Report, error) {
	var r Report
	if len(yTrue) != len(yPred) {
		return r, fmt.Errorf("%d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return r, fmt.Errorf("nothing to evaluate")
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t > 1 || p < 0 || p > 1 {
			return r, fmt.Errorf("row %d: labels must be 0 or 1", i)
		}
		r.Confusion[t][p]++
	}

	r.Samples = len(yTrue)
	r.Accuracy = float64(r.Confusion[0][0]+r.Confusion[1][1]) / float64(r.Samples)
	for c := 0; c < 2; c++ {
		tp := r.Confusion[c][c]
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		support := r.Confusion[c][0] + r.Confusion[c][1]
		m := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
	}
	return r, nil
}

// ThresholdLabels maps probabilities to 1 when p >= threshold.
func ThresholdLabels(probs []float64, threshold float64) []int {
	labels := make([]int, len(probs))
	for i, p := range probs {
		if p >= threshold {
			labels[i] = 1
		}
	}
	return labels
}

// String renders the report in the familiar classification-report layout.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for c, name := range []string{"Low Risk", "High Risk"} {
		m := r.Classes[c]
		fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\n%14s %29.2f %9d\n", "accuracy", r.Accuracy, r.Samples)
	fmt.Fprintf(&b, "\nconfusion matrix [true][pred]\n[[%d %d]\n [%d %d]]\n",
		r.Confusion[0][0], r.Confusion[0][1], r.Confusion[1][0], r.Confusion[1][1])
	return b.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
