package ml

// Verdict is the shipment-level decision derived from window probabilities.
type Verdict string

const (
	HighRisk Verdict = "HIGH RISK"
	LowRisk  Verdict = "LOW RISK"
)

const (
	// AbsoluteRiskThreshold flags a shipment from a single window.
	AbsoluteRiskThreshold = 0.7
	// WindowRiskThreshold labels an individual window risky.
	WindowRiskThreshold = 0.5
	// MinRiskyWindows is how many risky windows flag a shipment.
	MinRiskyWindows = 2
)

// Decide returns HighRisk when any window reaches AbsoluteRiskThreshold or at
// least MinRiskyWindows windows reach WindowRiskThreshold.
func Decide(probs []float64) Verdict {
	risky := 0
	for _, p := range probs {
		if p >= AbsoluteRiskThreshold {
			return HighRisk
		}
		if p >= WindowRiskThreshold {
			risky++
		}
	}
	if risky >= MinRiskyWindows {
		return HighRisk
	}
	return LowRisk
}

// WindowLabels thresholds every window probability at WindowRiskThreshold.
func WindowLabels(probs []float64) []int {
	return ThresholdLabels(probs, WindowRiskThreshold)
}
