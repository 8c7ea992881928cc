package synth

import (
	"math"

	"coldchain-risk/internal/features"
)

// Risk-score coefficients. Each term is max(0, value-threshold)*weight; together
// with the logistic offset they set the spoilage rate of the generated labels,
// so changing any of them changes the class balance the classifiers see.
const (
	CrateTempThreshold = 25.0
	CrateTempWeight    = 0.04

	ReeferTempThreshold = 10.0
	ReeferTempWeight    = 0.05

	HumidityThreshold = 85.0
	HumidityWeight    = 0.03

	LocationTempThreshold = 30.0
	LocationTempWeight    = 0.02

	// Transit contributes linearly, reaching TransitWeight at TransitHorizonHours.
	TransitHorizonHours = 72.0
	TransitWeight       = 0.5

	CropWeightScale = 0.15

	// LogisticOffset shifts the score so that p = sigmoid(score - LogisticOffset).
	LogisticOffset = 4.0
)

// CropWeights holds the spoilage sensitivity of each crop code.
var CropWeights = [features.NumCropTypes]float64{
	features.CropLettuce: 1.0,
	features.CropTomato:  1.4,
	features.CropMango:   0.7,
	features.CropSpinach: 1.6,
}

// RiskScore computes the unsquashed spoilage score of a reading. Dropped-out
// sensor values contribute zero.
func RiskScore(r features.Reading) float64 {
	score := positivePart(zeroIfNaN(r.CrateTemp)-CrateTempThreshold) * CrateTempWeight
	score += positivePart(zeroIfNaN(r.ReeferTemp)-ReeferTempThreshold) * ReeferTempWeight
	score += positivePart(zeroIfNaN(r.Humidity)-HumidityThreshold) * HumidityWeight
	score += positivePart(r.LocationTemp-LocationTempThreshold) * LocationTempWeight
	score += (r.TransitDuration / TransitHorizonHours) * TransitWeight
	if r.CropType.Valid() {
		score += CropWeights[r.CropType] * CropWeightScale
	}
	return score
}

// SpoilageProbability squashes a risk score into the Bernoulli parameter of the label.
func SpoilageProbability(score float64) float64 {
	return sigmoid(score - LogisticOffset)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func positivePart(x float64) float64 {
	return math.Max(0, x)
}

func zeroIfNaN(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return x
}
