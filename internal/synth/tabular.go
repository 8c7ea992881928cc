// Package synth generates the labelled cold-chain datasets both pipelines train on.
// All generators are deterministic for a fixed seed.
package synth

import (
	"math"
	"math/rand/v2"

	"coldchain-risk/internal/features"
)

// Sample is one labelled tabular row.
type Sample struct {
	features.Reading
	Label int
}

// Range is a closed interval for uniform draws.
type Range struct {
	Min, Max float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Physical sensor bounds applied to generated temperatures.
var (
	CrateTempBounds  = Range{Min: 8, Max: 45}
	ReeferTempBounds = Range{Min: -1, Max: 20}
)

// Distribution parameters of the tabular generator.
const (
	crateTempMean, crateTempStd   = 20.0, 6.0
	reeferTempMean, reeferTempStd = 6.0, 3.0

	crateNoiseStd    = 1.2
	reeferNoiseStd   = 0.8
	humidityNoiseStd = 1.5

	// SpikeFraction of rows receive a reefer-failure burst on crate temperature.
	SpikeFraction = 0.05
	// DropoutRate is the per-field, per-row probability of a missing sensor value.
	DropoutRate = 0.03
)

var (
	humidityRange     = Range{55, 95}
	locationTempRange = Range{10, 40}
	transitRange      = Range{2, 72}
	spikeOffsetRange  = Range{5, 12}
	weatherSlopeRange = Range{0.05, 0.12}
	driftSlopeRange   = Range{0.5, 1.5}
)

// NewRand returns the PCG-backed generator every synthesizer draws from.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// GenerateTabular produces n labelled readings. Labels are drawn from a Bernoulli
// trial on the logistic risk probability, not thresholded.
func GenerateTabular(n int, seed uint64) []Sample {
	rng := NewRand(seed)
	return generateTabular(n, rng)
}

func generateTabular(n int, rng *rand.Rand) []Sample {
	if n <= 0 {
		return nil
	}

	crate := make([]float64, n)
	reefer := make([]float64, n)
	humidity := make([]float64, n)
	location := make([]float64, n)
	transit := make([]float64, n)
	crop := make([]features.CropType, n)

	// 1. base distributions, temperatures clipped to sensor bounds
	for i := range crate {
		crate[i] = clamp(crateTempMean+rng.NormFloat64()*crateTempStd, CrateTempBounds)
	}
	for i := range reefer {
		reefer[i] = clamp(reeferTempMean+rng.NormFloat64()*reeferTempStd, ReeferTempBounds)
	}
	for i := range humidity {
		humidity[i] = humidityRange.draw(rng)
	}
	for i := range location {
		location[i] = locationTempRange.draw(rng)
	}
	for i := range transit {
		transit[i] = transitRange.draw(rng)
	}
	for i := range crop {
		crop[i] = features.CropType(rng.IntN(features.NumCropTypes))
	}

	// 2. sensor noise
	for i := 0; i < n; i++ {
		crate[i] += rng.NormFloat64() * crateNoiseStd
		reefer[i] += rng.NormFloat64() * reeferNoiseStd
		humidity[i] += rng.NormFloat64() * humidityNoiseStd
	}

	// 3. reefer failure bursts
	spikes := int(float64(n) * SpikeFraction)
	for _, idx := range rng.Perm(n)[:spikes] {
		crate[idx] += spikeOffsetRange.draw(rng)
	}

	// 4. ambient pass-through and transit drift, one slope per dataset
	weatherSlope := weatherSlopeRange.draw(rng)
	driftSlope := driftSlopeRange.draw(rng)
	for i := 0; i < n; i++ {
		crate[i] += (location[i] - 25) * weatherSlope
		crate[i] += (transit[i] / 24) * driftSlope
		crate[i] = clamp(crate[i], CrateTempBounds)
		reefer[i] = clamp(reefer[i], ReeferTempBounds)
	}

	// 5. sensor dropout
	dropout := func(col []float64) {
		for i := range col {
			if rng.Float64() < DropoutRate {
				col[i] = math.NaN()
			}
		}
	}
	dropout(crate)
	dropout(reefer)
	dropout(humidity)

	// 6-7. risk score, logistic squash, Bernoulli label
	samples := make([]Sample, n)
	for i := range samples {
		r := features.Reading{
			CrateTemp:       crate[i],
			ReeferTemp:      reefer[i],
			Humidity:        humidity[i],
			LocationTemp:    location[i],
			TransitDuration: transit[i],
			CropType:        crop[i],
		}
		p := SpoilageProbability(RiskScore(r))
		label := 0
		if rng.Float64() < p {
			label = 1
		}
		samples[i] = Sample{Reading: r, Label: label}
	}
	return samples
}

// FlipLabels complements the labels of exactly floor(rate*len(samples)) distinct
// rows chosen at random and returns their indices.
func FlipLabels(samples []Sample, rate float64, rng *rand.Rand) []int {
	if rate <= 0 || len(samples) == 0 {
		return nil
	}
	k := int(math.Floor(rate * float64(len(samples))))
	if k > len(samples) {
		k = len(samples)
	}
	idx := rng.Perm(len(samples))[:k]
	for _, i := range idx {
		samples[i].Label = 1 - samples[i].Label
	}
	return idx
}

// SplitXY separates feature vectors from labels.
func SplitXY(samples []Sample) ([][]float64, []int) {
	x := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		x[i] = s.Vector()
		y[i] = s.Label
	}
	return x, y
}

// PositiveRate returns the fraction of samples labelled 1.
func PositiveRate(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	pos := 0
	for _, s := range samples {
		pos += s.Label
	}
	return float64(pos) / float64(len(samples))
}

func clamp(v float64, r Range) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}
