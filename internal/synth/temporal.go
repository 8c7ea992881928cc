package synth

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"coldchain-risk/internal/features"
)

// TemporalParams configures the sequence generator. Spike positions are drawn
// from [SpikeFirst, SeqLen-1-SpikeTailGap].
type TemporalParams struct {
	Name              string
	SeqLen            int
	HighRiskRate      float64
	LowRiskCrateBase  Range
	HighRiskCrateBase Range
	CrateNoiseStd     float64
	Reefer            Range
	Humidity          Range
	LocationTemp      Range
	TransitDuration   Range
	SpikeFirst        int
	SpikeTailGap      int
}

// PresetStable keeps the spike away from the first and the last two positions.
func PresetStable() TemporalParams {
	return TemporalParams{
		Name:              "stable",
		SeqLen:            features.DefaultWindowLen,
		HighRiskRate:      0.5,
		LowRiskCrateBase:  Range{15, 23},
		HighRiskCrateBase: Range{15, 22},
		CrateNoiseStd:     0.4,
		Reefer:            Range{4, 10},
		Humidity:          Range{55, 85},
		LocationTemp:      Range{10, 35},
		TransitDuration:   Range{2, 48},
		SpikeFirst:        1,
		SpikeTailGap:      2,
	}
}

// PresetLegacy places the spike anywhere except the last position.
func PresetLegacy() TemporalParams {
	p := PresetStable()
	p.Name = "legacy"
	p.SpikeFirst = 0
	p.SpikeTailGap = 1
	return p
}

// PresetByName resolves a configured preset name.
func PresetByName(name string) (TemporalParams, error) {
	switch strings.ToLower(name) {
	case "", "stable":
		return PresetStable(), nil
	case "legacy":
		return PresetLegacy(), nil
	default:
		return TemporalParams{}, fmt.Errorf("unknown temporal preset %q", name)
	}
}

func (p TemporalParams) spikeLast() int {
	return p.SeqLen - 1 - p.SpikeTailGap
}

// Validate checks that a two-step spike always fits inside the sequence.
func (p TemporalParams) Validate() error {
	if p.SeqLen < 2 {
		return fmt.Errorf("sequence length must be at least 2, got %d", p.SeqLen)
	}
	if p.SpikeFirst < 0 || p.SpikeTailGap < 1 {
		return fmt.Errorf("spike bounds must leave room for a two-step spike")
	}
	if p.spikeLast() < p.SpikeFirst {
		return fmt.Errorf("spike position range [%d, %d] is empty", p.SpikeFirst, p.spikeLast())
	}
	if p.HighRiskRate < 0 || p.HighRiskRate > 1 {
		return fmt.Errorf("high risk rate must be within [0, 1], got %f", p.HighRiskRate)
	}
	return nil
}

// Sequence is a SeqLen x 6 matrix of readings with one label for the whole window.
type Sequence struct {
	Steps [][]float64
	Label int
	// SpikeAt is the spike position for high-risk sequences and -1 otherwise.
	SpikeAt int
}

// TemporalGenerator produces labelled sequences from one set of parameters.
type TemporalGenerator struct {
	params TemporalParams
	rng    *rand.Rand
}

// NewTemporalGenerator validates params and seeds the generator.
func NewTemporalGenerator(params TemporalParams, seed uint64) (*TemporalGenerator, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid temporal params %q: %w", params.Name, err)
	}
	return &TemporalGenerator{params: params, rng: NewRand(seed)}, nil
}

// Params returns the generator configuration.
func (g *TemporalGenerator) Params() TemporalParams {
	return g.params
}

// Generate draws n sequences.
func (g *TemporalGenerator) Generate(n int) []Sequence {
	out := make([]Sequence, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}

func (g *TemporalGenerator) next() Sequence {
	p := g.params
	rng := g.rng
	l := p.SeqLen

	baseReefer := p.Reefer.draw(rng)
	baseHumidity := p.Humidity.draw(rng)
	baseLocation := p.LocationTemp.draw(rng)
	transit := p.TransitDuration.draw(rng)
	crop := float64(rng.IntN(features.NumCropTypes))

	highRisk := rng.Float64() < p.HighRiskRate

	crateBase := p.LowRiskCrateBase
	if highRisk {
		crateBase = p.HighRiskCrateBase
	}
	base := crateBase.draw(rng)

	crate := make([]float64, l)
	reefer := make([]float64, l)
	humidity := make([]float64, l)
	location := make([]float64, l)
	duration := make([]float64, l)
	for t := 0; t < l; t++ {
		crate[t] = base + rng.NormFloat64()*p.CrateNoiseStd
		reefer[t] = baseReefer
		humidity[t] = baseHumidity
		location[t] = baseLocation
		duration[t] = transit
	}

	seq := Sequence{SpikeAt: -1}
	if highRisk {
		pos := p.SpikeFirst + rng.IntN(p.spikeLast()-p.SpikeFirst+1)
		spike := Range{30, 36}.draw(rng)
		crate[pos] = spike
		crate[pos+1] = spike + Range{0, 2}.draw(rng)
		reefer[pos] = baseReefer + Range{5, 12}.draw(rng)
		humidity[pos] = Range{90, 98}.draw(rng)
		location[pos] = baseLocation + Range{8, 15}.draw(rng)
		duration[pos] += Range{5, 15}.draw(rng)
		seq.Label = 1
		seq.SpikeAt = pos
	}

	seq.Steps = make([][]float64, l)
	for t := 0; t < l; t++ {
		seq.Steps[t] = []float64{crate[t], reefer[t], humidity[t], location[t], duration[t], crop}
	}
	return seq
}

// SplitSequences separates matrices from labels.
func SplitSequences(seqs []Sequence) ([][][]float64, []int) {
	x := make([][][]float64, len(seqs))
	y := make([]int, len(seqs))
	for i, s := range seqs {
		x[i] = s.Steps
		y[i] = s.Label
	}
	return x, y
}
