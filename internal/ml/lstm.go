package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"coldchain-risk/internal/features"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// LSTMConfig describes the network LSTM(Hidden) -> Dense(Dense, relu) ->
// Dense(1, sigmoid) and its Adam training schedule.
type LSTMConfig struct {
	SeqLen       int     `json:"seq_len"`
	NumFeatures  int     `json:"num_features"`
	Hidden       int     `json:"hidden"`
	Dense        int     `json:"dense"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Seed         uint64  `json:"seed"`
}

// DefaultLSTMConfig returns the production sequence model shape.
func DefaultLSTMConfig() LSTMConfig {
	return LSTMConfig{
		SeqLen:       features.DefaultWindowLen,
		NumFeatures:  features.NumFeatures,
		Hidden:       64,
		Dense:        32,
		Epochs:       12,
		BatchSize:    32,
		LearningRate: 0.001,
		Seed:         42,
	}
}

func (c LSTMConfig) validate() error {
	switch {
	case c.SeqLen < 1 || c.NumFeatures < 1:
		return fmt.Errorf("invalid input shape (%d, %d)", c.SeqLen, c.NumFeatures)
	case c.Hidden < 1 || c.Dense < 1:
		return fmt.Errorf("invalid layer sizes hidden=%d dense=%d", c.Hidden, c.Dense)
	case c.Epochs < 1 || c.BatchSize < 1:
		return fmt.Errorf("epochs and batch size must be positive")
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive")
	}
	return nil
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
	probClip    = 1e-7
)

// lstmParams holds every trainable tensor flattened row-major. Gate rows of
// Wx, Wh and B are ordered input, forget, cell, output.
type lstmParams struct {
	Wx []float64 `json:"wx"` // 4H x D
	Wh []float64 `json:"wh"` // 4H x H
	B  []float64 `json:"b"`  // 4H
	W1 []float64 `json:"w1"` // Dense x H
	B1 []float64 `json:"b1"` // Dense
	W2 []float64 `json:"w2"` // Dense
	B2 []float64 `json:"b2"` // 1
}

func newLSTMParams(c LSTMConfig) lstmParams {
	h, d := c.Hidden, c.NumFeatures
	return lstmParams{
		Wx: make([]float64, 4*h*d),
		Wh: make([]float64, 4*h*h),
		B:  make([]float64, 4*h),
		W1: make([]float64, c.Dense*h),
		B1: make([]float64, c.Dense),
		W2: make([]float64, c.Dense),
		B2: make([]float64, 1),
	}
}

func (p *lstmParams) tensors() [][]float64 {
	return [][]float64{p.Wx, p.Wh, p.B, p.W1, p.B1, p.W2, p.B2}
}

func (p *lstmParams) zero() {
	for _, t := range p.tensors() {
		for i := range t {
			t[i] = 0
		}
	}
}

// LSTM is a single-layer LSTM binary sequence classifier.
type LSTM struct {
	cfg    LSTMConfig
	params lstmParams
	fitted bool
}

type lstmState struct {
	Config LSTMConfig `json:"config"`
	Params lstmParams `json:"params"`
}

// EpochStats is the training summary logged after every epoch.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

// NewLSTM builds an untrained network with Glorot-uniform weights, zero biases
// and a forget-gate bias of 1.
func NewLSTM(cfg LSTMConfig) (*LSTM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &LSTM{cfg: cfg, params: newLSTMParams(cfg)}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x157e))
	h, d := cfg.Hidden, cfg.NumFeatures
	glorot(rng, m.params.Wx, d, 4*h)
	glorot(rng, m.params.Wh, h, 4*h)
	glorot(rng, m.params.W1, h, cfg.Dense)
	glorot(rng, m.params.W2, cfg.Dense, 1)
	for j := h; j < 2*h; j++ {
		m.params.B[j] = 1
	}
	return m, nil
}

func glorot(rng *rand.Rand, w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * limit
	}
}

// Config returns the network configuration.
func (m *LSTM) Config() LSTMConfig {
	return m.cfg
}

// InputShape returns the expected (timesteps, features) of one sequence.
func (m *LSTM) InputShape() (int, int) {
	return m.cfg.SeqLen, m.cfg.NumFeatures
}

// Fit trains on all sequences without a validation set.
func (m *LSTM) Fit(x [][][]float64, y []int) error {
	_, err := m.FitWithValidation(x, y, nil, nil)
	return err
}

// FitWithValidation trains with binary cross-entropy and Adam on shuffled
// mini-batches, reporting validation loss and accuracy after each epoch when
// validation data is given.
func (m *LSTM) FitWithValidation(x [][][]float64, y []int, xVal [][][]float64, yVal []int) ([]EpochStats, error) {
	if m.fitted {
		return nil, ErrAlreadyFitted
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("cannot fit on empty data")
	}
	if len(x) != len(y) || len(xVal) != len(yVal) {
		return nil, fmt.Errorf("sequence and label counts differ")
	}
	for i := range x {
		if err := m.checkSequence(x[i]); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("label %d at sequence %d is not binary", y[i], i)
		}
	}
	for i := range xVal {
		if err := m.checkSequence(xVal[i]); err != nil {
			return nil, fmt.Errorf("validation sequence %d: %w", i, err)
		}
	}

	cfg := m.cfg
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xba7c))
	grads := newLSTMParams(cfg)
	adamM := newLSTMParams(cfg)
	adamV := newLSTMParams(cfg)
	cache := m.newCache()
	step := 0

	history := make([]EpochStats, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		order := rng.Perm(len(x))
		var lossSum float64
		correct := 0

		for start := 0; start < len(order); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(order))
			grads.zero()
			for _, i := range order[start:end] {
				p := m.forward(x[i], cache)
				lossSum += bce(p, y[i])
				if (p >= 0.5) == (y[i] == 1) {
					correct++
				}
				m.backward(cache, y[i], &grads)
			}
			step++
			m.adamStep(&grads, &adamM, &adamV, step, 1/float64(end-start))
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(x)),
			Accuracy: float64(correct) / float64(len(x)),
		}
		if len(xVal) > 0 {
			stats.ValLoss, stats.ValAccuracy = m.evaluate(xVal, yVal, cache)
		}
		history = append(history, stats)

		log.Info().
			Int("epoch", epoch).
			Int("epochs", cfg.Epochs).
			Float64("loss", stats.Loss).
			Float64("accuracy", stats.Accuracy).
			Float64("val_loss", stats.ValLoss).
			Float64("val_accuracy", stats.ValAccuracy).
			Msg("Epoch complete")
	}

	m.fitted = true
	return history, nil
}

// Predict returns P(high risk) for every sequence. Safe for concurrent use
// once fitted.
func (m *LSTM) Predict(x [][][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	cache := m.newCache()
	out := make([]float64, len(x))
	for i, seq := range x {
		if err := m.checkSequence(seq); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = m.forward(seq, cache)
	}
	return out, nil
}

func (m *LSTM) checkSequence(seq [][]float64) error {
	if len(seq) != m.cfg.SeqLen {
		return &features.ShapeError{Op: "sequence length", Got: len(seq), Want: m.cfg.SeqLen}
	}
	for _, row := range seq {
		if len(row) != m.cfg.NumFeatures {
			return &features.ShapeError{Op: "timestep", Got: len(row), Want: m.cfg.NumFeatures}
		}
		if floats.HasNaN(row) {
			return fmt.Errorf("sequence contains missing values")
		}
	}
	return nil
}

func (m *LSTM) evaluate(x [][][]float64, y []int, cache *lstmCache) (float64, float64) {
	var loss float64
	correct := 0
	for i, seq := range x {
		p := m.forward(seq, cache)
		loss += bce(p, y[i])
		if (p >= 0.5) == (y[i] == 1) {
			correct++
		}
	}
	n := float64(len(x))
	return loss / n, float64(correct) / n
}

// lstmCache holds the activations of one forward pass for backpropagation.
type lstmCache struct {
	xs    [][]float64
	hs    [][]float64 // T+1 x H, hs[0] is the zero state
	cs    [][]float64 // T+1 x H
	gates [][]float64 // T x 4H, activated
	a1    []float64   // dense pre-activation
	r     []float64   // dense output
	p     float64

	dz, dh, dhPrev, dc, dr []float64
}

func (m *LSTM) newCache() *lstmCache {
	t, h := m.cfg.SeqLen, m.cfg.Hidden
	c := &lstmCache{
		xs:     make([][]float64, t),
		hs:     make([][]float64, t+1),
		cs:     make([][]float64, t+1),
		gates:  make([][]float64, t),
		a1:     make([]float64, m.cfg.Dense),
		r:      make([]float64, m.cfg.Dense),
		dz:     make([]float64, 4*h),
		dh:     make([]float64, h),
		dhPrev: make([]float64, h),
		dc:     make([]float64, h),
		dr:     make([]float64, m.cfg.Dense),
	}
	for i := 0; i <= t; i++ {
		c.hs[i] = make([]float64, h)
		c.cs[i] = make([]float64, h)
	}
	for i := 0; i < t; i++ {
		c.gates[i] = make([]float64, 4*h)
	}
	return c
}

func (m *LSTM) forward(seq [][]float64, c *lstmCache) float64 {
	h, d := m.cfg.Hidden, m.cfg.NumFeatures
	p := &m.params

	for j := range c.hs[0] {
		c.hs[0][j], c.cs[0][j] = 0, 0
	}
	for t, xt := range seq {
		c.xs[t] = xt
		hPrev, cPrev := c.hs[t], c.cs[t]
		g := c.gates[t]
		for r := 0; r < 4*h; r++ {
			g[r] = p.B[r] + floats.Dot(p.Wx[r*d:(r+1)*d], xt) + floats.Dot(p.Wh[r*h:(r+1)*h], hPrev)
		}
		hNext, cNext := c.hs[t+1], c.cs[t+1]
		for j := 0; j < h; j++ {
			i := sigmoid(g[j])
			f := sigmoid(g[h+j])
			cand := math.Tanh(g[2*h+j])
			o := sigmoid(g[3*h+j])
			g[j], g[h+j], g[2*h+j], g[3*h+j] = i, f, cand, o
			cNext[j] = f*cPrev[j] + i*cand
			hNext[j] = o * math.Tanh(cNext[j])
		}
	}

	hT := c.hs[len(seq)]
	for k := range c.a1 {
		c.a1[k] = p.B1[k] + floats.Dot(p.W1[k*h:(k+1)*h], hT)
		c.r[k] = math.Max(0, c.a1[k])
	}
	c.p = sigmoid(p.B2[0] + floats.Dot(p.W2, c.r))
	return c.p
}

// backward accumulates the binary cross-entropy gradient of the last forward
// pass into g.
func (m *LSTM) backward(c *lstmCache, y int, g *lstmParams) {
	h, d := m.cfg.Hidden, m.cfg.NumFeatures
	p := &m.params
	steps := len(c.gates)
	hT := c.hs[steps]

	// sigmoid + cross-entropy
	dOut := c.p - float64(y)
	g.B2[0] += dOut
	floats.AddScaled(g.W2, dOut, c.r)

	for j := range c.dh {
		c.dh[j] = 0
		c.dc[j] = 0
	}
	for k := range c.r {
		if c.a1[k] <= 0 {
			continue
		}
		da := dOut * p.W2[k]
		g.B1[k] += da
		floats.AddScaled(g.W1[k*h:(k+1)*h], da, hT)
		floats.AddScaled(c.dh, da, p.W1[k*h:(k+1)*h])
	}

	for t := steps - 1; t >= 0; t-- {
		gt := c.gates[t]
		cPrev, cNext, hPrev := c.cs[t], c.cs[t+1], c.hs[t]
		for j := 0; j < h; j++ {
			i, f, cand, o := gt[j], gt[h+j], gt[2*h+j], gt[3*h+j]
			tc := math.Tanh(cNext[j])
			do := c.dh[j] * tc
			dcj := c.dc[j] + c.dh[j]*o*(1-tc*tc)
			c.dz[j] = dcj * cand * i * (1 - i)
			c.dz[h+j] = dcj * cPrev[j] * f * (1 - f)
			c.dz[2*h+j] = dcj * i * (1 - cand*cand)
			c.dz[3*h+j] = do * o * (1 - o)
			c.dc[j] = dcj * f
		}

		for j := range c.dhPrev {
			c.dhPrev[j] = 0
		}
		xt := c.xs[t]
		for r := 0; r < 4*h; r++ {
			dz := c.dz[r]
			if dz == 0 {
				continue
			}
			g.B[r] += dz
			floats.AddScaled(g.Wx[r*d:(r+1)*d], dz, xt)
			floats.AddScaled(g.Wh[r*h:(r+1)*h], dz, hPrev)
			floats.AddScaled(c.dhPrev, dz, p.Wh[r*h:(r+1)*h])
		}
		c.dh, c.dhPrev = c.dhPrev, c.dh
	}
}

// adamStep applies one Adam update using gradients scaled by scale.
func (m *LSTM) adamStep(g, mom, vel *lstmParams, step int, scale float64) {
	lr := m.cfg.LearningRate * math.Sqrt(1-math.Pow(adamBeta2, float64(step))) /
		(1 - math.Pow(adamBeta1, float64(step)))
	params, grads, ms, vs := m.params.tensors(), g.tensors(), mom.tensors(), vel.tensors()
	for ti, w := range params {
		gw, mw, vw := grads[ti], ms[ti], vs[ti]
		for i := range w {
			gi := gw[i] * scale
			mw[i] = adamBeta1*mw[i] + (1-adamBeta1)*gi
			vw[i] = adamBeta2*vw[i] + (1-adamBeta2)*gi*gi
			w[i] -= lr * mw[i] / (math.Sqrt(vw[i]) + adamEpsilon)
		}
	}
}

func (m *LSTM) MarshalJSON() ([]byte, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	return json.Marshal(lstmState{Config: m.cfg, Params: m.params})
}

func (m *LSTM) UnmarshalJSON(data []byte) error {
	var st lstmState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if err := st.Config.validate(); err != nil {
		return fmt.Errorf("lstm: %w", err)
	}
	want := newLSTMParams(st.Config)
	got := st.Params.tensors()
	for i, t := range want.tensors() {
		if len(got[i]) != len(t) {
			return fmt.Errorf("lstm: tensor %d has %d weights, expected %d", i, len(got[i]), len(t))
		}
	}
	m.cfg = st.Config
	m.params = st.Params
	m.fitted = true
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func bce(p float64, y int) float64 {
	p = math.Min(math.Max(p, probClip), 1-probClip)
	if y == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}
