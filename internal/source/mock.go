package source

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/config"
)

// MockSource synthesizes full packets carrying a tone at a configurable
// offset from the center frequency, with a little Gaussian noise.
type MockSource struct {
	mu     sync.Mutex
	cfg    config.MockConfig
	format basis.SampleFormat
	seq    uint16
	phase  float64
	rng    *rand.Rand
	last   time.Time
}

// NewMock validates cfg and returns a generator.
func NewMock(cfg config.MockConfig) (*MockSource, error) {
	f, err := basis.ParseSampleFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 2e6
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1
	}
	return &MockSource{
		cfg:    cfg,
		format: f,
		rng:    rand.New(rand.NewSource(1)),
	}, nil
}

// Next returns the next packet, pacing packets by the configured interval.
func (m *MockSource) Next(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.cfg.Interval))
	m.mu.Unlock()
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = time.Now()

	h := basis.Header{
		Format:            m.format,
		SampleRateHz:      m.cfg.SampleRateHz,
		CenterFrequencyHz: m.cfg.CenterFrequencyHz,
		Sequence:          m.seq,
	}
	m.seq++

	n := basis.MaxSamples(m.format)
	step := 2 * math.Pi * m.cfg.ToneOffsetHz / m.cfg.SampleRateHz
	amp := m.cfg.Amplitude
	bias := 0.0
	if !m.format.Kind().Signed() && !m.format.Kind().Float() {
		bias = amp
	}

	if m.format.IsComplex() {
		iq := make([]complex128, n)
		for i := range iq {
			re := amp*math.Cos(m.phase) + m.noise()
			im := amp*math.Sin(m.phase) + m.noise()
			iq[i] = complex(re+bias, im+bias)
			m.phase = math.Mod(m.phase+step, 2*math.Pi)
		}
		return basis.EncodeComplex(h, iq)
	}

	re := make([]float64, n)
	for i := range re {
		re[i] = amp*math.Cos(m.phase) + m.noise() + bias
		m.phase = math.Mod(m.phase+step, 2*math.Pi)
	}
	return basis.Encode(h, re)
}

func (m *MockSource) noise() float64 {
	return m.rng.NormFloat64() * m.cfg.Amplitude * 1e-3
}

// Close is a no-op.
func (m *MockSource) Close() error { return nil }
