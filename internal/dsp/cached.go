package dsp

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rjboer/GoBasis/basis"
)

// Spectrum is the shifted spectrum of one packet.
type Spectrum struct {
	FreqsHz []float64
	Bins    []complex128
	DBFS    []float64
}

// Peak returns the index of the strongest bin, or -1 for an empty spectrum.
func (s Spectrum) Peak() int {
	idx := -1
	for i, v := range s.DBFS {
		if idx < 0 || v > s.DBFS[idx] {
			idx = i
		}
	}
	return idx
}

// PeakHz returns the frequency of the strongest bin.
func (s Spectrum) PeakHz() float64 {
	if i := s.Peak(); i >= 0 {
		return s.FreqsHz[i]
	}
	return 0
}

// Analyzer caches a window and FFT plan between packets. Packets of a
// different length rebuild the cache.
type Analyzer struct {
	mu     sync.Mutex
	window string
	size   int
	win    []float64
	winSum float64
	fft    *fourier.CmplxFFT
}

// NewAnalyzer creates an analyzer for the named window, pre-sized for n
// samples when n > 0.
func NewAnalyzer(window string, n int) (*Analyzer, error) {
	if _, err := NewWindow(window, 1); err != nil {
		return nil, err
	}
	a := &Analyzer{window: window}
	if n > 0 {
		a.resize(n)
	}
	return a, nil
}

// resize must be called with mu held.
func (a *Analyzer) resize(n int) {
	win, _ := NewWindow(a.window, n)
	a.size = n
	a.win = win
	a.winSum = sum(win)
	a.fft = fourier.NewCmplxFFT(n)
}

// Size returns the current FFT size.
func (a *Analyzer) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// Transform is FFTAndDBFS using the cached window and plan.
func (a *Analyzer) Transform(samples []complex128, fullScale float64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	a.mu.Lock()
	if len(samples) != a.size {
		a.resize(len(samples))
	}
	fft := a.fft.Coefficients(nil, ApplyWindow(samples, a.win))
	winSum := a.winSum
	a.mu.Unlock()

	normalize(fft, winSum)
	shifted := FFTShift(fft)
	return shifted, toDBFS(shifted, fullScale)
}

// Spectrum computes the spectrum of p on an absolute frequency axis
// centred on the packet's center frequency.
func (a *Analyzer) Spectrum(p *basis.DecodedPacket) (Spectrum, error) {
	n := p.NumSamples()
	if n == 0 {
		return Spectrum{}, fmt.Errorf("packet %d carries no samples", p.Sequence)
	}
	bins, dbfs := a.Transform(p.Complex(), FullScale(p.Format))
	return Spectrum{
		FreqsHz: FrequencyAxis(n, p.SampleRateHz, p.CenterFrequencyHz),
		Bins:    bins,
		DBFS:    dbfs,
	}, nil
}
