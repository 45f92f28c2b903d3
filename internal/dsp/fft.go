// Package dsp turns decoded packets into spectra and plot axes.
package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rjboer/GoBasis/basis"
)

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := (n + 1) / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// FFTAndDBFS windows the samples, transforms them, normalizes by the window
// sum and converts the shifted magnitudes to dB relative to fullScale.
func FFTAndDBFS(samples []complex128, window []float64, fullScale float64) ([]complex128, []float64) {
	if len(samples) == 0 || len(window) != len(samples) {
		return []complex128{}, []float64{}
	}
	fft := fourier.NewCmplxFFT(len(samples)).Coefficients(nil, ApplyWindow(samples, window))
	normalize(fft, sum(window))
	shifted := FFTShift(fft)
	return shifted, toDBFS(shifted, fullScale)
}

func normalize(fft []complex128, winSum float64) {
	if winSum == 0 {
		return
	}
	for i := range fft {
		fft[i] /= complex(winSum, 0)
	}
}

func toDBFS(bins []complex128, fullScale float64) []float64 {
	if fullScale <= 0 {
		fullScale = 1
	}
	dbfs := make([]float64, len(bins))
	for i, v := range bins {
		mag := cmplx.Abs(v)
		if mag == 0 {
			dbfs[i] = math.Inf(-1)
			continue
		}
		dbfs[i] = 20 * math.Log10(mag/fullScale)
	}
	return dbfs
}

// FullScale is the amplitude that maps to 0 dBFS for a format: half the
// integer range for integer kinds and 1.0 for floating point kinds.
func FullScale(f basis.SampleFormat) float64 {
	k := f.Kind()
	if k.Float() {
		return 1
	}
	w := f.ComponentWidth()
	if w == 0 {
		return 1
	}
	return math.Ldexp(1, 8*w-1)
}

// FrequencyAxis returns the absolute frequency of each shifted FFT bin.
func FrequencyAxis(n int, sampleRateHz, centerHz float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	freqs := make([]float64, n)
	step := sampleRateHz / float64(n)
	for i := range freqs {
		freqs[i] = centerHz + float64(i-n/2)*step
	}
	return freqs
}

// TimeAxis returns the sample instants in seconds.
func TimeAxis(n int, sampleRateHz float64) []float64 {
	if n <= 0 || !(sampleRateHz > 0) {
		return []float64{}
	}
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) / sampleRateHz
	}
	return t
}
