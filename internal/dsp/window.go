package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Window names accepted by NewWindow.
const (
	WindowHann    = "hann"
	WindowHamming = "hamming"
	WindowNone    = "none"
)

// Hann returns a symmetric Hann window of length n.
func Hann(n int) []float64 {
	return cosineWindow(n, 0.5, 0.5)
}

// Hamming returns a Hamming window of length n.
// If n is zero or negative, an empty slice is returned.
func Hamming(n int) []float64 {
	return cosineWindow(n, 0.54, 0.46)
}

// Rectangular returns a window of ones.
func Rectangular(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	win := make([]float64, n)
	for i := range win {
		win[i] = 1
	}
	return win
}

func cosineWindow(n int, a0, a1 float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{1}
	}
	win := make([]float64, n)
	for i := 0; i < n; i++ {
		win[i] = a0 - a1*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// NewWindow builds the named window. An empty name selects Hann.
func NewWindow(name string, n int) ([]float64, error) {
	switch strings.ToLower(name) {
	case "", WindowHann, "hanning":
		return Hann(n), nil
	case WindowHamming:
		return Hamming(n), nil
	case WindowNone, "rect", "rectangular":
		return Rectangular(n), nil
	default:
		return nil, fmt.Errorf("unknown window %q", name)
	}
}

// ApplyWindow multiplies the input complex samples with the provided window.
// The window length must match the input length.
func ApplyWindow(samples []complex128, window []float64) []complex128 {
	if len(samples) != len(window) {
		return []complex128{}
	}
	out := make([]complex128, len(samples))
	for i, v := range samples {
		out[i] = complex(real(v)*window[i], imag(v)*window[i])
	}
	return out
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
