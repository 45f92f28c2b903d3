// Package plot renders decoded packets as time-domain and frequency-domain
// PNG images.
package plot

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/dsp"
)

// dbFloor replaces -Inf bins so empty spectra can still be drawn.
const dbFloor = -200.0

var (
	realColor = color.RGBA{R: 220, A: 255}
	imagColor = color.RGBA{A: 255}
	specColor = color.RGBA{B: 200, A: 255}
)

// Plotter writes one pair of images per packet into a directory.
type Plotter struct {
	dir      string
	analyzer *dsp.Analyzer
	width    vg.Length
	height   vg.Length
}

// New creates dir if needed. The analyzer supplies the spectrum window.
func New(dir string, analyzer *dsp.Analyzer) (*Plotter, error) {
	if analyzer == nil {
		var err error
		if analyzer, err = dsp.NewAnalyzer(dsp.WindowHann, 0); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	return &Plotter{dir: dir, analyzer: analyzer, width: 14 * vg.Inch, height: 6 * vg.Inch}, nil
}

// Packet renders p and returns the written file paths along with the spectrum
// used for the frequency plot.
func (pl *Plotter) Packet(p *basis.DecodedPacket) ([]string, dsp.Spectrum, error) {
	spectrum, err := pl.analyzer.Spectrum(p)
	if err != nil {
		return nil, dsp.Spectrum{}, err
	}

	td, err := TimeDomain(p)
	if err != nil {
		return nil, spectrum, err
	}
	fd, err := FrequencyDomain(spectrum, fmt.Sprintf("Frequency Domain (seq %d)", p.Sequence))
	if err != nil {
		return nil, spectrum, err
	}

	tdFile := filepath.Join(pl.dir, fmt.Sprintf("packet_%05d_time.png", p.Sequence))
	if err := td.Save(pl.width, pl.height, tdFile); err != nil {
		return nil, spectrum, fmt.Errorf("save time plot: %w", err)
	}
	fdFile := filepath.Join(pl.dir, fmt.Sprintf("packet_%05d_freq.png", p.Sequence))
	if err := fd.Save(pl.width, pl.height, fdFile); err != nil {
		return nil, spectrum, fmt.Errorf("save frequency plot: %w", err)
	}
	return []string{tdFile, fdFile}, spectrum, nil
}

// TimeDomain plots the real (and, for complex packets, imaginary) components
// against time in microseconds.
func TimeDomain(p *basis.DecodedPacket) (*plot.Plot, error) {
	n := p.NumSamples()
	if n == 0 {
		return nil, fmt.Errorf("packet %d carries no samples", p.Sequence)
	}
	t := dsp.TimeAxis(n, p.SampleRateHz)

	re := make(plotter.XYs, n)
	var im plotter.XYs
	if p.IsComplex() {
		im = make(plotter.XYs, n)
	}
	peak := 0.0
	for i, v := range p.Complex() {
		x := t[i] * 1e6
		re[i] = plotter.XY{X: x, Y: real(v)}
		peak = math.Max(peak, math.Abs(real(v)))
		if im != nil {
			im[i] = plotter.XY{X: x, Y: imag(v)}
			peak = math.Max(peak, math.Abs(imag(v)))
		}
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Time Domain (seq %d, %s)", p.Sequence, p.Format)
	pl.X.Label.Text = "Time (µs)"
	pl.Y.Label.Text = "Amplitude"
	pl.Add(plotter.NewGrid())

	reLine, err := plotter.NewLine(re)
	if err != nil {
		return nil, err
	}
	reLine.Color = realColor
	reLine.Width = vg.Points(1)
	pl.Add(reLine)
	pl.Legend.Add("real", reLine)

	if im != nil {
		imLine, err := plotter.NewLine(im)
		if err != nil {
			return nil, err
		}
		imLine.Color = imagColor
		imLine.Width = vg.Points(1)
		pl.Add(imLine)
		pl.Legend.Add("imag", imLine)
	}

	limit := 1.2 * math.Ceil(peak)
	if limit == 0 {
		limit = 1
	}
	pl.Y.Min, pl.Y.Max = -limit, limit
	pl.X.Min, pl.X.Max = 0, re[n-1].X
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// FrequencyDomain plots a spectrum in dBFS against frequency in MHz.
func FrequencyDomain(spectrum dsp.Spectrum, title string) (*plot.Plot, error) {
	if len(spectrum.DBFS) == 0 {
		return nil, fmt.Errorf("empty spectrum")
	}
	pts := make(plotter.XYs, len(spectrum.DBFS))
	for i, v := range spectrum.DBFS {
		if math.IsInf(v, -1) || math.IsNaN(v) || v < dbFloor {
			v = dbFloor
		}
		pts[i] = plotter.XY{X: spectrum.FreqsHz[i] / 1e6, Y: v}
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Frequency (MHz)"
	pl.Y.Label.Text = "Magnitude (dBFS)"
	pl.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = specColor
	line.Width = vg.Points(1)
	pl.Add(line)
	pl.X.Min, pl.X.Max = pts[0].X, pts[len(pts)-1].X
	return pl, nil
}
