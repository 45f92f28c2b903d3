// Package app runs the receive loop: source, decoder, then the sink chosen
// by the run mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/capture"
	"github.com/rjboer/GoBasis/internal/dsp"
	"github.com/rjboer/GoBasis/internal/logging"
	"github.com/rjboer/GoBasis/internal/plot"
	"github.com/rjboer/GoBasis/internal/source"
	"github.com/rjboer/GoBasis/internal/telemetry"
)

// Run modes.
const (
	ModeCapture = "capture"
	ModePlot    = "plot"
	ModeDump    = "dump"
)

// ErrIncomplete is returned when the source ends before a capture or plot
// run has what it asked for.
var ErrIncomplete = errors.New("source ended early")

// Config captures application level configuration.
type Config struct {
	Mode string
	// MaxPackets stops plot and dump runs after this many decoded packets.
	// Zero means one packet for plot and no limit for dump.
	MaxPackets int
	// SkipInvalid keeps running past rejected packets instead of failing.
	SkipInvalid bool

	Capture  *capture.Writer
	Plotter  *plot.Plotter
	Analyzer *dsp.Analyzer
	// Out receives one line per packet in dump mode.
	Out io.Writer
}

// Counters are the totals of one run.
type Counters struct {
	Received int
	Decoded  int
	Rejected int
	Plots    []string
}

// Receiver wires a packet source into the decoder and a sink.
type Receiver struct {
	src      source.Source
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config
	pkt      basis.DecodedPacket
	counters Counters
}

// NewReceiver builds a receiver. reporter may be nil.
func NewReceiver(src source.Source, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Receiver {
	if logger == nil {
		logger = logging.Default()
	}
	if reporter == nil {
		reporter = telemetry.MultiReporter{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCapture
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Receiver{
		src:      src,
		reporter: reporter,
		logger:   logger.With(logging.F("subsystem", "receiver"), logging.F("mode", cfg.Mode)),
		cfg:      cfg,
	}
}

// Counters returns the totals so far.
func (r *Receiver) Counters() Counters { return r.counters }

func (r *Receiver) validate() error {
	switch r.cfg.Mode {
	case ModeCapture:
		if r.cfg.Capture == nil {
			return errors.New("capture mode needs a capture writer")
		}
	case ModePlot:
		if r.cfg.Plotter == nil {
			return errors.New("plot mode needs a plotter")
		}
		if r.cfg.MaxPackets == 0 {
			r.cfg.MaxPackets = 1
		}
	case ModeDump:
	default:
		return fmt.Errorf("unknown mode %q", r.cfg.Mode)
	}
	return nil
}

// Run receives until the mode is satisfied, the source is exhausted, ctx is
// canceled, or a packet is rejected while SkipInvalid is false.
func (r *Receiver) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	r.logger.Info("receiver started")

	for {
		raw, err := r.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return r.sourceEnded()
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		r.counters.Received++

		if err := basis.DecodeInto(raw, &r.pkt); err != nil {
			r.counters.Rejected++
			r.reporter.ReportError(err)
			r.logger.Warn("packet rejected",
				logging.F("packet", r.counters.Received),
				logging.F("kind", string(basis.KindOf(err))),
				logging.Err(err))
			if r.cfg.SkipInvalid {
				continue
			}
			return fmt.Errorf("packet %d: %w", r.counters.Received, err)
		}
		r.counters.Decoded++

		done, err := r.handle(raw)
		if err != nil {
			return err
		}
		if done {
			r.logger.Info("receiver finished",
				logging.F("received", r.counters.Received),
				logging.F("rejected", r.counters.Rejected))
			return nil
		}
	}
}

func (r *Receiver) handle(raw []byte) (bool, error) {
	p := &r.pkt
	summary := telemetry.Summarize(p)

	switch r.cfg.Mode {
	case ModeCapture:
		r.analyze(&summary)
		r.reporter.Report(summary)
		done, err := r.cfg.Capture.Write(raw, p)
		if err != nil {
			return false, err
		}
		r.logger.Debug("captured packet",
			logging.F("sequence", p.Sequence),
			logging.F("samples", r.cfg.Capture.Samples()))
		return done, nil

	case ModePlot:
		files, spectrum, err := r.cfg.Plotter.Packet(p)
		if err != nil {
			return false, fmt.Errorf("plot packet %d: %w", p.Sequence, err)
		}
		setPeak(&summary, spectrum)
		r.reporter.Report(summary)
		r.counters.Plots = append(r.counters.Plots, files...)
		r.logger.Info("plotted packet", logging.F("sequence", p.Sequence), logging.F("files", files))
		return r.counters.Decoded >= r.cfg.MaxPackets, nil

	default:
		r.analyze(&summary)
		r.reporter.Report(summary)
		fmt.Fprintln(r.cfg.Out, p.String())
		return r.cfg.MaxPackets > 0 && r.counters.Decoded >= r.cfg.MaxPackets, nil
	}
}

func (r *Receiver) analyze(s *telemetry.PacketSummary) {
	if r.cfg.Analyzer == nil || r.pkt.NumSamples() == 0 {
		return
	}
	spectrum, err := r.cfg.Analyzer.Spectrum(&r.pkt)
	if err != nil {
		return
	}
	setPeak(s, spectrum)
}

// setPeak leaves s untouched for silent packets, whose peak is -Inf.
func setPeak(s *telemetry.PacketSummary, spectrum dsp.Spectrum) {
	i := spectrum.Peak()
	if i < 0 || math.IsInf(spectrum.DBFS[i], 0) || math.IsNaN(spectrum.DBFS[i]) {
		return
	}
	s.PeakHz, s.PeakDBFS, s.HasPeak = spectrum.FreqsHz[i], spectrum.DBFS[i], true
}

func (r *Receiver) sourceEnded() error {
	r.logger.Info("source exhausted",
		logging.F("received", r.counters.Received),
		logging.F("rejected", r.counters.Rejected))
	switch r.cfg.Mode {
	case ModeCapture:
		if r.cfg.Capture.Remaining() > 0 {
			return fmt.Errorf("%w: captured %d samples", ErrIncomplete, r.cfg.Capture.Samples())
		}
	case ModePlot:
		if r.counters.Decoded == 0 {
			return fmt.Errorf("%w: no packet to plot", ErrIncomplete)
		}
	}
	return nil
}
