package telemetry

import (
	"github.com/rjboer/GoBasis/internal/logging"
)

// Reporter receives one call per packet handed to the decoder.
type Reporter interface {
	Report(s PacketSummary)
	ReportError(err error)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards a summary to each configured reporter.
func (m MultiReporter) Report(s PacketSummary) {
	for _, r := range m {
		if r != nil {
			r.Report(s)
		}
	}
}

// ReportError forwards a rejection to each configured reporter.
func (m MultiReporter) ReportError(err error) {
	for _, r := range m {
		if r != nil {
			r.ReportError(err)
		}
	}
}

// StdoutReporter logs every packet, in the spirit of the dump mode.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(s PacketSummary) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "sequence", Value: s.Sequence},
		{Key: "format", Value: s.Format},
		{Key: "samples", Value: s.Samples},
		{Key: "fs_hz", Value: s.SampleRateHz},
		{Key: "cf_hz", Value: s.CenterFrequencyHz},
	}
	if s.HasPeak {
		fields = append(fields,
			logging.Field{Key: "peak_hz", Value: s.PeakHz},
			logging.Field{Key: "peak_dbfs", Value: s.PeakDBFS},
		)
	}
	r.logger.Info("packet", fields...)
}

// ReportError is a no-op: the receive loop already logs every rejection.
func (r StdoutReporter) ReportError(error) {}
