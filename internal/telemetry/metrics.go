package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus instruments of the receiver.
type Metrics struct {
	// Packet metrics
	PacketsReceived prometheus.Counter
	PacketsDecoded  *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	SamplesDecoded  prometheus.Counter
	SequenceGaps    prometheus.Counter

	// Stream state
	SampleRate      prometheus.Gauge
	CenterFrequency prometheus.Gauge
	PeakDBFS        prometheus.Gauge

	// Capture
	CapturedSamples prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics with reg. A nil reg uses the
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		PacketsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "basis_packets_received_total",
			Help: "Total number of raw packets handed to the decoder",
		}),
		PacketsDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "basis_packets_decoded_total",
			Help: "Total number of packets decoded successfully, by sample format",
		}, []string{"format"}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "basis_decode_errors_total",
			Help: "Total number of rejected packets, by error kind",
		}, []string{"kind"}),
		SamplesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "basis_samples_decoded_total",
			Help: "Total number of samples delivered by the decoder",
		}),
		SequenceGaps: f.NewCounter(prometheus.CounterOpts{
			Name: "basis_sequence_gaps_total",
			Help: "Total number of packets missing from the sequence counter",
		}),
		SampleRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "basis_sample_rate_hz",
			Help: "Sample rate of the last decoded packet",
		}),
		CenterFrequency: f.NewGauge(prometheus.GaugeOpts{
			Name: "basis_center_frequency_hz",
			Help: "Center frequency of the last decoded packet",
		}),
		PeakDBFS: f.NewGauge(prometheus.GaugeOpts{
			Name: "basis_peak_dbfs",
			Help: "Strongest spectral bin of the last analysed packet",
		}),
		CapturedSamples: f.NewCounter(prometheus.CounterOpts{
			Name: "basis_captured_samples_total",
			Help: "Total number of samples written to the capture file",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "basis_http_requests_total",
			Help: "Total number of telemetry API requests",
		}, []string{"path", "status"}),
	}
}
