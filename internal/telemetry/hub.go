package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/logging"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 500}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// PacketSummary is one history entry: either a decoded packet or a rejection.
type PacketSummary struct {
	Timestamp         time.Time `json:"timestamp"`
	Sequence          uint16    `json:"sequence"`
	Format            string    `json:"format,omitempty"`
	SampleRateHz      float64   `json:"sampleRateHz,omitempty"`
	CenterFrequencyHz float64   `json:"centerFrequencyHz,omitempty"`
	Samples           int       `json:"samples"`
	PeakHz            float64   `json:"peakHz,omitempty"`
	PeakDBFS          float64   `json:"peakDbfs,omitempty"`
	HasPeak           bool      `json:"hasPeak,omitempty"`
	ErrorKind         string    `json:"errorKind,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// Summarize builds the summary of a decoded packet.
func Summarize(p *basis.DecodedPacket) PacketSummary {
	return PacketSummary{
		Timestamp:         time.Now(),
		Sequence:          p.Sequence,
		Format:            p.Format.String(),
		SampleRateHz:      p.SampleRateHz,
		CenterFrequencyHz: p.CenterFrequencyHz,
		Samples:           p.NumSamples(),
	}
}

// Stats are the cumulative counters served on /api/stats.
type Stats struct {
	SessionID    string            `json:"sessionId"`
	Started      time.Time         `json:"started"`
	Received     uint64            `json:"received"`
	Decoded      uint64            `json:"decoded"`
	Samples      uint64            `json:"samples"`
	SequenceGaps uint64            `json:"sequenceGaps"`
	LastSequence *uint16           `json:"lastSequence,omitempty"`
	Formats      map[string]uint64 `json:"formats"`
	Errors       map[string]uint64 `json:"errors"`
}

// Hub collects history and fan-outs packet summaries to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []PacketSummary
	historyLimit int
	subscribers  map[chan PacketSummary]struct{}
	config       Config
	stats        Stats
	haveSeq      bool
	lastSeq      uint16
	metrics      *Metrics
	logger       logging.Logger
}

// NewHub builds a telemetry hub with the provided history limit. metrics may
// be nil.
func NewHub(historyLimit int, logger logging.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	h := &Hub{
		historyLimit: cfg.HistoryLimit,
		subscribers:  make(map[chan PacketSummary]struct{}),
		config:       cfg,
		metrics:      metrics,
		logger:       logger.With(logging.F("subsystem", "telemetry")),
		stats: Stats{
			SessionID: uuid.NewString(),
			Started:   time.Now(),
			Formats:   make(map[string]uint64),
			Errors:    make(map[string]uint64),
		},
	}
	h.logger.Debug("telemetry session started", logging.F("session", h.stats.SessionID))
	return h
}

// SessionID identifies this receiver run.
func (h *Hub) SessionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats.SessionID
}

// Report implements Reporter and records a decoded packet.
func (h *Hub) Report(s PacketSummary) {
	h.mu.Lock()
	h.stats.Received++
	h.stats.Decoded++
	h.stats.Samples += uint64(s.Samples)
	h.stats.Formats[s.Format]++
	gap := h.trackSequence(s.Sequence)
	h.record(s)
	h.mu.Unlock()

	if m := h.metrics; m != nil {
		m.PacketsReceived.Inc()
		m.PacketsDecoded.WithLabelValues(s.Format).Inc()
		m.SamplesDecoded.Add(float64(s.Samples))
		m.SampleRate.Set(s.SampleRateHz)
		m.CenterFrequency.Set(s.CenterFrequencyHz)
		if s.HasPeak {
			m.PeakDBFS.Set(s.PeakDBFS)
		}
		if gap > 0 {
			m.SequenceGaps.Add(float64(gap))
		}
	}
	if gap > 0 {
		h.logger.Warn("sequence gap", logging.F("missing", gap), logging.F("sequence", s.Sequence))
	}
}

// ReportError implements Reporter and records a rejected packet.
func (h *Hub) ReportError(err error) {
	kind := string(basis.KindOf(err))
	s := PacketSummary{Timestamp: time.Now(), ErrorKind: kind, Error: err.Error()}

	h.mu.Lock()
	h.stats.Received++
	h.stats.Errors[kind]++
	h.record(s)
	h.mu.Unlock()

	if m := h.metrics; m != nil {
		m.PacketsReceived.Inc()
		m.DecodeErrors.WithLabelValues(kind).Inc()
	}
}

// trackSequence must be called with mu held. It returns how many packets
// were skipped, accounting for the 16-bit wrap.
func (h *Hub) trackSequence(seq uint16) uint16 {
	var gap uint16
	if h.haveSeq {
		gap = seq - (h.lastSeq + 1)
		if gap >= 1<<15 {
			// duplicate or reordered packet
			gap = 0
		}
	}
	h.haveSeq = true
	h.lastSeq = seq
	h.stats.SequenceGaps += uint64(gap)
	return gap
}

// record must be called with mu held.
func (h *Hub) record(s PacketSummary) {
	h.history = append(h.history, s)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// History returns a copy of stored packet summaries.
func (h *Hub) History() []PacketSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]PacketSummary, len(h.history))
	copy(out, h.history)
	return out
}

// Stats returns a snapshot of the cumulative counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.stats
	out.Formats = make(map[string]uint64, len(h.stats.Formats))
	for k, v := range h.stats.Formats {
		out.Formats[k] = v
	}
	out.Errors = make(map[string]uint64, len(h.stats.Errors))
	for k, v := range h.stats.Errors {
		out.Errors[k] = v
	}
	if h.haveSeq {
		seq := h.lastSeq
		out.LastSequence = &seq
	}
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan PacketSummary, func()) {
	ch := make(chan PacketSummary, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	h.historyLimit = cfg.HistoryLimit
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handlePackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	history := h.History()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}
	writeJSON(w, history)
}

func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.Stats())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()

	writeJSON(w, cfg)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, s := range h.History() {
		writeEvent(w, s)
	}
	flusher.Flush()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, s)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, s PacketSummary) {
	payload, _ := json.Marshal(s)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
