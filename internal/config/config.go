package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoBasis/basis"
)

// Source kinds.
const (
	SourceUDP  = "udp"
	SourceTCP  = "tcp"
	SourcePCAP = "pcap"
	SourceMock = "mock"
)

// Config is the receiver configuration. Zero values in a loaded file fall
// back to Default.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Capture   CaptureConfig   `yaml:"capture"`
	Plot      PlotConfig      `yaml:"plot"`
	Web       WebConfig       `yaml:"web"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig selects where raw packets come from.
type SourceConfig struct {
	Kind        string        `yaml:"kind"`
	Address     string        `yaml:"address"` // multicast group, TCP host or bind address
	Port        int           `yaml:"port"`
	Interface   string        `yaml:"interface"` // multicast interface name, empty for default
	ReadBuffer  int           `yaml:"read_buffer"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	PCAPFile    string        `yaml:"pcap_file"`
	Mock        MockConfig    `yaml:"mock"`
}

// MockConfig parameterises the synthetic tone generator.
type MockConfig struct {
	Format            string        `yaml:"format"`
	SampleRateHz      float64       `yaml:"sample_rate_hz"`
	CenterFrequencyHz float64       `yaml:"center_frequency_hz"`
	ToneOffsetHz      float64       `yaml:"tone_offset_hz"`
	Amplitude         float64       `yaml:"amplitude"`
	Interval          time.Duration `yaml:"interval"`
}

// CaptureConfig controls raw IQ capture to disk.
type CaptureConfig struct {
	Output         string `yaml:"output"`
	DesiredSamples int    `yaml:"desired_samples"`
	SkipInvalid    bool   `yaml:"skip_invalid"` // keep capturing past rejected packets
}

// PlotConfig controls PNG plot output.
type PlotConfig struct {
	Dir     string `yaml:"dir"`
	Window  string `yaml:"window"`
	Packets int    `yaml:"packets"` // packets to plot before exiting
}

// WebConfig controls the HTTP telemetry endpoints. An empty Addr disables them.
type WebConfig struct {
	Addr         string `yaml:"addr"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DiscoveryConfig controls mDNS browsing.
type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: the multicast group and port
// used by Basis publishers, capturing 8192 samples to iq_data.bin.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Kind:        SourceUDP,
			Address:     "224.12.34.56",
			Port:        9083,
			ReadBuffer:  1 << 20,
			ReadTimeout: time.Second,
			DialTimeout: 5 * time.Second,
			MaxRetries:  5,
			Mock: MockConfig{
				Format:            basis.ComplexInt16.String(),
				SampleRateHz:      2e6,
				CenterFrequencyHz: 2.4e9,
				ToneOffsetHz:      200e3,
				Amplitude:         8192,
				Interval:          time.Millisecond,
			},
		},
		Capture: CaptureConfig{
			Output:         "iq_data.bin",
			DesiredSamples: 8192,
		},
		Plot: PlotConfig{
			Dir:     "plots",
			Window:  "hann",
			Packets: 1,
		},
		Web: WebConfig{
			HistoryLimit: 500,
		},
		Discovery: DiscoveryConfig{
			Timeout: 3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of Default. An empty path or a missing file
// yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the values a receiver cannot run without.
func (c Config) Validate() error {
	switch c.Source.Kind {
	case SourceUDP, SourceTCP:
		if c.Source.Port <= 0 || c.Source.Port > 65535 {
			return fmt.Errorf("source port must be between 1 and 65535, got %d", c.Source.Port)
		}
	case SourcePCAP:
		if c.Source.PCAPFile == "" {
			return errors.New("pcap source requires pcap_file")
		}
	case SourceMock:
		if _, err := basis.ParseSampleFormat(c.Source.Mock.Format); err != nil {
			return fmt.Errorf("mock format: %w", err)
		}
		if !(c.Source.Mock.SampleRateHz > 0) {
			return fmt.Errorf("mock sample rate must be positive, got %v", c.Source.Mock.SampleRateHz)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Source.ReadTimeout < 0 || c.Source.DialTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Capture.DesiredSamples <= 0 {
		return fmt.Errorf("desired samples must be positive, got %d", c.Capture.DesiredSamples)
	}
	switch c.Plot.Window {
	case "hann", "hamming", "none":
	default:
		return fmt.Errorf("unknown plot window %q", c.Plot.Window)
	}
	if c.Plot.Packets <= 0 {
		return fmt.Errorf("plot packets must be positive, got %d", c.Plot.Packets)
	}
	if c.Web.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative, got %d", c.Web.HistoryLimit)
	}
	return nil
}

// Endpoint joins address and port for dialing or listening.
func (s SourceConfig) Endpoint() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}
