// Package capture writes the raw payload bytes of consecutive packets to a
// file until a requested number of samples has been stored.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoBasis/basis"
)

// ErrFormatChanged is returned when a packet's format or sample rate differs
// from the first captured packet.
var ErrFormatChanged = errors.New("capture: stream format changed")

// Metadata describes a capture file. It is written next to the data as
// <output>.yaml when the capture is closed.
type Metadata struct {
	File              string    `yaml:"file"`
	Format            string    `yaml:"format"`
	FormatCode        uint8     `yaml:"format_code"`
	BytesPerSample    int       `yaml:"bytes_per_sample"`
	SampleRateHz      float64   `yaml:"sample_rate_hz"`
	CenterFrequencyHz float64   `yaml:"center_frequency_hz"`
	Samples           int       `yaml:"samples"`
	Packets           int       `yaml:"packets"`
	FirstSequence     uint16    `yaml:"first_sequence"`
	LastSequence      uint16    `yaml:"last_sequence"`
	Started           time.Time `yaml:"started"`
	Session           string    `yaml:"session,omitempty"`
}

// Writer appends packet payloads to a file. A desired count of zero means no
// limit.
type Writer struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	desired int
	meta    Metadata
	started bool
}

// Create truncates or creates path.
func Create(path string, desired int) (*Writer, error) {
	if desired < 0 {
		return nil, fmt.Errorf("desired samples must not be negative, got %d", desired)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	return &Writer{
		path:    path,
		f:       f,
		w:       bufio.NewWriter(f),
		desired: desired,
		meta:    Metadata{File: path},
	}, nil
}

// SetSession records a session identifier in the metadata.
func (c *Writer) SetSession(id string) { c.meta.Session = id }

// Write stores the payload of p, whose raw bytes are raw. Only as many
// samples as are still needed are written. It reports whether the capture is
// complete.
func (c *Writer) Write(raw []byte, p *basis.DecodedPacket) (bool, error) {
	if c.Done() {
		return true, nil
	}
	if !c.started {
		c.started = true
		c.meta.Format = p.Format.String()
		c.meta.FormatCode = uint8(p.Format)
		c.meta.BytesPerSample = p.Format.BytesPerSample()
		c.meta.SampleRateHz = p.SampleRateHz
		c.meta.CenterFrequencyHz = p.CenterFrequencyHz
		c.meta.FirstSequence = p.Sequence
		c.meta.Started = time.Now().UTC()
	} else if p.Format.String() != c.meta.Format || p.SampleRateHz != c.meta.SampleRateHz {
		return false, fmt.Errorf("%w: %s at %g Hz after %s at %g Hz",
			ErrFormatChanged, p.Format, p.SampleRateHz, c.meta.Format, c.meta.SampleRateHz)
	}

	n := p.NumSamples()
	if c.desired > 0 {
		n = min(n, c.desired-c.meta.Samples)
	}
	bps := p.Format.BytesPerSample()
	payload := raw[basis.HeaderRegionSize : basis.HeaderRegionSize+n*bps]
	if _, err := c.w.Write(payload); err != nil {
		return false, fmt.Errorf("write capture: %w", err)
	}
	c.meta.Samples += n
	c.meta.Packets++
	c.meta.LastSequence = p.Sequence
	return c.Done(), nil
}

// Done reports whether the desired number of samples has been written.
func (c *Writer) Done() bool {
	return c.desired > 0 && c.meta.Samples >= c.desired
}

// Samples is the number of samples written so far.
func (c *Writer) Samples() int { return c.meta.Samples }

// Remaining is the number of samples still wanted, or -1 when unlimited.
func (c *Writer) Remaining() int {
	if c.desired == 0 {
		return -1
	}
	return c.desired - c.meta.Samples
}

// Metadata returns the description of what has been written.
func (c *Writer) Metadata() Metadata { return c.meta }

// Close flushes the data, closes the file and writes the metadata sidecar.
func (c *Writer) Close() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close() //nolint:errcheck
		return fmt.Errorf("flush capture: %w", err)
	}
	if err := c.f.Close(); err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	data, err := yaml.Marshal(c.meta)
	if err != nil {
		return fmt.Errorf("encode capture metadata: %w", err)
	}
	if err := os.WriteFile(c.path+".yaml", data, 0o644); err != nil {
		return fmt.Errorf("write capture metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar written for the capture at path.
func ReadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path + ".yaml")
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode capture metadata: %w", err)
	}
	return m, nil
}
