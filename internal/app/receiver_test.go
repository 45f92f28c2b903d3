package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/capture"
	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/dsp"
	"github.com/rjboer/GoBasis/internal/logging"
	"github.com/rjboer/GoBasis/internal/plot"
	"github.com/rjboer/GoBasis/internal/source"
	"github.com/rjboer/GoBasis/internal/telemetry"
)

var quiet = logging.New(logging.Error, logging.Text, io.Discard)

type sliceSource struct {
	packets [][]byte
	err     error // returned once the packets run out; io.EOF when nil
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.packets) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func (s *sliceSource) Close() error { return nil }

type recordingReporter struct {
	seqs     []uint16
	peaks    []float64
	hasPeaks []bool
	errors   []error
}

func (r *recordingReporter) Report(s telemetry.PacketSummary) {
	r.seqs = append(r.seqs, s.Sequence)
	r.peaks = append(r.peaks, s.PeakDBFS)
	r.hasPeaks = append(r.hasPeaks, s.HasPeak)
}

func (r *recordingReporter) ReportError(err error) { r.errors = append(r.errors, err) }

func packet(t *testing.T, seq uint16, n int) []byte {
	t.Helper()
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i % 100)
	}
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt16, SampleRateHz: 48e3, Sequence: seq}, vals)
	require.NoError(t, err)
	return raw
}

func TestCaptureWithMockSource(t *testing.T) {
	mock, err := source.NewMock(config.MockConfig{Format: "ComplexInt16", SampleRateHz: 2e6, ToneOffsetHz: 200e3, Amplitude: 8192})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "iq_data.bin")
	w, err := capture.Create(path, 500)
	require.NoError(t, err)
	analyzer, err := dsp.NewAnalyzer(dsp.WindowHann, 0)
	require.NoError(t, err)

	rep := &recordingReporter{}
	r := NewReceiver(mock, rep, quiet, Config{Mode: ModeCapture, Capture: w, Analyzer: analyzer})
	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 500*4, info.Size())
	require.Equal(t, []uint16{0, 1, 2}, rep.seqs)
	for _, p := range rep.peaks {
		// 8192 of 32768 full scale
		require.InDelta(t, -12.04, p, 0.1)
	}
	require.Equal(t, []bool{true, true, true}, rep.hasPeaks)
	require.Equal(t, 3, r.Counters().Decoded)
}

func TestSilentPacketHasNoPeak(t *testing.T) {
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt16, SampleRateHz: 48e3}, make([]float64, 64))
	require.NoError(t, err)
	analyzer, err := dsp.NewAnalyzer(dsp.WindowHann, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	rep := &recordingReporter{}
	r := NewReceiver(&sliceSource{packets: [][]byte{raw}}, rep, quiet,
		Config{Mode: ModeDump, Analyzer: analyzer, Out: &out})
	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, []bool{false}, rep.hasPeaks)
	require.Equal(t, []float64{0}, rep.peaks)
}

func TestCaptureStopsOnInvalidPacket(t *testing.T) {
	w, err := capture.Create(filepath.Join(t.TempDir(), "x.bin"), 10000)
	require.NoError(t, err)
	defer w.Close()

	src := &sliceSource{packets: [][]byte{packet(t, 0, 10), make([]byte, 1000), packet(t, 1, 10)}}
	rep := &recordingReporter{}
	r := NewReceiver(src, rep, quiet, Config{Mode: ModeCapture, Capture: w})
	err = r.Run(context.Background())
	require.ErrorIs(t, err, basis.ErrWrongLength)
	require.Len(t, rep.errors, 1)
	require.Equal(t, Counters{Received: 2, Decoded: 1, Rejected: 1}, r.Counters())
}

func TestCaptureSkipInvalid(t *testing.T) {
	w, err := capture.Create(filepath.Join(t.TempDir(), "x.bin"), 20)
	require.NoError(t, err)
	defer w.Close()

	bad := packet(t, 9, 10)
	bad[0] = 0x42 // unknown format code
	src := &sliceSource{packets: [][]byte{packet(t, 0, 10), bad, packet(t, 1, 10)}}
	r := NewReceiver(src, nil, quiet, Config{Mode: ModeCapture, Capture: w, SkipInvalid: true})
	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 20, w.Samples())
	require.Equal(t, 1, r.Counters().Rejected)
}

func TestCaptureIncompleteWhenSourceEnds(t *testing.T) {
	w, err := capture.Create(filepath.Join(t.TempDir(), "x.bin"), 100)
	require.NoError(t, err)
	defer w.Close()

	r := NewReceiver(&sliceSource{packets: [][]byte{packet(t, 0, 10)}}, nil, quiet, Config{Mode: ModeCapture, Capture: w})
	require.ErrorIs(t, r.Run(context.Background()), ErrIncomplete)
}

func TestReceiveErrorIsReturned(t *testing.T) {
	r := NewReceiver(&sliceSource{err: source.ErrTimeout}, nil, quiet, Config{Mode: ModeDump})
	require.ErrorIs(t, r.Run(context.Background()), source.ErrTimeout)
}

func TestRunHonoursContext(t *testing.T) {
	mock, err := source.NewMock(config.MockConfig{Format: "ScalarInt8", SampleRateHz: 1e6, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = NewReceiver(mock, nil, quiet, Config{Mode: ModeDump}).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDumpWritesOneLinePerPacket(t *testing.T) {
	var out bytes.Buffer
	src := &sliceSource{packets: [][]byte{packet(t, 4, 3), packet(t, 5, 2), packet(t, 6, 1)}}
	r := NewReceiver(src, nil, quiet, Config{Mode: ModeDump, MaxPackets: 2, Out: &out})
	require.NoError(t, r.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Seq:4")
	require.Contains(t, lines[1], "Samples:2")
}

func TestPlotMode(t *testing.T) {
	pl, err := plot.New(t.TempDir(), nil)
	require.NoError(t, err)
	src := &sliceSource{packets: [][]byte{packet(t, 1, 64), packet(t, 2, 64), packet(t, 3, 64)}}
	rep := &recordingReporter{}
	r := NewReceiver(src, rep, quiet, Config{Mode: ModePlot, Plotter: pl, MaxPackets: 2})
	require.NoError(t, r.Run(context.Background()))
	require.Len(t, r.Counters().Plots, 4)
	require.Equal(t, []uint16{1, 2}, rep.seqs)
	for _, f := range r.Counters().Plots {
		_, err := os.Stat(f)
		require.NoError(t, err)
	}
}

func TestPlotModeWithoutPackets(t *testing.T) {
	pl, err := plot.New(t.TempDir(), nil)
	require.NoError(t, err)
	r := NewReceiver(&sliceSource{}, nil, quiet, Config{Mode: ModePlot, Plotter: pl})
	require.ErrorIs(t, r.Run(context.Background()), ErrIncomplete)
}

func TestModeValidation(t *testing.T) {
	for _, cfg := range []Config{
		{Mode: ModeCapture},
		{Mode: ModePlot},
		{Mode: "stream"},
	} {
		err := NewReceiver(&sliceSource{}, nil, quiet, cfg).Run(context.Background())
		require.Error(t, err, cfg.Mode)
		require.False(t, errors.Is(err, io.EOF))
	}
}
