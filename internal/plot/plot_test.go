package plot

import (
	"bytes"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/dsp"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func complexTone(t *testing.T) *basis.DecodedPacket {
	t.Helper()
	n := basis.MaxSamples(basis.ComplexInt16)
	iq := make([]complex128, n)
	for i := range iq {
		iq[i] = cmplx.Rect(1000, 2*math.Pi*float64(20*i)/float64(n))
	}
	raw, err := basis.EncodeComplex(basis.Header{
		Format:            basis.ComplexInt16,
		SampleRateHz:      2e6,
		CenterFrequencyHz: 2.4e9,
		Sequence:          12,
	}, iq)
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)
	return p
}

func TestPacketWritesImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	pl, err := New(dir, nil)
	require.NoError(t, err)

	files, spectrum, err := pl.Packet(complexTone(t))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "packet_00012_time.png"),
		filepath.Join(dir, "packet_00012_freq.png"),
	}, files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(b, pngMagic), "%s is not a PNG", f)
	}
	require.InDelta(t, 2.4e9+20*2e6/240, spectrum.PeakHz(), 1e-3)
}

func TestTimeDomainAxes(t *testing.T) {
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt8, SampleRateHz: 1e6}, []float64{-3, 7, 2})
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)

	pl, err := TimeDomain(p)
	require.NoError(t, err)
	require.InDelta(t, 8.4, pl.Y.Max, 1e-12)
	require.InDelta(t, -8.4, pl.Y.Min, 1e-12)
	require.InDelta(t, 2.0, pl.X.Max, 1e-12)
}

func TestTimeDomainRejectsEmptyPacket(t *testing.T) {
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt16, SampleRateHz: 1e6}, nil)
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)
	_, err = TimeDomain(p)
	require.Error(t, err)
}

func TestFrequencyDomainClampsSilence(t *testing.T) {
	a, err := dsp.NewAnalyzer(dsp.WindowHann, 0)
	require.NoError(t, err)
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt16, SampleRateHz: 1e6}, make([]float64, 16))
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)
	spectrum, err := a.Spectrum(p)
	require.NoError(t, err)
	require.True(t, math.IsInf(spectrum.DBFS[0], -1))

	pl, err := FrequencyDomain(spectrum, "silence")
	require.NoError(t, err)
	require.Equal(t, "silence", pl.Title.Text)

	_, err = FrequencyDomain(dsp.Spectrum{}, "empty")
	require.Error(t, err)
}
