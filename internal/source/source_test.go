package source

import (
	"context"
	"errors"
	"io"
	"math"
	"math/cmplx"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/logging"
)

var quiet = logging.New(logging.Error, logging.Text, io.Discard)

func testPacket(t *testing.T, seq uint16) []byte {
	t.Helper()
	raw, err := basis.Encode(basis.Header{Format: basis.ScalarInt16, SampleRateHz: 1e6, Sequence: seq}, []float64{1, 2, 3})
	require.NoError(t, err)
	return raw
}

func loopbackUDP(t *testing.T, timeout time.Duration) *UDPSource {
	t.Helper()
	cfg := config.Default().Source
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeout = timeout
	s, err := ListenUDP(cfg, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUDPSourceReceivesDatagrams(t *testing.T) {
	s := loopbackUDP(t, 2*time.Second)

	out, err := net.Dial("udp4", s.LocalAddr().String())
	require.NoError(t, err)
	defer out.Close()

	_, err = out.Write(testPacket(t, 9))
	require.NoError(t, err)
	raw, err := s.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, basis.PacketSize)
	p, err := basis.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(9), p.Sequence)
	require.Equal(t, []float64{1, 2, 3}, p.Real)

	// oversized datagrams are passed through whole so the decoder rejects them
	_, err = out.Write(make([]byte, basis.PacketSize+10))
	require.NoError(t, err)
	raw, err = s.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, basis.PacketSize+10)
	_, err = basis.Decode(raw)
	require.ErrorIs(t, err, basis.ErrWrongLength)
}

func TestUDPSourceTimeout(t *testing.T) {
	s := loopbackUDP(t, 150*time.Millisecond)
	start := time.Now()
	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestUDPSourceHonoursContext(t *testing.T) {
	s := loopbackUDP(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func tcpServer(t *testing.T, serve func(net.Conn)) config.SourceConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		serve(c)
	}()
	addr := ln.Addr().(*net.TCPAddr)
	cfg := config.Default().Source
	cfg.Kind = config.SourceTCP
	cfg.Address = "127.0.0.1"
	cfg.Port = addr.Port
	cfg.ReadTimeout = 2 * time.Second
	return cfg
}

func TestTCPSourceReadsWholePackets(t *testing.T) {
	cfg := tcpServer(t, func(c net.Conn) {
		for seq := uint16(0); seq < 2; seq++ {
			raw := testPacket(t, seq)
			// dribble the packet out to exercise reassembly of short reads
			for off := 0; off < len(raw); off += 100 {
				end := min(off+100, len(raw))
				c.Write(raw[off:end])
				time.Sleep(time.Millisecond)
			}
		}
	})

	s, err := DialTCP(context.Background(), cfg, quiet)
	require.NoError(t, err)
	defer s.Close()

	for want := uint16(0); want < 2; want++ {
		raw, err := s.Next(context.Background())
		require.NoError(t, err)
		p, err := basis.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, want, p.Sequence)
	}
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestTCPSourceTruncatedStream(t *testing.T) {
	cfg := tcpServer(t, func(c net.Conn) {
		c.Write(testPacket(t, 1)[:500])
	})
	s, err := DialTCP(context.Background(), cfg, quiet)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTCPDialRetries(t *testing.T) {
	prev := dialer
	defer func() { dialer = prev }()

	attempts := 0
	dialer = func(_ context.Context, _ string, _ time.Duration) (net.Conn, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		client, server := net.Pipe()
		go func() {
			server.Write(testPacket(t, 5))
			server.Close()
		}()
		return client, nil
	}

	cfg := config.Default().Source
	cfg.Kind = config.SourceTCP
	cfg.MaxRetries = 3
	s, err := DialTCP(context.Background(), cfg, quiet)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 3, attempts)

	raw, err := s.Next(context.Background())
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(5), p.Sequence)
}

func TestTCPDialGivesUp(t *testing.T) {
	prev := dialer
	defer func() { dialer = prev }()

	attempts := 0
	dialer = func(context.Context, string, time.Duration) (net.Conn, error) {
		attempts++
		return nil, errors.New("no route to host")
	}
	cfg := config.Default().Source
	cfg.Kind = config.SourceTCP
	cfg.MaxRetries = 0
	// zero retries must mean a single dial, not the backoff package's unlimited
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := DialTCP(ctx, cfg, quiet)
	require.ErrorContains(t, err, "no route to host")
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, attempts)
}

func TestTCPDialNegativeRetriesUntilCancelled(t *testing.T) {
	prev := dialer
	defer func() { dialer = prev }()

	attempts := 0
	dialer = func(context.Context, string, time.Duration) (net.Conn, error) {
		attempts++
		return nil, errors.New("connection refused")
	}
	cfg := config.Default().Source
	cfg.Kind = config.SourceTCP
	cfg.MaxRetries = -1
	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	_, err := DialTCP(ctx, cfg, quiet)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Greater(t, attempts, 1)
}

func writeCapture(t *testing.T, datagrams map[uint16][][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "basis.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Unix(1700000000, 0)
	for _, port := range []uint16{9083, 5000} {
		for _, payload := range datagrams[port] {
			eth := &layers.Ethernet{
				SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
				DstMAC:       net.HardwareAddr{0x01, 0x00, 0x5e, 0x0c, 0x22, 0x38},
				EthernetType: layers.EthernetTypeIPv4,
			}
			ip := &layers.IPv4{
				Version:  4,
				TTL:      16,
				Protocol: layers.IPProtocolUDP,
				SrcIP:    net.IPv4(192, 168, 0, 25),
				DstIP:    net.IPv4(224, 12, 34, 56),
			}
			udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(port)}
			require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

			buf := gopacket.NewSerializeBuffer()
			opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
			require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
			data := buf.Bytes()
			ts = ts.Add(time.Millisecond)
			require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
				Timestamp:     ts,
				CaptureLength: len(data),
				Length:        len(data),
			}, data))
		}
	}
	return path
}

func TestPCAPSourceReplaysMatchingPort(t *testing.T) {
	path := writeCapture(t, map[uint16][][]byte{
		9083: {testPacket(t, 1), testPacket(t, 2)},
		5000: {[]byte("not a basis packet")},
	})

	s, err := OpenPCAP(path, 9083, quiet)
	require.NoError(t, err)
	defer s.Close()

	for want := uint16(1); want <= 2; want++ {
		raw, err := s.Next(context.Background())
		require.NoError(t, err)
		p, err := basis.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, want, p.Sequence)
	}
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestPCAPSourceAllPorts(t *testing.T) {
	path := writeCapture(t, map[uint16][][]byte{
		9083: {testPacket(t, 1)},
		5000: {[]byte("short")},
	})
	s, err := OpenPCAP(path, 0, quiet)
	require.NoError(t, err)
	defer s.Close()

	n := 0
	for {
		_, err := s.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 2, n)
}

func TestPCAPSourceMissingFile(t *testing.T) {
	_, err := OpenPCAP(filepath.Join(t.TempDir(), "nope.pcap"), 0, quiet)
	require.Error(t, err)
}

func TestMockSourceComplexTone(t *testing.T) {
	m, err := NewMock(config.MockConfig{
		Format:       "ComplexInt16",
		SampleRateHz: 2e6,
		ToneOffsetHz: 200e3,
		Amplitude:    1000,
	})
	require.NoError(t, err)

	for want := uint16(0); want < 3; want++ {
		raw, err := m.Next(context.Background())
		require.NoError(t, err)
		p, err := basis.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, want, p.Sequence)
		require.Len(t, p.IQ, basis.MaxSamples(basis.ComplexInt16))
		for _, v := range p.IQ {
			require.InDelta(t, 1000, cmplx.Abs(v), 20)
		}
	}
}

func TestMockSourceUnsignedIsBiased(t *testing.T) {
	m, err := NewMock(config.MockConfig{Format: "ScalarUint8", SampleRateHz: 1e6, ToneOffsetHz: 10e3, Amplitude: 100})
	require.NoError(t, err)
	raw, err := m.Next(context.Background())
	require.NoError(t, err)
	p, err := basis.Decode(raw)
	require.NoError(t, err)

	sum := 0.0
	for _, v := range p.Real {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 255.0)
		sum += v
	}
	require.InDelta(t, 100, sum/float64(len(p.Real)), 10)
	require.False(t, math.IsNaN(sum))
}

func TestMockSourcePacingHonoursContext(t *testing.T) {
	m, err := NewMock(config.MockConfig{Format: "ScalarFloat32", SampleRateHz: 1e6, Interval: time.Hour})
	require.NoError(t, err)
	_, err = m.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	cfg := config.Default().Source
	cfg.Kind = "serial"
	_, err := Open(context.Background(), cfg, quiet)
	require.Error(t, err)

	cfg.Kind = config.SourceMock
	s, err := Open(context.Background(), cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewMockRejectsBadFormat(t *testing.T) {
	_, err := NewMock(config.MockConfig{Format: "Int12"})
	require.ErrorIs(t, err, basis.ErrInvalidFormat)
}
