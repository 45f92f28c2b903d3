package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/rjboer/GoBasis/internal/logging"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// PCAPSource replays UDP payloads from a pcap or pcapng capture.
type PCAPSource struct {
	f       *os.File
	packets *gopacket.PacketSource
	port    int
	count   int
	logger  logging.Logger
}

// OpenPCAP opens a capture file. When port is non-zero only UDP datagrams
// sent to that port are replayed.
func OpenPCAP(path string, port int, logger logging.Logger) (*PCAPSource, error) {
	if logger == nil {
		logger = logging.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	r := bufio.NewReader(f)
	magic, err := r.Peek(4)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("read capture header %s: %w", path, err)
	}

	var ps *gopacket.PacketSource
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("read pcapng %s: %w", path, err)
		}
		ps = gopacket.NewPacketSource(ng, ng.LinkType())
	} else {
		pr, err := pcapgo.NewReader(r)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("read pcap %s: %w", path, err)
		}
		ps = gopacket.NewPacketSource(pr, pr.LinkType())
	}
	ps.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	logger.Info("replaying capture", logging.F("file", path), logging.F("port", port))
	return &PCAPSource{f: f, packets: ps, port: port, logger: logger}, nil
}

// Next returns the payload of the next matching UDP datagram, or io.EOF at
// the end of the capture.
func (s *PCAPSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := s.packets.NextPacket()
		if err == io.EOF {
			s.logger.Info("capture replay complete", logging.F("datagrams", s.count))
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read capture: %w", err)
		}
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if s.port != 0 && int(udp.DstPort) != s.port {
			continue
		}
		s.count++
		return udp.Payload, nil
	}
}

// Close closes the capture file.
func (s *PCAPSource) Close() error {
	return s.f.Close()
}
