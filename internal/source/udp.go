package source

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/logging"
)

// UDPSource receives one packet per datagram, optionally from a multicast
// group.
type UDPSource struct {
	conn    *net.UDPConn
	group   net.IP
	intf    *net.Interface
	timeout time.Duration
	buf     []byte
	logger  logging.Logger
}

// ListenUDP binds cfg.Port. When cfg.Address is a multicast group the socket
// is bound to the wildcard address and joins the group on cfg.Interface (or
// the system default); otherwise it binds cfg.Address directly.
func ListenUDP(cfg config.SourceConfig, logger logging.Logger) (*UDPSource, error) {
	if logger == nil {
		logger = logging.Default()
	}
	ip := net.ParseIP(cfg.Address)
	multicast := ip != nil && ip.IsMulticast()

	bind := cfg.Endpoint()
	if multicast {
		bind = net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port))
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", bind, err)
	}
	conn := pc.(*net.UDPConn)

	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			logger.Warn("failed to set UDP receive buffer", logging.F("bytes", cfg.ReadBuffer), logging.Err(err))
		}
	}

	s := &UDPSource{
		conn:    conn,
		timeout: cfg.ReadTimeout,
		buf:     make([]byte, recvBufferSize),
		logger:  logger,
	}

	if multicast {
		var intf *net.Interface
		if cfg.Interface != "" {
			intf, err = net.InterfaceByName(cfg.Interface)
			if err != nil {
				conn.Close() //nolint:errcheck
				return nil, fmt.Errorf("multicast interface %q: %w", cfg.Interface, err)
			}
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(intf, &net.UDPAddr{IP: ip}); err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("join multicast group %s: %w", ip, err)
		}
		s.group, s.intf = ip, intf
		logger.Info("joined multicast group", logging.F("group", ip.String()), logging.F("port", cfg.Port))
	} else {
		logger.Info("listening for UDP packets", logging.F("addr", conn.LocalAddr().String()))
	}
	return s, nil
}

// LocalAddr is the bound socket address.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Next waits for the next datagram. Datagrams of any size are returned so
// that the decoder can report their length.
func (s *UDPSource) Next(ctx context.Context) ([]byte, error) {
	n, err := readPolling(ctx, s.conn, s.timeout, func() (int, error) {
		n, _, err := s.conn.ReadFromUDP(s.buf)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	return s.buf[:n], nil
}

// Close leaves the group and closes the socket.
func (s *UDPSource) Close() error {
	if s.group != nil {
		if err := ipv4.NewPacketConn(s.conn).LeaveGroup(s.intf, &net.UDPAddr{IP: s.group}); err != nil {
			s.logger.Debug("leave multicast group", logging.Err(err))
		}
	}
	return s.conn.Close()
}
