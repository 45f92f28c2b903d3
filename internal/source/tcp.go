package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/logging"
)

// TCPSource reads consecutive fixed-size packets from a stream.
type TCPSource struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte
	logger  logging.Logger
}

// dialer is swapped in tests.
var dialer = func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}

// DialTCP connects to cfg.Endpoint, retrying with exponential backoff up to
// cfg.MaxRetries times. Zero dials once and a negative count retries until
// ctx is done.
func DialTCP(ctx context.Context, cfg config.SourceConfig, logger logging.Logger) (*TCPSource, error) {
	if logger == nil {
		logger = logging.Default()
	}
	addr := cfg.Endpoint()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	var b backoff.BackOff = policy
	switch {
	case cfg.MaxRetries == 0:
		// WithMaxRetries treats zero as unlimited
		b = &backoff.StopBackOff{}
	case cfg.MaxRetries > 0:
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxRetries))
	default:
		policy.MaxElapsedTime = 0
	}
	b = backoff.WithContext(b, ctx)

	var conn net.Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := dialer(ctx, addr, cfg.DialTimeout)
		if err != nil {
			logger.Warn("connect failed", logging.F("addr", addr), logging.F("attempt", attempt), logging.Err(err))
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	logger.Info("connected", logging.F("addr", addr), logging.F("attempts", attempt))

	return &TCPSource{
		conn:    conn,
		timeout: cfg.ReadTimeout,
		buf:     make([]byte, basis.PacketSize),
		logger:  logger,
	}, nil
}

// Next reads exactly one packet. A stream that ends between packets yields
// io.EOF; one that ends inside a packet yields io.ErrUnexpectedEOF.
func (s *TCPSource) Next(ctx context.Context) ([]byte, error) {
	filled := 0
	for filled < len(s.buf) {
		n, err := readPolling(ctx, s.conn, s.timeout, func() (int, error) {
			return s.conn.Read(s.buf[filled:])
		})
		filled += n
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if filled == 0 {
				return nil, io.EOF
			}
			if filled < len(s.buf) {
				return nil, io.ErrUnexpectedEOF
			}
			break
		}
		return nil, err
	}
	return s.buf, nil
}

// Close closes the connection.
func (s *TCPSource) Close() error {
	s.logger.Debug("closing TCP source")
	return s.conn.Close()
}
