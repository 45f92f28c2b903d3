// Package source delivers raw Basis packets from the network, a capture file
// or a synthetic generator. Sources do not decode; they hand buffers to the
// caller, which passes them to basis.Decode.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rjboer/GoBasis/basis"
	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/logging"
)

// pollInterval bounds how long a blocking read waits before re-checking the
// context.
const pollInterval = 100 * time.Millisecond

// recvBufferSize leaves room to observe oversized datagrams instead of having
// the kernel silently truncate them to a valid-looking length.
const recvBufferSize = 2 * basis.PacketSize

// ErrTimeout is returned by Next when no packet arrived within the configured
// read timeout.
var ErrTimeout = errors.New("source: receive timeout")

// Source yields raw packet buffers. The slice returned by Next is only valid
// until the following call. Next returns io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Open builds the source selected by cfg.Kind.
func Open(ctx context.Context, cfg config.SourceConfig, logger logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.F("subsystem", "source"), logging.F("kind", cfg.Kind))

	switch cfg.Kind {
	case config.SourceUDP:
		return ListenUDP(cfg, logger)
	case config.SourceTCP:
		return DialTCP(ctx, cfg, logger)
	case config.SourcePCAP:
		return OpenPCAP(cfg.PCAPFile, cfg.Port, logger)
	case config.SourceMock:
		return NewMock(cfg.Mock)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// deadlineConn is the subset of net.Conn used by readPolling.
type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

// readPolling runs read with short deadlines so a blocked receive notices ctx
// cancellation. A zero timeout waits forever.
func readPolling(ctx context.Context, c deadlineConn, timeout time.Duration, read func() (int, error)) (int, error) {
	var expires time.Time
	if timeout > 0 {
		expires = time.Now().Add(timeout)
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		deadline := time.Now().Add(pollInterval)
		if !expires.IsZero() && deadline.After(expires) {
			deadline = expires
		}
		if err := c.SetReadDeadline(deadline); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := read()
		if n > 0 {
			if isTimeout(err) {
				err = nil
			}
			return n, err
		}
		if err == nil {
			return 0, nil
		}
		if !isTimeout(err) {
			return 0, err
		}
		if !expires.IsZero() && !time.Now().Before(expires) {
			return 0, ErrTimeout
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
