package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/oshokin/cul-updater/internal/logger"
)

const (
	// DefaultPort is the HTTPS port probed before calling the release API.
	DefaultPort = 443
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 5 * time.Second
)

// Prober reports whether ip accepts TCP connections on port.
type Prober interface {
	Reachable(ctx context.Context, ip string, port int, timeout time.Duration) bool
}

// TCP probes with a plain TCP handshake.
type TCP struct{}

// Check dials ip:port and closes the connection right away.
func Check(ctx context.Context, ip string, port int, timeout time.Duration) error {
	if port <= 0 {
		port = DefaultPort
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	//nolint:exhaustruct // Only the timeout matters for a probe.
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return err
	}

	return conn.Close()
}

// Reachable is Check reduced to a boolean; failures are logged, never returned.
func Reachable(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	if err := Check(ctx, ip, port, timeout); err != nil {
		logger.WarnKV(ctx, "Connectivity probe failed", "ip", ip, "port", port, "error", err)
		return false
	}

	return true
}

// Reachable implements Prober.
func (TCP) Reachable(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	return Reachable(ctx, ip, port, timeout)
}
