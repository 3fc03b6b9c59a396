package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrConnectionRefused = errors.New("connection refused")
	ErrDialTimeout       = errors.New("connection timed out")
)

// Dial connects to a host at addr ("host:port") over tcp4. Failures are
// classified so callers can report them without string matching; the
// underlying error stays wrapped.
func Dial(ctx context.Context, addr string) (Transport, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	}
	if port == "" {
		return nil, fmt.Errorf("%w %q: missing port", ErrInvalidAddress, addr)
	}
	if host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, classifyDialErr(addr, err)
	}
	return NewTCP(conn), nil
}

func classifyDialErr(addr string, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("dial %s: %w: %w", addr, ErrConnectionRefused, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("dial %s: %w: %w", addr, ErrDialTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("dial %s: %w: %w", addr, ErrDialTimeout, err)
	}
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	if errors.As(err, &dnsErr) || errors.As(err, &addrErr) {
		return fmt.Errorf("dial %s: %w: %w", addr, ErrInvalidAddress, err)
	}
	return fmt.Errorf("dial %s: %w", addr, err)
}
