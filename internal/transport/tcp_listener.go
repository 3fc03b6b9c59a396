package transport

import (
	"context"
	"fmt"
	"net"
)

// tcpListener accepts plain TCP connections on an IPv4 address.
type tcpListener struct {
	ln   net.Listener
	port int
}

// Listen binds a tcp4 listener on addr (e.g. ":8080", "127.0.0.1:0").
func Listen(addr string) (Listener, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &tcpListener{
		ln:   ln,
		port: ln.Addr().(*net.TCPAddr).Port,
	}, nil
}

// Port returns the port the listener is bound to.
func (l *tcpListener) Port() int {
	return l.port
}

// Accept waits for the next viewer connection or ctx cancellation.
func (l *tcpListener) Accept(ctx context.Context) (Transport, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("accept TCP connection: %w", res.err)
		}
		return NewTCP(res.conn), nil
	case <-ctx.Done():
		// The goroutine is still blocked in Accept until the caller closes
		// the listener. Anything it picks up in the meantime is discarded.
		go func() {
			res := <-ch
			if res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the listener. Established transports are unaffected.
func (l *tcpListener) Close() error {
	return l.ln.Close()
}
