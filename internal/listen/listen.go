package listen

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/netutil"
)

// Config controls how Listen sets up a listener.
type Config struct {
	// KeepAlive is applied to every accepted *net.TCPConn.
	KeepAlive net.KeepAliveConfig

	// ReusePort sets SO_REUSEPORT so several relay processes can share
	// an address.
	ReusePort bool

	// MaxConns caps concurrently open accepted connections. Zero means no
	// limit.
	MaxConns int
}

// Listen listens on network/addr according to cfg.
func Listen(ctx context.Context, network, addr string, cfg Config) (net.Listener, error) {
	lc := net.ListenConfig{}
	if cfg.ReusePort {
		if !ReusePortSupported {
			return nil, fmt.Errorf("listen %s %s: SO_REUSEPORT not supported on this platform", network, addr)
		}
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	ln = &KeepAliveListener{Listener: ln, KeepAliveConfig: cfg.KeepAlive}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	return ln, nil
}

// KeepAliveListener applies KeepAliveConfig to accepted TCP connections.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}
	return conn, nil
}
