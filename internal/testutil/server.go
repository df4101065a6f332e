package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/die-net/streamhost/internal/socks5"
)

// Listen opens a loopback TCP listener that is closed when the test ends.
func Listen(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// DialSession connects to the relay at addr and completes the handshake for
// key. The connection is closed when the test ends.
func DialSession(t *testing.T, addr string, auth socks5.Auth, key string) net.Conn {
	t.Helper()

	c, err := DialRelay(addr, auth, key)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// DialRelay is DialSession without the test plumbing. On error the
// connection is already closed.
func DialRelay(addr string, auth socks5.Auth, key string) (net.Conn, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	if err := socks5.ClientDial(c, auth, key); err != nil {
		_ = c.Close()
		return nil, err
	}
	_ = c.SetDeadline(time.Time{})
	return c, nil
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
