package relay

import (
	"errors"
	"log/slog"
	"time"

	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/socks5"
)

// ProbeAddress is the CONNECT address clients use to check that a relay is
// reachable. It succeeds without creating a session.
const ProbeAddress = "http://jabber.org/protocol/bytestreams"

const (
	DefaultNegotiationTimeout = 10 * time.Second
	DefaultPendingTimeout     = 5 * time.Minute
	DefaultBufferSize         = 32 * 1024
)

// Authenticator decides username/password sub-negotiations.
type Authenticator interface {
	Authenticate(username, password string) bool
}

type Config struct {
	// AuthMethods lists the accepted SOCKS5 methods in preference order.
	// Empty means anonymous only.
	AuthMethods []byte

	// Authenticator is required when AuthMethods includes username/password.
	Authenticator Authenticator

	// NegotiationTimeout bounds the handshake up to the CONNECT request.
	// Zero disables it.
	NegotiationTimeout time.Duration

	// BufferSize is the per-direction copy buffer, and so the most a
	// connection reads ahead of a slow peer.
	BufferSize int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if len(c.AuthMethods) == 0 {
		c.AuthMethods = []byte{socks5.MethodNone}
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c
}

func (c Config) validate() error {
	for _, m := range c.AuthMethods {
		switch m {
		case socks5.MethodNone:
		case socks5.MethodUsernamePassword:
			if c.Authenticator == nil {
				return errors.New("username/password method requires an authenticator")
			}
		default:
			return errors.New("unsupported auth method")
		}
	}
	return nil
}
