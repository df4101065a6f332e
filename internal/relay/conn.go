package relay

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/metrics"
	"github.com/die-net/streamhost/internal/socks5"
)

// ConnState is where a client connection is in its lifecycle.
type ConnState int32

const (
	StateGreeting ConnState = iota
	StateAuthNegotiating
	StateAwaitingRequest
	StatePending
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateAuthNegotiating:
		return "auth"
	case StateAwaitingRequest:
		return "request"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Largest handshake message is a request with a 255 byte domain name.
const maxHandshakeBuffer = 1024

var (
	errNoAcceptableMethod = errors.New("no acceptable auth method")
	errAuthRejected       = errors.New("credentials rejected")
	errCmdNotSupported    = errors.New("command not supported")
	errAddrNotSupported   = errors.New("address type not supported")
	errHandshakeTooLarge  = errors.New("handshake too large")
	errPeerGone           = errors.New("peer gone")
)

// Conn is one client socket. Until it registers it is driven only by its own
// goroutine; afterwards the Coordinator moves it to Active or closes it.
type Conn struct {
	id     string
	nc     net.Conn
	srv    *Server
	logger *slog.Logger

	state atomic.Int32

	// key is set by a successful Register, under the Coordinator lock.
	key SessionKey

	// peer is set by Activate and cleared when either side closes.
	peer atomic.Pointer[Conn]

	// in buffers handshake input; whatever follows the request is relayed
	// first once the session is active.
	in []byte

	activated chan struct{} // closed by Activate
	ready     chan struct{} // closed after the success reply is written
	done      chan struct{} // closed by close

	closeOnce sync.Once
}

func newConn(nc net.Conn, srv *Server) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:        id,
		nc:        nc,
		srv:       srv,
		logger:    srv.logger.With(logging.ConnID(id), slog.String("remote", nc.RemoteAddr().String())),
		activated: make(chan struct{}),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// State returns the connection's current state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

func (c *Conn) serve() {
	defer c.close()
	defer c.srv.coord.Deregister(c)

	req, err := c.handshake()
	if err != nil {
		metrics.HandshakeErrors.WithLabelValues(handshakeReason(err)).Inc()
		c.logger.Debug("handshake failed", logging.Error(err))
		return
	}

	if err := c.connect(req); err != nil && !isClosedErr(err) {
		c.logger.Debug("connection ended", logging.SessionKey(string(c.key)), logging.Error(err))
	}
}

func (c *Conn) handshake() (socks5.Request, error) {
	if t := c.srv.cfg.NegotiationTimeout; t > 0 {
		_ = c.nc.SetDeadline(time.Now().Add(t))
	}

	for {
		req, done, err := c.step()
		switch {
		case errors.Is(err, socks5.ErrIncomplete):
			if err := c.fill(); err != nil {
				return socks5.Request{}, err
			}
		case err != nil:
			return socks5.Request{}, err
		case done:
			_ = c.nc.SetDeadline(time.Time{})
			return req, nil
		}
	}
}

// step parses as much buffered input as the current state allows.
func (c *Conn) step() (socks5.Request, bool, error) {
	switch c.State() {
	case StateGreeting:
		g, n, err := socks5.ParseGreeting(c.in)
		if errors.Is(err, socks5.ErrIncomplete) {
			return socks5.Request{}, false, err
		}
		if err != nil {
			_ = socks5.WriteMethodReply(c.nc, socks5.MethodNoAcceptable)
			return socks5.Request{}, false, err
		}
		c.in = c.in[n:]

		method, ok := socks5.SelectMethod(c.srv.cfg.AuthMethods, g.Methods)
		if err := socks5.WriteMethodReply(c.nc, method); err != nil {
			return socks5.Request{}, false, err
		}
		if !ok {
			return socks5.Request{}, false, errNoAcceptableMethod
		}
		if method == socks5.MethodUsernamePassword {
			c.setState(StateAuthNegotiating)
		} else {
			c.setState(StateAwaitingRequest)
		}
		return socks5.Request{}, false, nil

	case StateAuthNegotiating:
		up, n, err := socks5.ParseUserPass(c.in)
		if errors.Is(err, socks5.ErrIncomplete) {
			return socks5.Request{}, false, err
		}
		if err != nil {
			_ = socks5.WriteUserPassReply(c.nc, false)
			return socks5.Request{}, false, err
		}
		c.in = c.in[n:]

		ok := c.srv.cfg.Authenticator.Authenticate(up.Username, up.Password)
		if err := socks5.WriteUserPassReply(c.nc, ok); err != nil {
			return socks5.Request{}, false, err
		}
		if !ok {
			return socks5.Request{}, false, errAuthRejected
		}
		c.logger.Debug("authenticated", slog.String("user", up.Username))
		c.setState(StateAwaitingRequest)
		return socks5.Request{}, false, nil

	case StateAwaitingRequest:
		req, n, err := socks5.ParseRequest(c.in)
		if errors.Is(err, socks5.ErrIncomplete) {
			return socks5.Request{}, false, err
		}
		if err != nil {
			rep := byte(socks5.ReplyGeneralFailure)
			if errors.Is(err, socks5.ErrAddrType) {
				rep = socks5.ReplyAddrNotSupported
			}
			_ = socks5.WriteReply(c.nc, rep, req)
			return socks5.Request{}, false, err
		}
		c.in = c.in[n:]
		return req, true, nil

	default:
		return socks5.Request{}, false, errors.New("handshake in state " + c.State().String())
	}
}

// fill reads more handshake input.
func (c *Conn) fill() error {
	if len(c.in) >= maxHandshakeBuffer {
		return errHandshakeTooLarge
	}

	var buf [512]byte
	n, err := c.nc.Read(buf[:])
	c.in = append(c.in, buf[:n]...)
	if n > 0 {
		return nil
	}
	return err
}

// connect handles a parsed CONNECT request: answers probes, registers the
// session key and then relays until either side closes.
func (c *Conn) connect(req socks5.Request) error {
	if req.Cmd != socks5.CmdConnect {
		_ = socks5.WriteReply(c.nc, socks5.ReplyCmdNotSupported, req)
		metrics.HandshakeErrors.WithLabelValues("command").Inc()
		c.logger.Debug("rejected request", slog.Int("cmd", int(req.Cmd)), slog.String("addr", req.Address()))
		return errCmdNotSupported
	}
	if req.Atyp != socks5.ATYPDomain {
		_ = socks5.WriteReply(c.nc, socks5.ReplyAddrNotSupported, req)
		metrics.HandshakeErrors.WithLabelValues("address").Inc()
		c.logger.Debug("rejected request", slog.Int("atyp", int(req.Atyp)), slog.String("addr", req.Address()))
		return errAddrNotSupported
	}

	host := req.Host()
	if host == ProbeAddress {
		metrics.Probes.Inc()
		c.logger.Debug("probe answered")
		return socks5.WriteReply(c.nc, socks5.ReplySuccess, req)
	}

	if err := c.srv.coord.Register(SessionKey(host), c); err != nil {
		rep := byte(socks5.ReplyGeneralFailure)
		if errors.Is(err, ErrAlreadyActive) {
			rep = socks5.ReplyConnNotAllowed
		}
		_ = socks5.WriteReply(c.nc, rep, req)
		return err
	}

	if err := socks5.WriteReply(c.nc, socks5.ReplySuccess, req); err != nil {
		return err
	}
	close(c.ready)

	return c.forward()
}

// close shuts the socket and wakes anything waiting on this connection.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.peer.Store(nil)
		close(c.done)
		_ = c.nc.Close()
	})
}

func handshakeReason(err error) string {
	switch {
	case errors.Is(err, errNoAcceptableMethod):
		return "method"
	case errors.Is(err, errAuthRejected):
		return "auth"
	case errors.Is(err, socks5.ErrVersion):
		return "version"
	case errors.Is(err, socks5.ErrAddrType), errors.Is(err, socks5.ErrEmptyDomain):
		return "address"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, errHandshakeTooLarge):
		return "too_large"
	default:
		return "io"
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, errPeerGone)
}
