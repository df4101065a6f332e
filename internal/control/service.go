package control

import (
	"context"
	"crypto/sha1" //nolint:gosec // Session keys are defined as SHA-1 digests.
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/relay"
)

// Feature is the namespace clients probe for and that capabilities advertise.
const Feature = relay.ProbeAddress

// Error conditions reported to the control channel.
const (
	ConditionItemNotFound = "item-not-found"
	ConditionNotAllowed   = "not-allowed"
	ConditionBadRequest   = "bad-request"
	ConditionInternal     = "internal-server-error"
)

// Error is an activation failure with the condition the control channel
// reports back.
type Error struct {
	Condition string
	Err       error
}

func (e *Error) Error() string {
	return e.Condition + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Endpoint is an externally reachable address of the relay.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses host:port.
func ParseEndpoint(s string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port %q", port)
	}
	return Endpoint{Host: host, Port: p}, nil
}

// Identity describes the relay in a capabilities answer.
type Identity struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

// Capabilities is the answer to a capabilities query.
type Capabilities struct {
	Identity Identity `json:"identity"`
	Features []string `json:"features"`
}

// Activator activates a session by key. *relay.Coordinator implements it.
type Activator interface {
	Activate(key relay.SessionKey) error
}

// Service answers control requests for one relay.
type Service struct {
	name      string
	endpoints []Endpoint
	activator Activator
	logger    *slog.Logger
}

// NewService returns a Service advertising endpoints under name.
func NewService(name string, endpoints []Endpoint, activator Activator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		name:      name,
		endpoints: append([]Endpoint(nil), endpoints...),
		activator: activator,
		logger:    logger.With(logging.Component("control")),
	}
}

// QueryEndpoints returns the addresses clients should connect to.
func (s *Service) QueryEndpoints() []Endpoint {
	return append([]Endpoint(nil), s.endpoints...)
}

// QueryCapabilities returns the relay's identity and features.
func (s *Service) QueryCapabilities() Capabilities {
	return Capabilities{
		Identity: Identity{Category: "proxy", Type: "bytestreams", Name: s.name},
		Features: []string{Feature},
	}
}

// Activate splices the two participants of the session named by sid,
// initiator and target.
func (s *Service) Activate(ctx context.Context, sid, initiator, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sid == "" || initiator == "" || target == "" {
		return &Error{Condition: ConditionBadRequest, Err: errors.New("sid, initiator and target are required")}
	}

	key := SessionKey(sid, initiator, target)
	err := s.activator.Activate(key)

	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNotFound):
		err = &Error{Condition: ConditionItemNotFound, Err: err}
	case errors.Is(err, relay.ErrWrongParticipantCount):
		err = &Error{Condition: ConditionNotAllowed, Err: err}
	default:
		err = &Error{Condition: ConditionInternal, Err: err}
	}

	if err != nil {
		s.logger.Debug("activation failed", slog.String("sid", sid), logging.SessionKey(string(key)), logging.Error(err))
		return err
	}
	s.logger.Debug("activate request", slog.String("sid", sid), logging.SessionKey(string(key)))
	return nil
}

// SessionKey derives the key both clients present as their CONNECT address:
// the lowercase hex SHA-1 of sid, initiator and target concatenated.
func SessionKey(sid, initiator, target string) relay.SessionKey {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(sid))
	h.Write([]byte(initiator))
	h.Write([]byte(target))
	return relay.SessionKey(hex.EncodeToString(h.Sum(nil)))
}
