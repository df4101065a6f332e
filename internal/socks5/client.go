package socks5

import (
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// ErrAuthFailed is returned by the client when the relay rejects its
// credentials.
var ErrAuthFailed = errors.New("socks5: auth failed")

// ReplyError is returned by ClientConnect when the relay answers a request
// with a non-success reply code.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5: connect failed with reply %#02x", e.Code)
}

// ClientDial negotiates with the relay and asks it to connect to the session
// identified by key.
func ClientDial(conn net.Conn, auth Auth, key string) error {
	if err := ClientNegotiate(conn, auth); err != nil {
		return err
	}
	if err := ClientConnect(conn, key); err != nil {
		return err
	}
	return nil
}

// ClientNegotiate performs method selection and, when the relay picks it,
// username/password authentication.
func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{MethodNone}
	if auth.Username != "" {
		methods = append(methods, MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case MethodNone:
		return nil
	case MethodUsernamePassword:
		if auth.Username == "" {
			return fmt.Errorf("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

// ClientConnect sends a CONNECT request for the DOMAINNAME address key and
// reads the reply.
func ClientConnect(conn net.Conn, key string) error {
	if _, err := txsocks5.NewRequest(CmdConnect, ATYPDomain, []byte(key), []byte{0x00, 0x00}).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != ReplySuccess {
		return &ReplyError{Code: rep.Rep}
	}
	return nil
}
