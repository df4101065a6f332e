package socks5

import (
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth configures optional username/password authentication for the client
// side of the negotiation.
type Auth struct {
	Username string
	Password string
}

// WriteMethodReply writes [VER][METHOD]. MethodNoAcceptable tells the client
// none of its methods were acceptable.
func WriteMethodReply(w io.Writer, method byte) error {
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(w); err != nil {
		return fmt.Errorf("method reply: %w", err)
	}
	return nil
}

// WriteUserPassReply writes the RFC 1929 status reply.
func WriteUserPassReply(w io.Writer, ok bool) error {
	status := txsocks5.UserPassStatusFailure
	if ok {
		status = txsocks5.UserPassStatusSuccess
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(status).WriteTo(w); err != nil {
		return fmt.Errorf("userpass reply: %w", err)
	}
	return nil
}

// WriteReply writes [VER][REP][RSV][ATYP][ADDR][PORT], mirroring the address
// of req. Requests whose address could not be framed get an all-zero IPv4
// address.
func WriteReply(w io.Writer, rep byte, req Request) error {
	if _, err := newMirrorReply(rep, req).WriteTo(w); err != nil {
		return fmt.Errorf("reply %#02x: %w", rep, err)
	}
	return nil
}

func newMirrorReply(rep byte, req Request) *txsocks5.Reply {
	port := []byte{byte(req.Port >> 8), byte(req.Port)}

	switch req.Atyp {
	case ATYPDomain:
		if len(req.Addr) > 0 {
			return txsocks5.NewReply(rep, req.Atyp, req.Addr, port)
		}
	case ATYPIPv4:
		if len(req.Addr) == net.IPv4len {
			return txsocks5.NewReply(rep, req.Atyp, req.Addr, port)
		}
	case ATYPIPv6:
		if len(req.Addr) == net.IPv6len {
			return txsocks5.NewReply(rep, req.Atyp, req.Addr, port)
		}
		return txsocks5.NewReply(rep, ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00})
	}
	return txsocks5.NewReply(rep, ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}
