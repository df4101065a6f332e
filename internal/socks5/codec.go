package socks5

import (
	"errors"
	"net"
	"strconv"
)

// Version is the SOCKS protocol version byte.
const Version = 0x05

// userPassVersion is the RFC 1929 sub-negotiation version.
const userPassVersion = 0x01

// Authentication methods.
const (
	MethodNone             = 0x00
	MethodUsernamePassword = 0x02
	MethodNoAcceptable     = 0xff
)

// Commands and address types.
const (
	CmdConnect = 0x01
	ATYPIPv4   = 0x01
	ATYPDomain = 0x03
	ATYPIPv6   = 0x04
)

// Reply codes.
const (
	ReplySuccess          = 0x00
	ReplyGeneralFailure   = 0x01
	ReplyConnNotAllowed   = 0x02
	ReplyCmdNotSupported  = 0x07
	ReplyAddrNotSupported = 0x08
)

const (
	minGreetingSize          = 2
	minUserPassRequestPrefix = 2
	requestHeaderSize        = 4
	requestPortSize          = 2
)

var (
	// ErrIncomplete means the buffer holds a valid prefix of a message and
	// more input is required.
	ErrIncomplete = errors.New("socks5: incomplete message")

	// ErrVersion means the message carried an unexpected version byte.
	ErrVersion = errors.New("socks5: unsupported version")

	// ErrAddrType means the request used an address type this codec cannot
	// frame, so the request length is unknown.
	ErrAddrType = errors.New("socks5: unknown address type")

	// ErrEmptyDomain means a DOMAINNAME address had zero length.
	ErrEmptyDomain = errors.New("socks5: empty domain name")
)

// Greeting is the client's method negotiation request.
type Greeting struct {
	Methods []byte
}

// ParseGreeting decodes [VER][NMETHODS][METHODS...] from the front of b.
func ParseGreeting(b []byte) (Greeting, int, error) {
	if len(b) < 1 {
		return Greeting{}, 0, ErrIncomplete
	}
	if b[0] != Version {
		return Greeting{}, 0, ErrVersion
	}
	if len(b) < minGreetingSize {
		return Greeting{}, 0, ErrIncomplete
	}

	n := minGreetingSize + int(b[1])
	if len(b) < n {
		return Greeting{}, 0, ErrIncomplete
	}

	methods := make([]byte, int(b[1]))
	copy(methods, b[minGreetingSize:n])
	return Greeting{Methods: methods}, n, nil
}

// SelectMethod returns the first method in supported, in the server's
// preference order, that the client also offered.
func SelectMethod(supported, offered []byte) (byte, bool) {
	for _, s := range supported {
		if containsMethod(offered, s) {
			return s, true
		}
	}
	return MethodNoAcceptable, false
}

// UserPass is an RFC 1929 username/password request.
type UserPass struct {
	Username string
	Password string
}

// ParseUserPass decodes [VER][ULEN][UNAME][PLEN][PASSWD] from the front of b.
func ParseUserPass(b []byte) (UserPass, int, error) {
	if len(b) < 1 {
		return UserPass{}, 0, ErrIncomplete
	}
	if b[0] != userPassVersion {
		return UserPass{}, 0, ErrVersion
	}
	if len(b) < minUserPassRequestPrefix {
		return UserPass{}, 0, ErrIncomplete
	}

	ulen := int(b[1])
	plenAt := minUserPassRequestPrefix + ulen
	if len(b) < plenAt+1 {
		return UserPass{}, 0, ErrIncomplete
	}
	plen := int(b[plenAt])
	n := plenAt + 1 + plen
	if len(b) < n {
		return UserPass{}, 0, ErrIncomplete
	}

	return UserPass{
		Username: string(b[minUserPassRequestPrefix:plenAt]),
		Password: string(b[plenAt+1 : n]),
	}, n, nil
}

// Request is a decoded [VER][CMD][RSV][ATYP][ADDR][PORT] request. Addr holds
// the raw address bytes without the DOMAINNAME length prefix.
type Request struct {
	Cmd  byte
	Atyp byte
	Addr []byte
	Port uint16
}

// Host returns the request address in text form.
func (r Request) Host() string {
	switch r.Atyp {
	case ATYPIPv4, ATYPIPv6:
		return net.IP(r.Addr).String()
	default:
		return string(r.Addr)
	}
}

// Address returns host:port.
func (r Request) Address() string {
	return net.JoinHostPort(r.Host(), strconv.Itoa(int(r.Port)))
}

// ParseRequest decodes a request from the front of b. On ErrAddrType the
// returned Request carries Cmd and Atyp so the caller can still reply.
func ParseRequest(b []byte) (Request, int, error) {
	if len(b) < 1 {
		return Request{}, 0, ErrIncomplete
	}
	if b[0] != Version {
		return Request{}, 0, ErrVersion
	}
	if len(b) < requestHeaderSize {
		return Request{}, 0, ErrIncomplete
	}

	req := Request{Cmd: b[1], Atyp: b[3]}
	off := requestHeaderSize

	var addrLen int
	switch req.Atyp {
	case ATYPIPv4:
		addrLen = net.IPv4len
	case ATYPIPv6:
		addrLen = net.IPv6len
	case ATYPDomain:
		if len(b) < off+1 {
			return Request{}, 0, ErrIncomplete
		}
		addrLen = int(b[off])
		if addrLen == 0 {
			return req, 0, ErrEmptyDomain
		}
		off++
	default:
		return req, 0, ErrAddrType
	}

	n := off + addrLen + requestPortSize
	if len(b) < n {
		return Request{}, 0, ErrIncomplete
	}

	req.Addr = make([]byte, addrLen)
	copy(req.Addr, b[off:off+addrLen])
	req.Port = uint16(b[n-2])<<8 | uint16(b[n-1])
	return req, n, nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
