package socks5

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestParseGreetingIncremental(t *testing.T) {
	msg := []byte{0x05, 0x02, MethodNone, MethodUsernamePassword}

	for i := 0; i < len(msg); i++ {
		_, n, err := ParseGreeting(msg[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
		require.Zero(t, n)
	}

	g, n, err := ParseGreeting(append(msg, 0xaa))
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, []byte{MethodNone, MethodUsernamePassword}, g.Methods)
}

func TestParseGreetingBadVersion(t *testing.T) {
	_, _, err := ParseGreeting([]byte{0x04, 0x01, 0x00})
	require.ErrorIs(t, err, ErrVersion)
}

func TestSelectMethod(t *testing.T) {
	tests := []struct {
		name      string
		supported []byte
		offered   []byte
		want      byte
		ok        bool
	}{
		{name: "server_preference_wins", supported: []byte{MethodUsernamePassword, MethodNone}, offered: []byte{MethodNone, MethodUsernamePassword}, want: MethodUsernamePassword, ok: true},
		{name: "only_none", supported: []byte{MethodUsernamePassword, MethodNone}, offered: []byte{MethodNone}, want: MethodNone, ok: true},
		{name: "no_intersection", supported: []byte{MethodUsernamePassword}, offered: []byte{MethodNone, 0x01}, want: MethodNoAcceptable},
		{name: "empty_offer", supported: []byte{MethodNone}, offered: nil, want: MethodNoAcceptable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectMethod(tt.supported, tt.offered)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseUserPass(t *testing.T) {
	msg := []byte{0x01, 0x04, 'u', 's', 'e', 'r', 0x06, 's', 'e', 'c', 'r', 'e', 't'}

	for i := 0; i < len(msg); i++ {
		_, _, err := ParseUserPass(msg[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
	}

	up, n, err := ParseUserPass(msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, UserPass{Username: "user", Password: "secret"}, up)

	_, _, err = ParseUserPass([]byte{0x05, 0x00, 0x00})
	require.ErrorIs(t, err, ErrVersion)
}

func TestParseRequest(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef01234567"
	msg := append([]byte{0x05, CmdConnect, 0x00, ATYPDomain, byte(len(key))}, key...)
	msg = append(msg, 0x01, 0xbb)

	for i := 0; i < len(msg); i++ {
		_, _, err := ParseRequest(msg[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
	}

	req, n, err := ParseRequest(msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, byte(CmdConnect), req.Cmd)
	require.Equal(t, byte(ATYPDomain), req.Atyp)
	require.Equal(t, key, req.Host())
	require.Equal(t, uint16(443), req.Port)

	req, n, err = ParseRequest([]byte{0x05, CmdConnect, 0x00, ATYPIPv4, 127, 0, 0, 1, 0x00, 0x50})
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "127.0.0.1:80", req.Address())
}

func TestParseRequestErrors(t *testing.T) {
	req, _, err := ParseRequest([]byte{0x05, 0x02, 0x00, 0x09, 0x00})
	require.ErrorIs(t, err, ErrAddrType)
	require.Equal(t, byte(0x02), req.Cmd)
	require.Equal(t, byte(0x09), req.Atyp)

	_, _, err = ParseRequest([]byte{0x05, CmdConnect, 0x00, ATYPDomain, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrEmptyDomain)

	_, _, err = ParseRequest([]byte{0x04, CmdConnect, 0x00, ATYPDomain})
	require.ErrorIs(t, err, ErrVersion)
}

func TestWriteReplyMirrorsAddress(t *testing.T) {
	tests := []struct {
		name string
		rep  byte
		req  Request
		want []byte
	}{
		{
			name: "domain",
			rep:  ReplySuccess,
			req:  Request{Cmd: CmdConnect, Atyp: ATYPDomain, Addr: []byte("abc"), Port: 0},
			want: []byte{0x05, 0x00, 0x00, ATYPDomain, 0x03, 'a', 'b', 'c', 0x00, 0x00},
		},
		{
			name: "ipv4",
			rep:  ReplyAddrNotSupported,
			req:  Request{Cmd: CmdConnect, Atyp: ATYPIPv4, Addr: []byte{10, 0, 0, 1}, Port: 8080},
			want: []byte{0x05, 0x08, 0x00, ATYPIPv4, 10, 0, 0, 1, 0x1f, 0x90},
		},
		{
			name: "unknown_atyp",
			rep:  ReplyAddrNotSupported,
			req:  Request{Cmd: CmdConnect, Atyp: 0x09},
			want: []byte{0x05, 0x08, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteReply(&buf, tt.rep, tt.req))
			require.Equal(t, tt.want, buf.Bytes())
		})
	}
}

func TestMethodAndUserPassReplies(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMethodReply(&buf, MethodNoAcceptable))
	require.Equal(t, []byte{0x05, 0xff}, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteUserPassReply(&buf, true))
	require.Equal(t, []byte{0x01, 0x00}, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteUserPassReply(&buf, false))
	require.Equal(t, []byte{0x01, 0x01}, buf.Bytes())
}

// serveOne plays the relay side of a single handshake using the decoders.
func serveOne(conn net.Conn, supported []byte, creds Auth, rep byte) (Request, error) {
	var in []byte
	buf := make([]byte, 512)
	fill := func() error {
		n, err := conn.Read(buf)
		in = append(in, buf[:n]...)
		return err
	}

	var g Greeting
	for {
		var n int
		var err error
		g, n, err = ParseGreeting(in)
		if errors.Is(err, ErrIncomplete) {
			if err := fill(); err != nil {
				return Request{}, err
			}
			continue
		}
		if err != nil {
			return Request{}, err
		}
		in = in[n:]
		break
	}

	method, _ := SelectMethod(supported, g.Methods)
	if err := WriteMethodReply(conn, method); err != nil {
		return Request{}, err
	}

	if method == MethodUsernamePassword {
		for {
			up, n, err := ParseUserPass(in)
			if errors.Is(err, ErrIncomplete) {
				if err := fill(); err != nil {
					return Request{}, err
				}
				continue
			}
			if err != nil {
				return Request{}, err
			}
			in = in[n:]
			ok := up.Username == creds.Username && up.Password == creds.Password
			if err := WriteUserPassReply(conn, ok); err != nil {
				return Request{}, err
			}
			if !ok {
				return Request{}, ErrAuthFailed
			}
			break
		}
	}

	for {
		req, n, err := ParseRequest(in)
		if errors.Is(err, ErrIncomplete) {
			if err := fill(); err != nil {
				return Request{}, err
			}
			continue
		}
		if err != nil {
			return Request{}, err
		}
		in = in[n:]
		return req, WriteReply(conn, rep, req)
	}
}

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			supported := []byte{MethodNone}
			if tt.auth.Username != "" {
				supported = []byte{MethodUsernamePassword}
			}

			var got Request
			g := errgroup.Group{}
			g.Go(func() error {
				var err error
				got, err = serveOne(serverConn, supported, tt.auth, ReplySuccess)
				return err
			})

			require.NoError(t, ClientDial(clientConn, tt.auth, "session-key"))
			require.NoError(t, g.Wait())
			require.Equal(t, "session-key", got.Host())
			require.Equal(t, byte(CmdConnect), got.Cmd)
		})
	}
}

func TestClientConnectReplyError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		_, err := serveOne(serverConn, []byte{MethodNone}, Auth{}, ReplyConnNotAllowed)
		return err
	})

	err := ClientDial(clientConn, Auth{}, "taken")
	var rerr *ReplyError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, byte(ReplyConnNotAllowed), rerr.Code)
	require.NoError(t, g.Wait())
}
