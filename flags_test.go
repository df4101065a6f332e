package main

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/die-net/streamhost/internal/socks5"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:30:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 30 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "0:1:1", wantErr: true},
		{in: "a:1:1", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTCPKeepAlive(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseTCPKeepAlive("45:0:3")
	require.ErrorContains(t, err, "keepintvl")
	_, err = parseTCPKeepAlive("45:30:x")
	require.ErrorContains(t, err, "keepcnt")
}

func TestParseAuthMethods(t *testing.T) {
	got, err := parseAuthMethods("none")
	require.NoError(t, err)
	require.Equal(t, []byte{socks5.MethodNone}, got)

	got, err = parseAuthMethods("userpass, none")
	require.NoError(t, err)
	require.Equal(t, []byte{socks5.MethodUsernamePassword, socks5.MethodNone}, got)

	for _, s := range []string{"", "gssapi", "none,none"} {
		_, err := parseAuthMethods(s)
		require.Error(t, err, s)
	}
}

func TestAdvertisedEndpoints(t *testing.T) {
	got := advertisedEndpoints([]string{"10.1.2.3:7777", "[::1]:1080", "garbage"})
	require.Equal(t, []string{"10.1.2.3:7777", "[::1]:1080"}, got)

	got = advertisedEndpoints([]string{"0.0.0.0:7777"})
	require.Len(t, got, 1)
	host, port, err := net.SplitHostPort(got[0])
	require.NoError(t, err)
	require.Equal(t, "7777", port)
	require.NotEqual(t, "0.0.0.0", host)
}
