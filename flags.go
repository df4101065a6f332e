package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/die-net/streamhost/internal/socks5"
)

// keepAliveFields names the parts of a keepidle:keepintvl:keepcnt value.
var keepAliveFields = [...]string{"keepidle", "keepintvl", "keepcnt"}

// parseTCPKeepAlive accepts on, off or keepidle:keepintvl:keepcnt, with the
// first two in seconds.
func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != len(keepAliveFields) {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}

	var vals [len(keepAliveFields)]int
	for i, part := range parts {
		n, err := parsePositiveInt(part)
		if err != nil {
			return net.KeepAliveConfig{}, fmt.Errorf("%s: %w", keepAliveFields[i], err)
		}
		vals[i] = n
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(vals[0]) * time.Second,
		Interval: time.Duration(vals[1]) * time.Second,
		Count:    vals[2],
	}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

// parseAuthMethods turns "userpass,none" into SOCKS5 method codes in the
// same order.
func parseAuthMethods(s string) ([]byte, error) {
	var methods []byte
	for _, part := range strings.Split(s, ",") {
		var m byte
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "none":
			m = socks5.MethodNone
		case "userpass":
			m = socks5.MethodUsernamePassword
		case "":
			continue
		default:
			return nil, fmt.Errorf("unknown method %q", part)
		}
		if containsByte(methods, m) {
			return nil, fmt.Errorf("duplicate method %q", part)
		}
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		return nil, errors.New("empty")
	}
	return methods, nil
}

// advertisedEndpoints turns bound listener addresses into endpoints clients
// can use. Wildcard hosts are replaced with the first non-loopback interface
// address.
func advertisedEndpoints(bound []string) []string {
	eps := make([]string, 0, len(bound))
	for _, addr := range bound {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
			host = externalIP()
		}
		eps = append(eps, net.JoinHostPort(host, port))
	}
	return eps
}

func externalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func containsByte(b []byte, v byte) bool {
	for _, x := range b {
		if x == v {
			return true
		}
	}
	return false
}
