package socks5

// Package socks5 encodes and decodes the SOCKS5 messages spoken between a
// bytestream client and the relay.
//
// Server-side decoders are incremental: each Parse function takes whatever
// input has been buffered so far and either returns a message together with
// the number of bytes it consumed, or ErrIncomplete when more input is needed.
// Replies are written with the message types from github.com/txthinking/socks5
// so the wire layout stays in one place.
//
// The client helpers drive the same handshake from the other side and are used
// by tests and by operational tooling that probes a relay.
