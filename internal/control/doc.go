// Package control is the trusted side of the relay: it advertises where the
// relay listens and what it offers, and activates paired sessions on behalf
// of the initiating party. An HTTP binding exposes the same operations.
package control
