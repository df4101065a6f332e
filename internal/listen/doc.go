// Package listen opens the relay's TCP listeners with keepalive, an optional
// accept limit and optional SO_REUSEPORT.
package listen
