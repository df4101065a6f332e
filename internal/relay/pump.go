package relay

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/die-net/streamhost/internal/metrics"
)

// forward copies everything the client sends to the activated peer, one
// buffer at a time. It is the only reader of c.nc after the handshake, so a
// write that blocks on a slow peer also stops reading from c.
func (c *Conn) forward() error {
	bp := c.srv.pool.Get()
	defer c.srv.pool.Put(bp)
	buf := *bp

	if err := c.awaitActivation(buf); err != nil {
		return err
	}

	if len(c.in) > 0 {
		early := c.in
		c.in = nil
		if err := c.send(early); err != nil {
			return err
		}
	}

	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			if werr := c.send(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// awaitActivation keeps reading while the session is pending so a client
// that hangs up is deregistered right away. Early data is held in c.in, up
// to one buffer; once that is full reading stops until activation.
func (c *Conn) awaitActivation(buf []byte) error {
	for {
		select {
		case <-c.activated:
			_ = c.nc.SetReadDeadline(time.Time{})
			return nil
		case <-c.done:
			return errPeerGone
		default:
		}

		room := len(buf) - len(c.in)
		if room <= 0 {
			if err := c.blockUntilActivated(); err != nil {
				return err
			}
			continue
		}

		n, err := c.nc.Read(buf[:room])
		c.in = append(c.in, buf[:n]...)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Activate sets a past deadline just before it closes activated.
			if err := c.blockUntilActivated(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

func (c *Conn) blockUntilActivated() error {
	select {
	case <-c.activated:
		return nil
	case <-c.done:
		return errPeerGone
	}
}

// wake interrupts a pending read in awaitActivation. Called by Activate with
// the Coordinator lock held, before activated is closed.
func (c *Conn) wake() {
	_ = c.nc.SetReadDeadline(time.Unix(1, 0))
}

// send writes b to the peer, first waiting for activation while pending.
func (c *Conn) send(b []byte) error {
	peer := c.waitPeer()
	if peer == nil {
		return errPeerGone
	}

	n, err := peer.nc.Write(b)
	metrics.RelayedBytes.Add(float64(n))
	return err
}

// waitPeer blocks until the session is active and the peer has received its
// own CONNECT reply, or returns nil if either side closes first.
func (c *Conn) waitPeer() *Conn {
	select {
	case <-c.activated:
	case <-c.done:
		return nil
	}

	peer := c.peer.Load()
	if peer == nil {
		return nil
	}

	select {
	case <-peer.ready:
		return peer
	case <-peer.done:
		return nil
	}
}

type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	bp := &bufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *bufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *bufferPool) Put(b *[]byte) {
	p.pool.Put(b)
}
