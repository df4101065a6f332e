package testutil

import (
	"bytes"
	"io"
	"testing"
)

// AssertRelayed writes msg to w and expects to read exactly msg from r.
func AssertRelayed(t *testing.T, w io.Writer, r io.Reader, msg []byte) {
	t.Helper()

	errc := make(chan error, 1)
	go func() {
		_, err := w.Write(msg)
		errc <- err
	}()

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("relayed %d bytes differ from the %d written", len(buf), len(msg))
	}
}

// AssertClosed expects r to reach EOF or fail without yielding data.
func AssertClosed(t *testing.T, r io.Reader) {
	t.Helper()

	var b [1]byte
	n, err := r.Read(b[:])
	if n != 0 || err == nil {
		t.Fatalf("expected closed connection, read %d bytes (err %v)", n, err)
	}
}
