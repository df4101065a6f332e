//go:build linux || freebsd || openbsd || netbsd || darwin

package listen

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReusePortSupported reports whether Config.ReusePort works here.
const ReusePortSupported = true

func reusePortControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
