//go:build !(linux || freebsd || openbsd || netbsd || darwin)

package listen

import (
	"errors"
	"syscall"
)

const ReusePortSupported = false

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return errors.New("SO_REUSEPORT not supported")
}
