//go:build unix

package sockopt

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReuseAddr sets SO_REUSEADDR so several scanners can bind the discovery port.
func ReuseAddr(_, _ string, c syscall.RawConn) error {
	return setInt(c, unix.SO_REUSEADDR, "SO_REUSEADDR")
}

// Broadcast sets SO_BROADCAST so announcements may target a broadcast address.
func Broadcast(_, _ string, c syscall.RawConn) error {
	return setInt(c, unix.SO_BROADCAST, "SO_BROADCAST")
}

func setInt(c syscall.RawConn, opt int, name string) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1); err != nil {
			opErr = fmt.Errorf("set %s: %w", name, err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}
