//go:build !unix

package sockopt

import "syscall"

// ReuseAddr is a no-op where golang.org/x/sys/unix is unavailable.
func ReuseAddr(_, _ string, _ syscall.RawConn) error { return nil }

// Broadcast is a no-op where golang.org/x/sys/unix is unavailable.
func Broadcast(_, _ string, _ syscall.RawConn) error { return nil }
