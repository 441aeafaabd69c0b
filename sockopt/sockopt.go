// Package sockopt sets the socket options the discovery sockets need before
// they are bound, through net.ListenConfig.Control.
package sockopt

import "syscall"

// ControlFunc matches net.ListenConfig.Control.
type ControlFunc func(network, address string, c syscall.RawConn) error

// Chain applies fns in order and stops at the first error.
func Chain(fns ...ControlFunc) ControlFunc {
	return func(network, address string, c syscall.RawConn) error {
		for _, fn := range fns {
			if err := fn(network, address, c); err != nil {
				return err
			}
		}
		return nil
	}
}
