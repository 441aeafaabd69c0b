// Package registry keeps the set of channel services running in this process
// and announces them so other processes can discover them.
//
// All Registry methods are asynchronous commands: they enqueue and return,
// never blocking the caller. A single worker goroutine owns the name → address
// map and applies the commands once per announce cycle, so the map is never
// touched from two goroutines.
package registry

import (
	"context"

	"channels/address"
)

// Registry is what a channel service registers its address with.
type Registry interface {
	// Register announces addr under addr.Name, replacing any previous entry
	// with the same name.
	Register(addr address.Address)
	// Unregister stops announcing addr.Name. Unknown names are ignored.
	Unregister(addr address.Address)
	// Shutdown stops the announce worker after the commands queued before it.
	Shutdown()
}

// Publisher makes registered addresses visible to other processes. One
// Publisher lives for exactly one worker run and is only used from the worker
// goroutine.
type Publisher interface {
	// Publish is called once per cycle with every registered address.
	Publish(ctx context.Context, addrs []address.Address) error
	// Withdraw is called when an address is unregistered.
	Withdraw(ctx context.Context, addr address.Address) error
	Close() error
}

// Dialer opens the Publisher for a new worker run.
type Dialer func(ctx context.Context) (Publisher, error)
