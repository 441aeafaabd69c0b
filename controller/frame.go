package controller

import (
	"time"

	"github.com/google/uuid"
)

// FrameTimers is a host timer table: a registered function is called when
// due and returns the delay to its next call.
type FrameTimers interface {
	Register(id string, fn func() time.Duration)
	Unregister(id string)
	IsRegistered(id string) bool
}

// FrameController registers one timer function that polls its service and
// asks to be called again after interval.
type FrameController struct {
	poller
	timers   FrameTimers
	id       string
	interval time.Duration
}

func NewFrameController(svc Service, handler Handler, timers FrameTimers, interval time.Duration, opts ...Option) *FrameController {
	return &FrameController{
		poller:   newPoller(svc, handler, opts),
		timers:   timers,
		id:       "channel-" + uuid.NewString(),
		interval: interval,
	}
}

// ID is the key the poll is registered under.
func (c *FrameController) ID() string {
	return c.id
}

func (c *FrameController) Start() {
	if !c.timers.IsRegistered(c.id) {
		c.timers.Register(c.id, c.tick)
	}
}

func (c *FrameController) Stop() error {
	if c.timers.IsRegistered(c.id) {
		c.timers.Unregister(c.id)
	}
	return c.shutdown()
}

func (c *FrameController) IsRunning() bool {
	return c.timers.IsRegistered(c.id) && c.svc.IsRunning()
}

func (c *FrameController) tick() time.Duration {
	c.poll()
	c.settle(c.timers.IsRegistered(c.id))
	return c.interval
}
