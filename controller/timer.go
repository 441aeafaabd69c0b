package controller

import "time"

// Timer is a recurring GUI toolkit timer.
type Timer interface {
	SetInterval(d time.Duration)
	OnTimeout(fn func())
	Start()
	Stop()
	Active() bool
}

// TimerController polls its service every time the timer fires.
type TimerController struct {
	poller
	timer Timer
}

func NewTimerController(svc Service, handler Handler, timer Timer, interval time.Duration, opts ...Option) *TimerController {
	c := &TimerController{poller: newPoller(svc, handler, opts), timer: timer}
	timer.SetInterval(interval)
	timer.OnTimeout(c.tick)
	return c
}

func (c *TimerController) Start() {
	if !c.timer.Active() {
		c.timer.Start()
	}
}

func (c *TimerController) Stop() error {
	if c.timer.Active() {
		c.timer.Stop()
	}
	return c.shutdown()
}

func (c *TimerController) IsRunning() bool {
	return c.timer.Active() && c.svc.IsRunning()
}

func (c *TimerController) tick() {
	c.poll()
	c.settle(c.timer.Active())
}

// Poll runs one poll step immediately.
func (c *TimerController) Poll() {
	c.poll()
}
