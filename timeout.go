package chunked

import (
	"sync"
	"time"
)

// TimeoutController is the collaborator spec.md §6 names: it owns the
// request deadline, the read-timing window used to attribute elapsed time
// to actual body reads (as opposed to idle connection time), and the
// query the Pump polls each iteration. The teacher hand-rolls its read
// deadlines with stdlib time.Timer/time.Time rather than a scheduler
// library (server.go, client.go); this collaborator follows that lead
// rather than reaching for an external scheduling package the pack never
// uses for this concern.
type TimeoutController interface {
	SetTimeout(d time.Duration, reason string)
	CancelTimeout()
	StartTimingRead()
	StopTimingRead()
	BytesRead(delta int)
	RequestTimedOut() bool
}

// SimpleTimeoutController is the default TimeoutController: a single
// deadline timer. StartTimingRead/StopTimingRead only record whether a
// read-timing window is open, and BytesRead ignores its argument; no
// data-rate figure is computed from either.
type SimpleTimeoutController struct {
	mu        sync.Mutex
	timer     *time.Timer
	timedOut  bool
	reason    string
	timingOn  bool
	onTimeout func(reason string)
}

// NewSimpleTimeoutController constructs a controller. onTimeout, if
// non-nil, is invoked informationally on the timer's goroutine, outside the
// controller's lock, when the deadline fires; RequestTimedOut is the
// authoritative signal the Pump polls.
func NewSimpleTimeoutController(onTimeout func(reason string)) *SimpleTimeoutController {
	return &SimpleTimeoutController{onTimeout: onTimeout}
}

func (c *SimpleTimeoutController) SetTimeout(d time.Duration, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.reason = reason
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		c.timedOut = true
		r := c.reason
		c.mu.Unlock()
		if c.onTimeout != nil {
			c.onTimeout(r)
		}
	})
}

func (c *SimpleTimeoutController) CancelTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *SimpleTimeoutController) StartTimingRead() {
	c.mu.Lock()
	c.timingOn = true
	c.mu.Unlock()
}

func (c *SimpleTimeoutController) StopTimingRead() {
	c.mu.Lock()
	c.timingOn = false
	c.mu.Unlock()
}

// BytesRead is a no-op hook point for callers that want to feed a
// throughput-based minimum-data-rate policy; the core itself only needs
// the interface, not a policy.
func (c *SimpleTimeoutController) BytesRead(delta int) {}

func (c *SimpleTimeoutController) RequestTimedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timedOut
}
