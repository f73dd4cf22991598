// Package preempt forces periodic yields on a cooperative scheduler.
//
// A timer fires at a fixed frequency. Its handler does the least possible
// amount of work: it marks a preemption as pending. The scheduler consumes
// that mark at its safe points and yields, so a forced yield takes exactly the
// same path as a voluntary one.
//
// Disable and Enable mask the timer, in the same way that blocking the timer
// signal would. A tick that arrives while masked stays pending and is
// delivered once the mask is lifted.
package preempt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	// DefaultHz is the preemption frequency used when none is configured.
	DefaultHz = 100

	// Manual selects a controller without a timer. Ticks only come from
	// calls to Tick.
	Manual = -1

	// MaxHz is the highest supported frequency.
	MaxHz = 10000
)

var (
	ErrStarted = errors.New("preempt: already started")
	ErrHz      = errors.New("preempt: frequency out of range")
)

// CheckHz reports whether hz can be passed to New: 1 to MaxHz, zero for
// DefaultHz, or Manual.
func CheckHz(hz int) error {
	if hz == Manual || (hz >= 0 && hz <= MaxHz) {
		return nil
	}
	return fmt.Errorf("%w: %d (want 1 to %d, 0 for %d or %d for manual)", ErrHz, hz, MaxHz, DefaultHz, Manual)
}

// A source delivers ticks until it is stopped. Stop must restore whatever
// timer configuration was in place before start.
type source interface {
	start(tick func()) error
	stop() error
}

// Controller owns the preemption timer of one scheduler.
type Controller struct {
	period time.Duration
	manual bool
	log    *slog.Logger
	src    source
	err    error // invalid frequency, returned by Start

	started bool
	depth   int // mask depth, only touched by the running thread

	pending atomic.Bool
	ticks   atomic.Uint64
}

// New returns a stopped controller that will tick hz times per second once
// started. Manual disables the timer and zero selects DefaultHz. Any hz
// rejected by CheckHz makes Start fail.
func New(hz int, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Controller{log: log}
	switch {
	case hz == Manual:
		c.manual = true
	case hz == 0:
		hz = DefaultHz
	}
	if err := CheckHz(hz); err != nil {
		c.err = err
	} else if !c.manual {
		c.period = time.Second / time.Duration(hz)
	}
	return c
}

// Period returns the time between two ticks, or zero for a manual
// controller or an invalid frequency.
func (c *Controller) Period() time.Duration {
	return c.period
}

// Start installs the timer. It does nothing if enabled is false.
func (c *Controller) Start(enabled bool) error {
	if !enabled {
		return nil
	}
	if c.err != nil {
		return c.err
	}
	if c.started {
		return ErrStarted
	}
	var src source = manualSource{}
	if !c.manual {
		src = newSource(c.period)
	}
	c.pending.Store(false)
	if err := src.start(c.Tick); err != nil {
		return err
	}
	c.src = src
	c.started = true
	c.log.Debug("preemption started", "period", c.period)
	return nil
}

// Stop removes the timer and restores the previous timer configuration.
// Stopping a controller that is not running is a no-op.
func (c *Controller) Stop() error {
	if !c.started {
		return nil
	}
	err := c.src.stop()
	c.src = nil
	c.started = false
	c.pending.Store(false)
	c.log.Debug("preemption stopped", "ticks", c.ticks.Load())
	return err
}

// Started reports whether the timer is installed.
func (c *Controller) Started() bool {
	return c.started
}

// Disable masks preemption. Calls nest.
func (c *Controller) Disable() {
	c.depth++
}

// Enable undoes one Disable. Extra calls are ignored.
func (c *Controller) Enable() {
	if c.depth > 0 {
		c.depth--
	}
}

// Disabled reports whether preemption is currently masked.
func (c *Controller) Disabled() bool {
	return c.depth > 0
}

// Tick requests a preemption, exactly as if the timer had fired. It is safe
// to call from any goroutine.
func (c *Controller) Tick() {
	c.ticks.Add(1)
	c.pending.Store(true)
}

// Ticks returns the number of ticks received so far.
func (c *Controller) Ticks() uint64 {
	return c.ticks.Load()
}

type manualSource struct{}

func (manualSource) start(func()) error { return nil }
func (manualSource) stop() error        { return nil }

// Take consumes a pending preemption. It returns false while the controller
// is stopped or masked; in the masked case the request stays pending.
func (c *Controller) Take() bool {
	if !c.started || c.depth > 0 {
		return false
	}
	return c.pending.Swap(false)
}
