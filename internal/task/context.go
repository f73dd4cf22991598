package task

import "runtime"

// Context is the saved execution state of a logical thread.
//
// Every logical thread runs on its own goroutine. A goroutine that does not
// hold the CPU is parked in Wait on its wake channel, so its Go stack is the
// saved register set and stack pointer. Switching hands a single wake token
// to the target and parks the caller, which keeps exactly one of them
// running at any time.
type Context struct {
	wake chan struct{}
	kill chan struct{}
}

// NewContext returns a context whose owner has not been resumed yet.
func NewContext() *Context {
	return &Context{
		wake: make(chan struct{}, 1),
		kill: make(chan struct{}),
	}
}

// SwitchTo saves the calling goroutine into c and resumes to. It returns when
// somebody switches back into c.
func (c *Context) SwitchTo(to *Context) {
	to.Resume()
	c.Wait()
}

// Resume makes the owner of c runnable. The caller must park (or exit)
// right after, since it no longer holds the CPU.
func (c *Context) Resume() {
	select {
	case c.wake <- struct{}{}:
	default:
		panic("task: context resumed twice")
	}
}

// Wait parks the calling goroutine until c is resumed. If c is killed
// instead, the goroutine exits through runtime.Goexit so that deferred calls
// still run.
func (c *Context) Wait() {
	select {
	case <-c.wake:
	case <-c.kill:
		runtime.Goexit()
	}
}

// Kill unwinds the goroutine parked in c. It must only be used on a context
// that will never be resumed again.
func (c *Context) Kill() {
	close(c.kill)
}
