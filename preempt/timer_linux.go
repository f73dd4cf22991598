//go:build linux

package preempt

import (
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// itimerSource raises SIGVTALRM through a virtual interval timer, so ticks
// are counted in CPU time consumed by the process rather than wall time.
type itimerSource struct {
	period time.Duration
	sigs   chan os.Signal
	done   chan struct{}
	exited chan struct{}
	old    unix.Itimerval
}

func newSource(period time.Duration) source {
	return &itimerSource{period: period}
}

func (s *itimerSource) start(tick func()) error {
	s.sigs = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	signal.Notify(s.sigs, unix.SIGVTALRM)

	tv := unix.NsecToTimeval(s.period.Nanoseconds())
	old, err := unix.Setitimer(unix.ItimerVirtual, unix.Itimerval{Interval: tv, Value: tv})
	if err != nil {
		signal.Stop(s.sigs)
		return os.NewSyscallError("setitimer", err)
	}
	s.old = old

	go func() {
		defer close(s.exited)
		for {
			select {
			case <-s.sigs:
				tick()
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *itimerSource) stop() error {
	// Put the old timer back before detaching from the signal, so that no
	// tick of ours can hit the default disposition.
	_, err := unix.Setitimer(unix.ItimerVirtual, s.old)
	signal.Stop(s.sigs)
	close(s.done)
	<-s.exited
	if err != nil {
		return os.NewSyscallError("setitimer", err)
	}
	return nil
}
