//go:build !linux

package preempt

import "time"

// Some platforms have no virtual interval timer that x/sys exposes, so ticks
// come from a wall clock ticker instead.
type tickerSource struct {
	period time.Duration
	ticker *time.Ticker
	done   chan struct{}
	exited chan struct{}
}

func newSource(period time.Duration) source {
	return &tickerSource{period: period}
}

func (s *tickerSource) start(tick func()) error {
	s.ticker = time.NewTicker(s.period)
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	go func() {
		defer close(s.exited)
		for {
			select {
			case <-s.ticker.C:
				tick()
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *tickerSource) stop() error {
	s.ticker.Stop()
	close(s.done)
	<-s.exited
	return nil
}
