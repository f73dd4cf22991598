// Package sem implements counting semaphores for uthread threads.
package sem

import (
	"errors"

	"github.com/tinygo-org/uthread/internal/task"
	"github.com/tinygo-org/uthread/queue"
)

var (
	ErrNilSemaphore = errors.New("sem: nil semaphore")
	ErrDestroyed    = errors.New("sem: semaphore was destroyed")
	ErrWaiters      = errors.New("sem: threads are still waiting")
	ErrNoThread     = errors.New("sem: Down called outside of a thread")
)

// Scheduler is the part of *uthread.Scheduler a semaphore needs.
type Scheduler interface {
	Current() *task.Task
	Block() error
	Unblock(t *task.Task) error
}

// Semaphore is a counting semaphore. Waiters are woken in FIFO order.
type Semaphore struct {
	sched     Scheduler
	count     uint
	blocked   *queue.Queue[*task.Task]
	destroyed bool
}

// New returns a semaphore holding count resources.
func New(sched Scheduler, count uint) *Semaphore {
	return &Semaphore{
		sched:   sched,
		count:   count,
		blocked: queue.New[*task.Task](),
	}
}

// Down takes a resource, blocking the calling thread while none is
// available.
func (s *Semaphore) Down() error {
	if s == nil {
		return ErrNilSemaphore
	}
	if s.destroyed {
		return ErrDestroyed
	}
	for s.count == 0 {
		cur := s.sched.Current()
		if cur == nil {
			return ErrNoThread
		}
		// Queue the thread before blocking, since only Up can find it again.
		// A thread that was woken but lost the resource to another one is
		// no longer queued and goes to the back of the line.
		if !s.blocked.Contains(cur) {
			s.blocked.Enqueue(cur)
		}
		if err := s.sched.Block(); err != nil {
			s.blocked.Delete(cur)
			return err
		}
	}
	s.count--
	return nil
}

// Up releases a resource and wakes the oldest waiter, if any. The woken
// thread still has to take the resource in its own Down.
func (s *Semaphore) Up() error {
	if s == nil {
		return ErrNilSemaphore
	}
	if s.destroyed {
		return ErrDestroyed
	}
	s.count++
	if t, ok := s.blocked.Dequeue(); ok {
		return s.sched.Unblock(t)
	}
	return nil
}

// Destroy releases the semaphore. It fails while threads are waiting on it.
func (s *Semaphore) Destroy() error {
	if s == nil {
		return ErrNilSemaphore
	}
	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.blocked.Destroy(); err != nil {
		return ErrWaiters
	}
	s.destroyed = true
	return nil
}

// Count returns the number of available resources.
func (s *Semaphore) Count() uint {
	return s.count
}

// Waiters returns the number of threads blocked in Down.
func (s *Semaphore) Waiters() int {
	return s.blocked.Len()
}
