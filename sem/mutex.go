package sem

import "errors"

var ErrNotLocked = errors.New("sem: unlock of unlocked mutex")

// Mutex is a mutual exclusion lock for uthread threads. It is only needed
// when a critical section spans a yield, block or checkpoint; code between
// two of those already runs without interruption.
//
// As with sync.Mutex, a locked Mutex is not associated with a particular
// thread.
type Mutex struct {
	sem *Semaphore
}

// NewMutex returns an unlocked mutex.
func NewMutex(sched Scheduler) *Mutex {
	return &Mutex{sem: New(sched, 1)}
}

// Lock locks m, blocking the calling thread until the mutex is available.
func (m *Mutex) Lock() error {
	return m.sem.Down()
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	if m.sem.destroyed || m.sem.count == 0 {
		return false
	}
	m.sem.count--
	return true
}

// Unlock unlocks m. It returns ErrNotLocked if m is not locked on entry to
// Unlock.
func (m *Mutex) Unlock() error {
	if m.sem.count != 0 {
		return ErrNotLocked
	}
	return m.sem.Up()
}
