package uthread

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinygo-org/uthread/internal/task"
)

var (
	ErrAlreadyRun  = errors.New("uthread: scheduler already ran")
	ErrNotRunning  = errors.New("uthread: scheduler is not running")
	ErrNotInThread = errors.New("uthread: not called from a thread")
	ErrNilFunc     = errors.New("uthread: nil thread function")
	ErrNilThread   = errors.New("uthread: nil thread")
	ErrNotBlocked  = errors.New("uthread: thread is not blocked")
	ErrForeign     = errors.New("uthread: thread belongs to another scheduler")

	// ErrStackExhausted is returned by Create when the stack budget is used up.
	ErrStackExhausted = task.ErrStackExhausted
)

// DeadlockError is returned by Run when every remaining thread is blocked and
// none of them can ever be unblocked.
type DeadlockError struct {
	Blocked []uint64 // IDs of the threads that were blocked, sorted
}

func (e *DeadlockError) Error() string {
	ids := make([]string, len(e.Blocked))
	for i, id := range e.Blocked {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return "uthread: all threads are blocked (deadlock): " + strings.Join(ids, ", ")
}

// ThreadPanicError records a panic that escaped a thread function.
type ThreadPanicError struct {
	ID    uint64
	Value any
	Stack []byte
}

func (e *ThreadPanicError) Error() string {
	return fmt.Sprintf("uthread: thread %d panicked: %v", e.ID, e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *ThreadPanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RunError is returned by Run when more than one thing went wrong.
type RunError struct {
	Errs []error
}

func (e *RunError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

func (e *RunError) Unwrap() []error {
	return e.Errs
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &RunError{Errs: errs}
	}
}
