package task

import "strconv"

// State is the scheduling state of a task.
type State uint8

const (
	// Ready tasks are waiting in the run queue.
	Ready State = iota

	// Running is the state of the one task that currently holds the CPU.
	Running

	// Blocked tasks are off the run queue until somebody unblocks them.
	Blocked

	// Exited is terminal. The scheduler reaps the task after it sees this.
	Exited
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Exited:
		return "exited"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Task is the control block of a single logical thread.
type Task struct {
	id    uint64
	state State

	// Entry point, called with Arg the first time the task is resumed.
	Entry func(arg any)
	Arg   any

	// Ctx is the saved execution context. It is nil once the task is reaped.
	Ctx *Context

	// Stack backing this task. Zero once the task is reaped.
	Stack Stack
}

// New creates a task in the Ready state. The context and stack are attached
// by the caller.
func New(id uint64, entry func(arg any), arg any) *Task {
	return &Task{
		id:    id,
		state: Ready,
		Entry: entry,
		Arg:   arg,
	}
}

// ID returns the task ID, unique for the lifetime of the scheduler.
func (t *Task) ID() uint64 {
	return t.id
}

// State returns the current scheduling state.
func (t *Task) State() State {
	return t.state
}

// SetState changes the scheduling state. Only the scheduler should call this.
func (t *Task) SetState(s State) {
	t.state = s
}

// Reaped reports whether the scheduler already released the context and stack.
func (t *Task) Reaped() bool {
	return t.state == Exited && t.Ctx == nil
}

func (t *Task) String() string {
	return "thread " + strconv.FormatUint(t.id, 10) + " (" + t.state.String() + ")"
}
