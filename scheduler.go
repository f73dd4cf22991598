// Package uthread multiplexes logical threads onto a single thread of
// control.
//
// Only one logical thread runs at any time. It keeps the CPU until it calls
// Yield, Block or Exit, returns from its function, or reaches a Checkpoint
// while a preemption tick is pending. Ready threads are scheduled round-robin
// in FIFO order.
//
// There are no locks in this package. Shared scheduler state is only touched
// by the thread holding the CPU, and the preemption timer only ever marks a
// tick as pending. Code that must not be preempted between two checkpoints
// brackets itself with PreemptDisable and PreemptEnable.
package uthread

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"slices"

	"github.com/tinygo-org/uthread/internal/task"
	"github.com/tinygo-org/uthread/preempt"
	"github.com/tinygo-org/uthread/queue"
)

// Thread is the control block of a logical thread.
type Thread = task.Task

// State is the scheduling state of a Thread.
type State = task.State

const (
	Ready   = task.Ready
	Running = task.Running
	Blocked = task.Blocked
	Exited  = task.Exited
)

// Replaced in tests.
var osExit = os.Exit

// Scheduler owns a ready queue and the threads scheduled from it. A
// Scheduler runs once: its state lives from the start of Run until Run
// returns.
type Scheduler struct {
	cfg     Config
	log     *slog.Logger
	preempt *preempt.Controller
	stacks  *task.StackAllocator

	// Context of the goroutine that called Run.
	root *task.Context

	ready   *queue.Queue[*Thread]
	current *Thread // nil while the root context holds the CPU
	exited  *Thread // thread that exited and still has to be reaped
	live    map[uint64]*Thread
	nextID  uint64

	started  bool
	finished bool
	panics   []error

	stats stats
}

type stats struct {
	created     uint64
	reaped      uint64
	switches    uint64
	yields      uint64
	preemptions uint64
}

// New returns a scheduler that has not run yet.
func New(cfg Config) *Scheduler {
	log := cfg.logger()
	return &Scheduler{
		cfg:     cfg,
		log:     log,
		preempt: preempt.New(cfg.Hz, log),
		stacks:  task.NewStackAllocator(cfg.StackSize, cfg.StackBudget),
		live:    make(map[uint64]*Thread),
	}
}

// Run creates a scheduler with DefaultConfig and runs it.
func Run(preempt bool, entry func(arg any), arg any) error {
	return New(DefaultConfig()).Run(preempt, entry, arg)
}

// Run starts entry(arg) as the first thread and schedules threads until every
// one of them has exited. It returns nil if they all ran to completion.
//
// If the remaining threads are all blocked, they are unwound and Run returns
// a *DeadlockError. Panics in thread functions do not stop other threads;
// they are returned as *ThreadPanicError.
func (s *Scheduler) Run(preempt bool, entry func(arg any), arg any) error {
	if s.started {
		return ErrAlreadyRun
	}
	if entry == nil {
		return ErrNilFunc
	}
	s.started = true
	s.ready = queue.New[*Thread]()
	s.root = task.NewContext()

	if err := s.preempt.Start(preempt); err != nil {
		s.teardown()
		return fmt.Errorf("uthread: start preemption: %w", err)
	}
	if _, err := s.Create(entry, arg); err != nil {
		s.teardown()
		return err
	}

	s.schedule()
	return s.teardown()
}

// schedule runs on the root context. It only gets the CPU back when a thread
// exits or when the last runnable thread blocks.
func (s *Scheduler) schedule() {
	for {
		next, ok := s.ready.Dequeue()
		if !ok {
			return
		}
		s.switchTo(s.root, next)
		s.reap()
	}
}

// switchTo makes next the running thread and moves the CPU from the context
// from over to it. It returns once somebody switches back into from.
func (s *Scheduler) switchTo(from *task.Context, next *Thread) {
	next.SetState(task.Running)
	s.current = next
	s.stats.switches++
	s.log.Debug("resume", "thread", next.ID())
	from.SwitchTo(next.Ctx)
}

// reap releases the stack and context of the thread that just exited.
func (s *Scheduler) reap() {
	t := s.exited
	if t == nil {
		return
	}
	s.exited = nil
	if err := s.stacks.Free(t.Stack); err != nil {
		s.log.Error("reap", "thread", t.ID(), "err", err)
	}
	t.Stack = task.Stack{}
	t.Ctx = nil
	delete(s.live, t.ID())
	s.stats.reaped++
	s.log.Debug("reaped", "thread", t.ID())
}

// teardown unwinds threads that can never run again, stops preemption and
// destroys the ready queue.
//
// Deferred calls of unwound threads run during teardown. Create and Unblock
// fail with ErrNotRunning from then on, so nothing new becomes runnable.
func (s *Scheduler) teardown() error {
	s.finished = true
	var errs []error
	if len(s.live) != 0 {
		blocked := make([]uint64, 0, len(s.live))
		for id := range s.live {
			blocked = append(blocked, id)
		}
		slices.Sort(blocked)
		s.log.Warn("deadlock", "blocked", blocked)
		for _, id := range blocked {
			t := s.live[id]
			if t == nil || t.Ctx == nil {
				continue
			}
			s.kill(t)
		}
		errs = append(errs, &DeadlockError{Blocked: blocked})
	}
	for {
		t, ok := s.ready.Dequeue()
		if !ok {
			break
		}
		if t.Ctx != nil {
			s.kill(t)
		}
	}
	errs = append(errs, s.panics...)
	if err := s.preempt.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("uthread: stop preemption: %w", err))
	}
	if err := s.ready.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("uthread: ready queue: %w", err))
	}
	return joinErrors(errs)
}

// kill unwinds a parked thread from the root context and reaps it.
func (s *Scheduler) kill(t *Thread) {
	t.Ctx.Kill()
	s.root.Wait()
	s.reap()
}

// Create starts fn(arg) in a new thread. The thread is appended to the ready
// queue and first runs when every thread ahead of it had its turn.
func (s *Scheduler) Create(fn func(arg any), arg any) (*Thread, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	if s.ready == nil || s.finished {
		return nil, ErrNotRunning
	}
	stack, err := s.stacks.Alloc()
	if err != nil {
		return nil, fmt.Errorf("uthread: create thread: %w", err)
	}
	s.nextID++
	t := task.New(s.nextID, fn, arg)
	t.Ctx = task.NewContext()
	t.Stack = stack

	s.preempt.Disable()
	s.ready.Enqueue(t)
	s.live[t.ID()] = t
	s.preempt.Enable()

	s.stats.created++
	s.log.Debug("start", "thread", t.ID(), "from", s.currentID())
	go s.trampoline(t)

	s.Checkpoint()
	return t, nil
}

// trampoline is the goroutine body of every thread.
func (s *Scheduler) trampoline(t *Thread) {
	defer s.finish(t)
	t.Ctx.Wait()
	t.Entry(t.Arg)
}

// finish runs when a thread function returns, calls Exit, panics or is
// unwound during teardown. It hands the CPU back to the root context.
func (s *Scheduler) finish(t *Thread) {
	if r := recover(); r != nil {
		s.log.Error("thread panicked", "thread", t.ID(), "panic", r)
		s.panics = append(s.panics, &ThreadPanicError{ID: t.ID(), Value: r, Stack: debug.Stack()})
	}
	t.SetState(task.Exited)
	s.current = nil
	s.exited = t
	s.log.Debug("exit", "thread", t.ID())
	s.root.Resume()
}

// Yield lets every other ready thread run before the caller continues. It
// does nothing if no other thread is ready or if it is not called from a
// thread.
func (s *Scheduler) Yield() {
	cur := s.current
	if cur == nil {
		return
	}
	s.stats.yields++
	s.reschedule(cur)
}

// reschedule gives the CPU away on behalf of cur. A running cur goes to the
// tail of the ready queue; a blocked cur stays off it.
func (s *Scheduler) reschedule(cur *Thread) {
	s.preempt.Disable()
	next, ok := s.ready.Dequeue()
	if !ok {
		s.preempt.Enable()
		if cur.State() != task.Blocked {
			return
		}
		// Nothing left to run. Park on the root context, which will find an
		// empty ready queue and report the deadlock.
		s.current = nil
		cur.Ctx.SwitchTo(s.root)
		return
	}
	if cur.State() == task.Running {
		cur.SetState(task.Ready)
		s.ready.Enqueue(cur)
	}
	s.preempt.Enable()
	s.switchTo(cur.Ctx, next)
}

// Block suspends the running thread until another thread unblocks it.
//
// Block does not record the thread anywhere. Whoever is going to call
// Unblock must have stored the thread (see Current) before Block is called.
func (s *Scheduler) Block() error {
	cur := s.current
	if cur == nil {
		return ErrNotInThread
	}
	cur.SetState(task.Blocked)
	s.log.Debug("pause", "thread", cur.ID())
	s.reschedule(cur)
	return nil
}

// Unblock makes a blocked thread ready again and appends it to the ready
// queue. The thread only runs at a later yield.
func (s *Scheduler) Unblock(t *Thread) error {
	if t == nil {
		return ErrNilThread
	}
	if s.ready == nil || s.finished {
		return ErrNotRunning
	}
	if s.live[t.ID()] != t {
		if t.Reaped() {
			return fmt.Errorf("%w: %v", ErrNotBlocked, t)
		}
		return ErrForeign
	}
	if t.State() != task.Blocked {
		return fmt.Errorf("%w: %v", ErrNotBlocked, t)
	}

	s.preempt.Disable()
	t.SetState(task.Ready)
	s.ready.Enqueue(t)
	s.preempt.Enable()

	s.log.Debug("unblock", "thread", t.ID(), "from", s.currentID())
	s.Checkpoint()
	return nil
}

// Current returns the running thread, or nil when not called from a thread.
func (s *Scheduler) Current() *Thread {
	return s.current
}

func (s *Scheduler) currentID() uint64 {
	if s.current == nil {
		return 0
	}
	return s.current.ID()
}

// Exit terminates the running thread. It does not return.
//
// Deferred calls of the thread function run before the CPU is handed back.
// Calling Exit outside of a thread terminates the process.
func (s *Scheduler) Exit() {
	if s.current == nil {
		s.log.Error("exit called outside of a thread")
		osExit(1)
		return
	}
	runtime.Goexit()
}

// Checkpoint is a safe point for preemption: if a preemption tick is pending
// and not masked, the running thread yields.
func (s *Scheduler) Checkpoint() {
	if s.current == nil {
		return
	}
	if s.preempt.Take() {
		s.stats.preemptions++
		s.log.Debug("preempt", "thread", s.current.ID())
		s.Yield()
	}
}

// PreemptDisable masks preemption until the matching PreemptEnable. The mask
// is shared by all threads of the scheduler.
func (s *Scheduler) PreemptDisable() {
	s.preempt.Disable()
}

// PreemptEnable undoes one PreemptDisable. A tick that arrived while masked
// is delivered right away.
func (s *Scheduler) PreemptEnable() {
	s.preempt.Enable()
	s.Checkpoint()
}

// PreemptStop removes the preemption timer and restores the timer
// configuration that was active before Run.
func (s *Scheduler) PreemptStop() error {
	return s.preempt.Stop()
}

// Preemption returns the preemption controller of the scheduler.
func (s *Scheduler) Preemption() *preempt.Controller {
	return s.preempt
}
