package uthread

import (
	"errors"
	"testing"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/uthread/preempt"
)

func testScheduler() *Scheduler {
	cfg := DefaultConfig()
	cfg.Hz = preempt.Manual
	return New(cfg)
}

// Thread 1 creates thread 2 and yields, thread 2 creates thread 3 and
// yields, thread 1 prints and yields again.
func TestYieldOrder(t *testing.T) {
	s := testScheduler()
	var out []string

	thread3 := func(any) {
		out = append(out, "thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.Yield()
		out = append(out, "thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.Yield()
		out = append(out, "thread1")
		s.Yield()
	}

	require.NoError(t, s.Run(false, thread1, nil))
	assert.Equal(t, []string{"thread1", "thread3", "thread2"}, out)
}

// Same as above, but thread 3 yields before printing.
func TestYieldOrderChild(t *testing.T) {
	s := testScheduler()
	var out []string

	thread3 := func(any) {
		s.Yield()
		out = append(out, "thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.Yield()
		out = append(out, "thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.Yield()
		out = append(out, "thread1")
		s.Yield()
	}

	require.NoError(t, s.Run(false, thread1, nil))
	assert.Equal(t, []string{"thread1", "thread2", "thread3"}, out)
}

func TestYieldOrderParent(t *testing.T) {
	s := testScheduler()
	var out []string

	thread3 := func(any) {
		out = append(out, "thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.Yield()
		out = append(out, "thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.Yield()
		s.Yield()
		out = append(out, "thread1")
	}

	require.NoError(t, s.Run(false, thread1, nil))
	assert.Equal(t, []string{"thread3", "thread2", "thread1"}, out)
}

// Threads first run in creation order, and a yield moves the caller behind
// every thread that is ready at that point.
func TestCreationOrder(t *testing.T) {
	s := testScheduler()
	var order []uint64

	worker := func(arg any) {
		order = append(order, arg.(uint64))
		s.Yield()
		order = append(order, arg.(uint64)+10)
	}
	entry := func(any) {
		for i := uint64(1); i <= 4; i++ {
			_, err := s.Create(worker, i)
			assert.NoError(t, err)
		}
	}

	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, []uint64{1, 2, 3, 4, 11, 12, 13, 14}, order)
}

func TestYieldAlone(t *testing.T) {
	s := testScheduler()
	n := 0
	require.NoError(t, s.Run(false, func(any) {
		for i := 0; i < 5; i++ {
			s.Yield()
			n++
		}
	}, nil))
	assert.Equal(t, 5, n)
}

// At every point a thread can observe, it is the only running thread.
func TestSingleRunning(t *testing.T) {
	s := testScheduler()
	var checks int

	check := func() {
		checks++
		cur := s.Current()
		assert.NotNil(t, cur)
		running := 0
		for _, th := range s.live {
			if th.State() == Running {
				running++
				assert.Same(t, cur, th)
			}
		}
		assert.Equal(t, 1, running)
	}
	worker := func(any) {
		for i := 0; i < 3; i++ {
			check()
			s.Yield()
		}
		check()
	}
	entry := func(any) {
		for i := 0; i < 5; i++ {
			s.Create(worker, nil)
		}
		check()
	}

	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, 1+5*4, checks)
}

func TestBlockUnblock(t *testing.T) {
	s := testScheduler()
	var out []string
	var sleeper *Thread

	waker := func(any) {
		out = append(out, "waker")
		assert.Equal(t, Blocked, sleeper.State())
		assert.NoError(t, s.Unblock(sleeper))
		assert.Equal(t, Ready, sleeper.State())
		out = append(out, "woke")
	}
	entry := func(any) {
		s.Create(waker, nil)
		sleeper = s.Current()
		out = append(out, "block")
		assert.NoError(t, s.Block())
		out = append(out, "resumed")
	}

	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, []string{"block", "waker", "woke", "resumed"}, out)
}

func TestUnblockErrors(t *testing.T) {
	s := testScheduler()
	assert.ErrorIs(t, s.Unblock(nil), ErrNilThread)

	var first *Thread
	entry := func(any) {
		self := s.Current()
		assert.ErrorIs(t, s.Unblock(self), ErrNotBlocked, "running thread")

		child, err := s.Create(func(any) {}, nil)
		assert.NoError(t, err)
		assert.ErrorIs(t, s.Unblock(child), ErrNotBlocked, "ready thread")

		other := testScheduler()
		other.Run(false, func(any) {
			foreign := other.Current()
			foreign.SetState(Blocked)
			assert.ErrorIs(t, s.Unblock(foreign), ErrForeign)
			foreign.SetState(Running)
		}, nil)

		first = child
		s.Yield()
		// child ran to completion and was reaped while we were yielding.
		assert.True(t, first.Reaped())
		assert.ErrorIs(t, s.Unblock(first), ErrNotBlocked, "reaped thread")
	}
	require.NoError(t, s.Run(false, entry, nil))

	assert.ErrorIs(t, s.Unblock(first), ErrNotRunning)
}

func TestBlockOutsideThread(t *testing.T) {
	s := testScheduler()
	assert.ErrorIs(t, s.Block(), ErrNotInThread)
	assert.Nil(t, s.Current())
	s.Yield()
	s.Checkpoint()
}

func TestDeadlock(t *testing.T) {
	s := testScheduler()
	unwound := 0
	blocker := func(any) {
		defer func() { unwound++ }()
		s.Block()
		t.Error("blocked thread resumed")
	}
	entry := func(any) {
		s.Create(blocker, nil)
		s.Create(blocker, nil)
	}

	err := s.Run(false, entry, nil)
	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, []uint64{2, 3}, deadlock.Blocked)
	assert.Equal(t, 2, unwound, "blocked threads are unwound")
	assert.Empty(t, s.live)
	assert.Equal(t, 0, s.stacks.Live())
}

// Deferred calls of unwound threads cannot start new threads.
func TestDeadlockDeferredCreate(t *testing.T) {
	s := testScheduler()
	ran := false
	var createErr error

	err := s.Run(false, func(any) {
		defer func() {
			_, createErr = s.Create(func(any) { ran = true }, nil)
		}()
		s.Block()
	}, nil)

	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	var runErr *RunError
	assert.False(t, errors.As(err, &runErr), "only the deadlock is reported: %v", err)
	assert.ErrorIs(t, createErr, ErrNotRunning)
	assert.False(t, ran)
	assert.Empty(t, s.live)
	assert.Equal(t, 0, s.stacks.Live())
	assert.Equal(t, 0, s.ready.Len())
}

// The last runnable thread blocking ends the run.
func TestBlockLastRunnable(t *testing.T) {
	s := testScheduler()
	err := s.Run(false, func(any) {
		s.Block()
	}, nil)
	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, []uint64{1}, deadlock.Blocked)
}

func TestPanic(t *testing.T) {
	s := testScheduler()
	boom := errors.New("boom")
	finished := false

	entry := func(any) {
		s.Create(func(any) {
			s.Yield()
			finished = true
		}, nil)
		s.Create(func(any) { panic(boom) }, nil)
	}

	err := s.Run(false, entry, nil)
	var p *ThreadPanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, uint64(3), p.ID)
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, p.Stack)
	assert.True(t, finished, "other threads keep running")
}

func TestRunErrorAggregates(t *testing.T) {
	s := testScheduler()
	entry := func(any) {
		s.Create(func(any) { panic("first") }, nil)
		s.Create(func(any) { s.Block() }, nil)
	}
	err := s.Run(false, entry, nil)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Errs, 2)
	var deadlock *DeadlockError
	assert.ErrorAs(t, err, &deadlock)
	var p *ThreadPanicError
	assert.ErrorAs(t, err, &p)
	assert.Contains(t, err.Error(), "first")
}

func TestExit(t *testing.T) {
	s := testScheduler()
	var out []string
	entry := func(any) {
		s.Create(func(any) { out = append(out, "next") }, nil)
		defer func() { out = append(out, "deferred") }()
		s.Exit()
		out = append(out, "unreachable")
	}
	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, []string{"deferred", "next"}, out)
}

func TestExitOutsideThread(t *testing.T) {
	defer func(f func(int)) { osExit = f }(osExit)
	code := -1
	osExit = func(c int) { code = c }

	testScheduler().Exit()
	assert.Equal(t, 1, code)
}

func TestRunTwice(t *testing.T) {
	s := testScheduler()
	require.NoError(t, s.Run(false, func(any) {}, nil))
	assert.ErrorIs(t, s.Run(false, func(any) {}, nil), ErrAlreadyRun)
	_, err := s.Create(func(any) {}, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCreateErrors(t *testing.T) {
	s := testScheduler()
	_, err := s.Create(func(any) {}, nil)
	assert.ErrorIs(t, err, ErrNotRunning, "before Run")
	assert.ErrorIs(t, s.Run(false, nil, nil), ErrNilFunc)

	require.NoError(t, s.Run(false, func(any) {
		_, err := s.Create(nil, nil)
		assert.ErrorIs(t, err, ErrNilFunc)
	}, nil))
}

func TestStackBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hz = preempt.Manual
	cfg.StackSize = 16 * bytesize.KB
	cfg.StackBudget = 32 * bytesize.KB
	s := New(cfg)

	ran := 0
	entry := func(any) {
		_, err := s.Create(func(any) { ran++ }, nil)
		assert.NoError(t, err)

		_, err = s.Create(func(any) { ran++ }, nil)
		assert.ErrorIs(t, err, ErrStackExhausted)
		assert.Equal(t, 2, len(s.live), "no partial thread left behind")
		assert.Equal(t, 1, s.ready.Len())

		// Let the first child exit and be reaped, which frees its stack.
		s.Yield()
		_, err = s.Create(func(any) { ran++ }, nil)
		assert.NoError(t, err)
	}

	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, 2, ran)
	assert.Equal(t, 0, s.stacks.Live())
}

func TestRunBadHz(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hz = 2_000_000_000
	s := New(cfg)
	ran := false
	err := s.Run(true, func(any) { ran = true }, nil)
	assert.ErrorIs(t, err, preempt.ErrHz)
	assert.False(t, ran)
}

func TestPreemptManualTick(t *testing.T) {
	s := testScheduler()
	var out []string
	entry := func(any) {
		s.Create(func(any) { out = append(out, "thread2") }, nil)

		s.Checkpoint()
		out = append(out, "no tick")

		s.Preemption().Tick()
		s.Checkpoint()
		out = append(out, "thread1")
	}
	require.NoError(t, s.Run(true, entry, nil))
	assert.Equal(t, []string{"no tick", "thread2", "thread1"}, out)
	assert.False(t, s.Preemption().Started(), "Run stops preemption")
}

func TestPreemptNotRequested(t *testing.T) {
	s := testScheduler()
	var out []string
	entry := func(any) {
		s.Create(func(any) { out = append(out, "thread2") }, nil)
		s.Preemption().Tick()
		s.Checkpoint()
		out = append(out, "thread1")
	}
	require.NoError(t, s.Run(false, entry, nil))
	assert.Equal(t, []string{"thread1", "thread2"}, out)
}

// Thread 1 masks preemption before its busy section, thread 2 lifts the mask
// and gets preempted by the tick that is still pending.
func TestPreemptDisable(t *testing.T) {
	s := testScheduler()
	var out []string

	thread3 := func(any) { out = append(out, "thread3") }
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.PreemptEnable()
		out = append(out, "thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.PreemptDisable()
		s.Preemption().Tick()
		s.Checkpoint()
		out = append(out, "thread1")
	}

	require.NoError(t, s.Run(true, thread1, nil))
	assert.Equal(t, []string{"thread1", "thread3", "thread2"}, out)
}

func TestPreemptStop(t *testing.T) {
	s := testScheduler()
	var out []string
	thread1 := func(any) {
		s.Create(func(any) { out = append(out, "thread2") }, nil)
		assert.NoError(t, s.PreemptStop())
		s.Preemption().Tick()
		s.Checkpoint()
		out = append(out, "thread1")
	}
	require.NoError(t, s.Run(true, thread1, nil))
	assert.Equal(t, []string{"thread1", "thread2"}, out)
}

// With the real timer, a thread that spins on Checkpoint loses the CPU
// without ever yielding by itself.
func TestPreemptTimer(t *testing.T) {
	if testing.Short() {
		t.Skip("spins until the preemption timer fires")
	}
	s := New(DefaultConfig())
	done := false
	var out []string

	thread2 := func(any) {
		out = append(out, "thread2")
		done = true
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		deadline := time.Now().Add(5 * time.Second)
		for !done && time.Now().Before(deadline) {
			s.Checkpoint()
		}
		out = append(out, "thread1")
	}

	require.NoError(t, s.Run(true, thread1, nil))
	assert.Equal(t, []string{"thread2", "thread1"}, out)
	assert.NotZero(t, s.stats.preemptions)
}
