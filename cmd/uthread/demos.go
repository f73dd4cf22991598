package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tinygo-org/uthread"
	"github.com/tinygo-org/uthread/queue"
	"github.com/tinygo-org/uthread/sem"
)

// printer writes one line per call. With color enabled, each thread gets its
// own color so interleaved output can be told apart.
type printer struct {
	w     io.Writer
	color bool
}

var threadColors = []string{
	"\x1b[32m", // green
	"\x1b[33m", // yellow
	"\x1b[34m", // blue
	"\x1b[35m", // magenta
	"\x1b[36m", // cyan
}

func newPrinter(w io.Writer, color bool) *printer {
	return &printer{w: w, color: color}
}

func (p *printer) println(t *uthread.Thread, msg string) {
	if !p.color || t == nil {
		fmt.Fprintln(p.w, msg)
		return
	}
	c := threadColors[(t.ID()-1)%uint64(len(threadColors))]
	fmt.Fprintln(p.w, c+msg+"\x1b[0m")
}

type env struct {
	s       *uthread.Scheduler
	out     *printer
	unit    time.Duration
	preempt bool
}

func (e *env) println(msg string) {
	e.out.println(e.s.Current(), msg)
}

// spin busy-waits for n time units. It only gives up the CPU when it is
// preempted.
func (e *env) spin(n int) {
	d := time.Duration(n) * e.unit
	for start := time.Now(); time.Since(start) < d; {
		e.s.Checkpoint()
	}
}

type demo struct {
	help    string
	preempt bool // needs the preemption timer
	run     func(e *env) error
}

var demos = map[string]demo{
	"yield":           {help: "a parent runs again before its children (thread1, thread2, thread3)", run: demoYield},
	"yield2":          {help: "yield order with a double yield (thread3, thread2, thread1)", run: demoYield2},
	"sem-corner":      {help: "a woken semaphore waiter loses the resource and deadlocks", run: demoSemCorner},
	"preempt":         {help: "busy threads are preempted (thread2, thread1, thread3)", preempt: true, run: demoPreempt},
	"preempt-disable": {help: "a thread with preemption disabled runs to completion", preempt: true, run: demoPreemptDisable},
	"preempt-stop":    {help: "stopping the timer ends preemption", preempt: true, run: demoPreemptStop},
	"queue":           {help: "exercise the queue operations", run: demoQueue},
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runDemo runs a single demo on a fresh scheduler.
func runDemo(name string, cfg uthread.Config, opts *options, out *printer) error {
	d, ok := demos[name]
	if !ok {
		return fmt.Errorf("unknown demo %q", name)
	}
	e := &env{
		s:       uthread.New(cfg),
		out:     out,
		unit:    opts.unit,
		preempt: d.preempt || opts.preempt,
	}
	return d.run(e)
}

func demoYield(e *env) error {
	s := e.s
	thread3 := func(any) {
		s.Yield()
		e.println("thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.Yield()
		e.println("thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.Yield()
		e.println("thread1")
		s.Yield()
	}
	return s.Run(e.preempt, thread1, nil)
}

func demoYield2(e *env) error {
	s := e.s
	thread3 := func(any) {
		e.println("thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.Yield()
		e.println("thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.Yield()
		s.Yield()
		e.println("thread1")
	}
	return s.Run(e.preempt, thread1, nil)
}

func demoSemCorner(e *env) error {
	s := e.s
	sem1 := sem.New(s, 0)
	threadC := func(any) {
		sem1.Down()
		e.println("C")
	}
	threadB := func(any) {
		sem1.Up()
		e.println("B")
	}
	threadA := func(any) {
		s.Create(threadB, nil)
		s.Create(threadC, nil)
		sem1.Down()
		e.println("A")
	}
	err := s.Run(e.preempt, threadA, nil)
	if derr := sem1.Destroy(); derr != nil {
		err = errors.Join(err, fmt.Errorf("destroy semaphore: %w", derr))
	}
	return err
}

func demoPreempt(e *env) error {
	s := e.s
	thread3 := func(any) {
		e.spin(1)
		e.println("thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		e.println("thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		e.spin(1)
		e.println("thread1")
	}
	return s.Run(true, thread1, nil)
}

func demoPreemptDisable(e *env) error {
	s := e.s
	thread3 := func(any) {
		e.println("thread3")
	}
	thread2 := func(any) {
		s.Create(thread3, nil)
		s.PreemptEnable()
		e.spin(1)
		e.println("thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		s.PreemptDisable()
		e.spin(5)
		e.println("thread1")
	}
	return s.Run(true, thread1, nil)
}

func demoPreemptStop(e *env) error {
	s := e.s
	var stopErr error
	thread2 := func(any) {
		e.println("thread2")
	}
	thread1 := func(any) {
		s.Create(thread2, nil)
		stopErr = s.PreemptStop()
		e.spin(5)
		e.println("thread1")
	}
	return errors.Join(s.Run(true, thread1, nil), stopErr)
}

// demoQueue checks the queue operations the way a test program would, one
// assertion per line.
func demoQueue(e *env) error {
	failed := 0
	check := func(what string, ok bool) {
		result := "PASS"
		if !ok {
			result = "FAIL"
			failed++
		}
		fmt.Fprintf(e.out.w, "ASSERT: %s ... %s\n", what, result)
	}

	q := queue.New[*int]()
	data := []int{1, 2, 3, 4, 5, 42, 6, 7, 8, 9}
	for i := range data {
		q.Enqueue(&data[i])
	}
	q.Iterate(func(q *queue.Queue[*int], v *int) {
		if *v == 42 {
			q.Delete(v)
		} else {
			*v++
		}
	})
	check("data[0] == 2", data[0] == 2)
	check("queue.Len() == 9", q.Len() == 9)

	var nilQueue *queue.Queue[*int]
	check("nil queue Len() == -1", nilQueue.Len() == -1)
	check("Enqueue(nil) fails", q.Enqueue(nil) != nil)
	check("Destroy() of a non-empty queue fails", q.Destroy() != nil)

	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
	}
	_, ok := q.Dequeue()
	check("Dequeue() of an empty queue fails", !ok)
	check("Delete() of a missing item fails", errors.Is(q.Delete(&data[0]), queue.ErrNotFound))
	check("Destroy() of an empty queue", q.Destroy() == nil)

	if failed != 0 {
		return fmt.Errorf("%d queue assertions failed", failed)
	}
	return nil
}
