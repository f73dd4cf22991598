// Package diagnostics formats the errors returned by uthread.Run and prints
// them in a consistent way.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tinygo-org/uthread"
)

// A single diagnostic.
type Diagnostic struct {
	Thread uint64 // zero for problems of the run as a whole
	Msg    string

	// Goroutine traceback, only available for panics.
	Traceback []byte
}

// Diagnostics of a whole run, sorted by thread.
type RunDiagnostic []Diagnostic

// CreateDiagnostics reads the underlying errors in the error object and creates
// a set of diagnostics that's sorted and can be readily printed.
func CreateDiagnostics(err error) RunDiagnostic {
	if err == nil {
		return nil
	}
	diags := RunDiagnostic(createDiagnostics(err))

	// Run-wide problems first, then by thread ID. Keep the order of the
	// errors otherwise.
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Thread < diags[j].Thread
	})
	return diags
}

// Extract diagnostics from the given error and return them as a slice (which in
// many cases will just be a single diagnostic).
func createDiagnostics(err error) []Diagnostic {
	var (
		runErr   *uthread.RunError
		deadlock *uthread.DeadlockError
		panicErr *uthread.ThreadPanicError
	)
	switch {
	case errors.As(err, &runErr):
		var diags []Diagnostic
		for _, err := range runErr.Errs {
			diags = append(diags, createDiagnostics(err)...)
		}
		return diags
	case errors.As(err, &deadlock):
		diags := []Diagnostic{{Msg: "deadlock: all threads are blocked"}}
		for _, id := range deadlock.Blocked {
			diags = append(diags, Diagnostic{
				Thread: id,
				Msg:    "blocked forever, unwound",
			})
		}
		return diags
	case errors.As(err, &panicErr):
		return []Diagnostic{{
			Thread:    panicErr.ID,
			Msg:       fmt.Sprintf("panic: %v", panicErr.Value),
			Traceback: panicErr.Stack,
		}}
	default:
		return []Diagnostic{{Msg: err.Error()}}
	}
}

// Write run diagnostics to the given writer. Tracebacks are only written in
// verbose mode.
func (runDiag RunDiagnostic) WriteTo(w io.Writer, verbose bool) {
	for _, diag := range runDiag {
		diag.WriteTo(w, verbose)
	}
}

// Write this diagnostic to the given writer.
func (diag Diagnostic) WriteTo(w io.Writer, verbose bool) {
	if diag.Thread == 0 {
		fmt.Fprintln(w, diag.Msg)
	} else {
		fmt.Fprintf(w, "thread %d: %s\n", diag.Thread, diag.Msg)
	}
	if verbose && len(diag.Traceback) != 0 {
		for _, line := range strings.Split(strings.TrimRight(string(diag.Traceback), "\n"), "\n") {
			fmt.Fprintln(w, "\t"+line)
		}
	}
}
