// Command uthread runs small demo programs on the uthread scheduler.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/tinygo-org/uthread"
	"github.com/tinygo-org/uthread/diagnostics"
	"github.com/tinygo-org/uthread/preempt"
)

// Environment variable holding extra flags, split like a shell would.
const flagsEnv = "UTHREADFLAGS"

type options struct {
	config  string
	preempt bool
	hz      int
	unit    time.Duration
	verbose bool
	noColor bool
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "Usage: %s [options] demo...\n\n", os.Args[0])
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(w, "\nDemos:\n")
		names := make([]string, 0, len(demos))
		for name := range demos {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-16s %s\n", name, demos[name].help)
		}
		fmt.Fprintf(w, "\nExtra options may be given in $%s.\n", flagsEnv)
	}
}

// parseArgs parses the command line, preceded by the flags in $UTHREADFLAGS.
func parseArgs(args []string, env string) (*options, []string, error) {
	extra, err := shlex.Split(env)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", flagsEnv, err)
	}
	opts := &options{}
	fs := flag.NewFlagSet("uthread", flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "", "YAML file with scheduler settings")
	fs.BoolVar(&opts.preempt, "preempt", false, "enable preemption for demos that do not need it")
	fs.IntVar(&opts.hz, "hz", 0, "preemption frequency (overrides the config file)")
	fs.DurationVar(&opts.unit, "unit", 200*time.Millisecond, "busy-wait time unit of the preemption demos")
	fs.BoolVar(&opts.verbose, "v", false, "log scheduler events")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	fs.Usage = usage(fs)
	if err := fs.Parse(append(extra, args...)); err != nil {
		return nil, nil, err
	}
	return opts, fs.Args(), nil
}

// loadConfig builds the scheduler configuration from the config file and the
// command line.
func loadConfig(opts *options, logOut io.Writer) (uthread.Config, error) {
	cfg := uthread.DefaultConfig()
	if opts.config != "" {
		var err error
		cfg, err = uthread.LoadConfig(opts.config)
		if err != nil {
			return cfg, err
		}
	}
	if opts.hz != 0 {
		if err := preempt.CheckHz(opts.hz); err != nil {
			return cfg, fmt.Errorf("-hz: %w", err)
		}
		cfg.Hz = opts.hz
	}
	if opts.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, nil
}

func main() {
	opts, names, err := parseArgs(os.Args[1:], os.Getenv(flagsEnv))
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "no demo given, see -help")
		os.Exit(2)
	}
	for _, name := range names {
		if _, ok := demos[name]; !ok {
			fmt.Fprintf(os.Stderr, "unknown demo %q, known demos: %s\n", name, strings.Join(demoNames(), ", "))
			os.Exit(2)
		}
	}

	stderr := colorable.NewColorableStderr()
	cfg, err := loadConfig(opts, stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	color := !opts.noColor && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	out := newPrinter(colorable.NewColorableStdout(), color)

	failed := false
	for _, name := range names {
		err := runDemo(name, cfg, opts, out)
		if err == nil {
			continue
		}
		failed = true
		fmt.Fprintln(stderr, "#", name)
		diagnostics.CreateDiagnostics(err).WriteTo(stderr, opts.verbose)
	}
	if failed {
		os.Exit(1)
	}
}
