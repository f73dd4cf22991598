package uthread

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"

	"github.com/tinygo-org/uthread/preempt"
)

// Config holds the tunables of a Scheduler.
type Config struct {
	// Preemption frequency, used when Run is asked to preempt. Zero selects
	// preempt.DefaultHz and preempt.Manual disables the timer.
	Hz int

	// Size of a single thread stack and the total that may be handed out at
	// once. A zero budget is unlimited.
	StackSize   bytesize.ByteSize
	StackBudget bytesize.ByteSize

	// Level used when Logger is nil and a logger is built by the CLI.
	LogLevel slog.Level

	// Logger receives scheduler events. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by the package-level Run.
func DefaultConfig() Config {
	return Config{
		Hz:          preempt.DefaultHz,
		StackSize:   64 * bytesize.KB,
		StackBudget: 64 * bytesize.MB,
		LogLevel:    slog.LevelInfo,
	}
}

// The YAML representation of Config. Sizes are human readable ("64KB").
type configFile struct {
	Hz          int    `yaml:"hz"`
	StackSize   string `yaml:"stack-size"`
	StackBudget string `yaml:"stack-budget"`
	LogLevel    string `yaml:"log-level"`
}

// ParseConfig reads a YAML configuration. Missing keys keep their default
// value.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	var file configFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return cfg, fmt.Errorf("uthread: parse config: %w", err)
	}
	if file.Hz != 0 {
		cfg.Hz = file.Hz
	}
	if file.StackSize != "" {
		size, err := bytesize.Parse(file.StackSize)
		if err != nil {
			return cfg, fmt.Errorf("uthread: stack-size %q: %w", file.StackSize, err)
		}
		cfg.StackSize = size
	}
	if file.StackBudget != "" {
		size, err := bytesize.Parse(file.StackBudget)
		if err != nil {
			return cfg, fmt.Errorf("uthread: stack-budget %q: %w", file.StackBudget, err)
		}
		cfg.StackBudget = size
	}
	if file.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(file.LogLevel)); err != nil {
			return cfg, fmt.Errorf("uthread: log-level: %w", err)
		}
	}
	if err := preempt.CheckHz(cfg.Hz); err != nil {
		return cfg, fmt.Errorf("uthread: hz: %w", err)
	}
	if cfg.StackSize == 0 {
		return cfg, errors.New("uthread: stack-size must not be zero")
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), err
	}
	return ParseConfig(data)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
