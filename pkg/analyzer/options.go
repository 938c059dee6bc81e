package analyzer

import (
	"context"
	"log/slog"
	"runtime"
)

// Hooks defines callbacks for progress updates during a run.
// Implementations MUST be thread-safe: the direct method calls OnTaskComplete
// from worker goroutines.
type Hooks interface {
	OnPhaseStart(phase Phase, total int) error
	OnTaskComplete(phase Phase, completion Completion) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnPhaseStart implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnPhaseStart(phase Phase, total int) error { return nil }

// OnTaskComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskComplete(phase Phase, completion Completion) error { return nil }

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// PoolFactory builds the worker pool used for both phases of a run.
type PoolFactory func(ctx context.Context, opts *Options, exec Executor, workers int) (Pool, error)

// Options holds all configuration for an analysis run.
type Options struct {
	// --- Core Paths ---
	DataPath           string `mapstructure:"data_path"`           // Required: root of the mail corpus
	TemporaryDirectory string `mapstructure:"temporary_directory"` // Required: existing, writable directory
	OutputFile         string `mapstructure:"output_file"`         // Required: report path; its parent must exist

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"` // Path to the loaded config file (for reporting)

	// --- Behavior & Control ---
	Verbose           bool   `mapstructure:"-"`                   // Derived from is_verbose / -v
	TuiEnabled        bool   `mapstructure:"tui"`                 // Hint for CLI to use TUI (ignored if Verbose)
	CPUCoreMultiplier int    `mapstructure:"cpu_core_multiplier"` // Workers per CPU, 1 to 10
	Method            Method `mapstructure:"method"`              // ("channel", "process", "direct")
	Workers           int    `mapstructure:"-"`                   // Derived pool size; set to override

	// --- Parsing & Output ---
	HeaderCharset string       `mapstructure:"header_charset"` // Fallback charset for non UTF-8 header lines
	ReportFormat  ReportFormat `mapstructure:"report_format"`  // ("text", "json", "yaml", "toml")
	OutputFormat  OutputFormat `mapstructure:"output_format"`  // ("text", "json") for the run summary

	// --- Injected Dependencies ---
	EventHooks  Hooks        `mapstructure:"-"` // Optional: defaults to NoOpHooks
	Logger      slog.Handler `mapstructure:"-"` // Required: logging backend
	Transport   Transport    `mapstructure:"-"` // Required for MethodProcess; overrides the channel transport otherwise
	Executor    Executor     `mapstructure:"-"` // Optional: defaults to TaskExecutor
	PoolFactory PoolFactory  `mapstructure:"-"` // Optional: factory for the worker pool (testing)
}

// ClampMultiplier forces the multiplier into [MinCPUCoreMultiplier, MaxCPUCoreMultiplier].
// The second result reports whether the value was changed.
func ClampMultiplier(m int) (int, bool) {
	switch {
	case m < MinCPUCoreMultiplier:
		return MinCPUCoreMultiplier, true
	case m > MaxCPUCoreMultiplier:
		return MaxCPUCoreMultiplier, true
	default:
		return m, false
	}
}

// WorkerCount returns the pool size for a multiplier: host parallelism times multiplier.
func WorkerCount(multiplier int) int {
	return runtime.NumCPU() * multiplier
}
