package analyzer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stackvity/mail-analyzer/pkg/analyzer/encoding"
	"github.com/stackvity/mail-analyzer/pkg/util"
)

// Engine sequences an analysis run: enumerate, barrier, reduce manifests,
// parse, barrier, aggregate.
type Engine struct {
	opts     *Options
	logger   *slog.Logger
	hooks    Hooks
	executor Executor
	newPool  PoolFactory
	ctx      context.Context
	workers  int
	runID    string
}

// NewEngine validates opts, resolves defaults and returns an Engine ready to Run.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if !util.DirectoryExists(opts.DataPath) {
		return nil, fmt.Errorf("%w: data path '%s' is not an existing directory", ErrConfigValidation, opts.DataPath)
	}
	if !util.DirectoryExists(opts.TemporaryDirectory) {
		return nil, fmt.Errorf("%w: temporary directory '%s' is not an existing directory", ErrConfigValidation, opts.TemporaryDirectory)
	}
	if opts.OutputFile == "" || !util.ParentDirExists(opts.OutputFile) {
		return nil, fmt.Errorf("%w: parent directory of output file '%s' does not exist", ErrConfigValidation, opts.OutputFile)
	}

	if opts.Method == "" {
		opts.Method = DefaultMethod
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = DefaultReportFormat
	}
	if !slices.Contains([]ReportFormat{ReportFormatText, ReportFormatJSON, ReportFormatYAML, ReportFormatTOML}, opts.ReportFormat) {
		return nil, fmt.Errorf("%w: unsupported report format '%s'", ErrConfigValidation, opts.ReportFormat)
	}

	if opts.CPUCoreMultiplier == 0 {
		opts.CPUCoreMultiplier = DefaultCPUCoreMultiplier
	}
	if m, changed := ClampMultiplier(opts.CPUCoreMultiplier); changed {
		logger.Warn("CPU core multiplier out of range, clamped", slog.Int("requested", opts.CPUCoreMultiplier), slog.Int("used", m))
		opts.CPUCoreMultiplier = m
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = WorkerCount(opts.CPUCoreMultiplier)
		opts.Workers = workers
	}

	executor := opts.Executor
	if executor == nil {
		decoder, err := encoding.NewHeaderDecoder(opts.HeaderCharset)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
		}
		executor = NewTaskExecutor(opts.Logger, decoder)
		logger.Debug("Executor not provided, using default TaskExecutor.", slog.String("headerCharset", decoder.Name()))
	}

	newPool := opts.PoolFactory
	if newPool == nil {
		switch opts.Method {
		case MethodChannel, MethodDirect:
		case MethodProcess:
			if opts.Transport == nil {
				return nil, fmt.Errorf("%w: method '%s' requires a Transport", ErrConfigValidation, opts.Method)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported method '%s'", ErrConfigValidation, opts.Method)
		}
		newPool = DefaultPoolFactory
	}

	return &Engine{
		opts:     &opts,
		logger:   logger,
		hooks:    opts.EventHooks,
		executor: executor,
		newPool:  newPool,
		ctx:      ctx,
		workers:  workers,
		runID:    uuid.NewString(),
	}, nil
}

// DefaultPoolFactory builds the pool matching opts.Method.
func DefaultPoolFactory(ctx context.Context, opts *Options, exec Executor, workers int) (Pool, error) {
	switch opts.Method {
	case MethodDirect:
		return NewDirectRunner(exec, workers, opts.Logger)
	case MethodProcess, MethodChannel, "":
		transport := opts.Transport
		if transport == nil {
			transport = NewChannelTransport(exec, opts.Logger)
		}
		return NewDispatcher(ctx, transport, workers, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: unsupported method '%s'", ErrConfigValidation, opts.Method)
	}
}

// Workers returns the resolved pool size.
func (e *Engine) Workers() int { return e.workers }

// Run executes the pipeline. Per-item failures are collected in the Report;
// the returned error is set only when a phase had to abort.
func (e *Engine) Run() (report Report, finalErr error) {
	startTime := time.Now()
	collector := newRunCollector(ReportSummary{
		RunID:              e.runID,
		DataPath:           e.opts.DataPath,
		TemporaryDirectory: e.opts.TemporaryDirectory,
		OutputFile:         e.opts.OutputFile,
		ConfigFilePath:     e.opts.ConfigFilePath,
		Method:             e.opts.Method,
		Workers:            e.workers,
	})
	currentPhase := PhaseEnumerate
	e.logger.Info("Starting analysis run",
		slog.String("runId", e.runID),
		slog.String("method", string(e.opts.Method)),
		slog.Int("workers", e.workers))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during analysis run", slog.Any("panicValue", r))
			finalErr = fmt.Errorf("panic during execution: %v", r)
		}
		if finalErr != nil {
			collector.addError(ErrorInfo{Phase: currentPhase, Error: finalErr.Error(), IsFatal: true})
		}
		report = collector.report(startTime, finalErr != nil)
		e.logger.Info("Analysis run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("files", report.Summary.FilesListed),
			slog.Int("records", report.Summary.RecordsAggregated),
			slog.Int("senders", report.Summary.SenderCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Bool("fatalErrorOccurred", report.Summary.FatalErrorOccurred))
		if hookErr := e.hooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	subdirs, err := util.ListSubdirectories(e.opts.DataPath)
	if err != nil {
		return report, fmt.Errorf("%w: listing data path '%s': %w", ErrReadFailed, e.opts.DataPath, err)
	}
	collector.update(func(s *ReportSummary) { s.Directories = len(subdirs) })

	pool, err := e.newPool(e.ctx, e.opts, e.executor, e.workers)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := pool.Shutdown(); err != nil {
			e.logger.Error("Worker pool shutdown failed", slog.String("error", err.Error()))
		}
	}()

	tempDir := e.opts.TemporaryDirectory
	manifestPath := filepath.Join(tempDir, ManifestFileName)
	recordPath := filepath.Join(tempDir, RecordFileName)

	// Phase 1: one EnumerateDirectory task per top-level subdirectory.
	enumTasks := Tasks(slices.Values(subdirs), func(name string) Task {
		return EnumerateDirectory{
			SourcePath: filepath.Join(e.opts.DataPath, name),
			OutputPath: filepath.Join(tempDir, name),
		}
	})
	if err := e.runPhase(pool, PhaseEnumerate, len(subdirs), enumTasks, collector); err != nil {
		return report, err
	}
	// Manifests are synced by their writers; only the directory entries remain.
	if err := util.SyncDirectory(tempDir); err != nil {
		return report, fmt.Errorf("%w: syncing '%s': %w", ErrSharedFile, tempDir, err)
	}

	currentPhase = PhaseReduce
	e.notifyPhase(PhaseReduce, len(subdirs))
	reduceStart := time.Now()
	listed, err := ReduceManifests(subdirs, tempDir, manifestPath, e.logger)
	if err != nil {
		return report, err
	}
	collector.update(func(s *ReportSummary) { s.FilesListed = listed })
	collector.addPhase(PhaseInfo{Phase: PhaseReduce, DurationSeconds: time.Since(reduceStart).Seconds()})

	// Phase 2 starts from an empty record file.
	currentPhase = PhaseParse
	if err := os.Remove(recordPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return report, fmt.Errorf("%w: removing stale record file '%s': %w", ErrSharedFile, recordPath, err)
	}
	manifest, err := os.Open(manifestPath)
	if err != nil {
		return report, fmt.Errorf("%w: opening unified manifest '%s': %w", ErrSharedFile, manifestPath, err)
	}
	entries, scanErr := ManifestEntries(manifest)
	parseTasks := Tasks(entries, func(path string) Task {
		return ParseFile{FilePath: path, OutputDir: tempDir}
	})
	phaseErr := e.runPhase(pool, PhaseParse, listed, parseTasks, collector)
	_ = manifest.Close()
	if phaseErr != nil {
		return report, phaseErr
	}
	if err := scanErr(); err != nil {
		return report, fmt.Errorf("%w: reading unified manifest '%s': %w", ErrSharedFile, manifestPath, err)
	}
	if err := util.SyncDirectory(tempDir, RecordFileName); err != nil {
		return report, fmt.Errorf("%w: syncing '%s': %w", ErrSharedFile, tempDir, err)
	}
	if err := pool.Shutdown(); err != nil {
		e.logger.Warn("Worker pool shutdown reported an error", slog.String("error", err.Error()))
	}

	currentPhase = PhaseAggregate
	e.notifyPhase(PhaseAggregate, 0)
	aggStart := time.Now()
	records, senders, err := e.aggregate(recordPath)
	if err != nil {
		return report, err
	}
	collector.update(func(s *ReportSummary) {
		s.RecordsAggregated = records
		s.SenderCount = senders
	})
	collector.addPhase(PhaseInfo{Phase: PhaseAggregate, DurationSeconds: time.Since(aggStart).Seconds()})
	return report, nil
}

// runPhase dispatches one phase's tasks over the pool and records its outcome.
func (e *Engine) runPhase(pool Pool, phase Phase, total int, tasks iter.Seq[Task], collector *runCollector) error {
	e.notifyPhase(phase, total)
	start := time.Now()
	stats, err := pool.Dispatch(e.ctx, tasks, func(c Completion) {
		if c.Failed() {
			collector.addError(ErrorInfo{Phase: phase, Path: taskPath(c.Task), Error: c.Error, Lost: c.Lost})
		}
		if phase == PhaseParse && !c.Failed() {
			collector.update(func(s *ReportSummary) { s.FilesParsed++ })
		}
		if hookErr := e.hooks.OnTaskComplete(phase, c); hookErr != nil {
			e.logger.Warn("OnTaskComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	})
	collector.addPhase(PhaseInfo{Phase: phase, DurationSeconds: time.Since(start).Seconds(), Stats: stats})
	e.logger.Info("Phase finished",
		slog.String("phase", string(phase)),
		slog.Int("assigned", stats.Assigned),
		slog.Int("failed", stats.Failed),
		slog.Int("lost", stats.Lost),
		slog.Duration("duration", time.Since(start)))
	if err != nil {
		return fmt.Errorf("phase %s aborted: %w", phase, err)
	}
	return nil
}

// aggregate reduces the record file into the final report file.
func (e *Engine) aggregate(recordPath string) (records, senders int, err error) {
	agg := NewAggregator()
	defer agg.Reset()

	in, err := os.Open(recordPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		e.logger.Warn("No records were produced", slog.String("path", recordPath))
	case err != nil:
		return 0, 0, fmt.Errorf("%w: opening record file '%s': %w", ErrSharedFile, recordPath, err)
	default:
		_, readErr := agg.ReadRecords(in)
		_ = in.Close()
		if readErr != nil {
			return 0, 0, fmt.Errorf("%w: %w", ErrSharedFile, readErr)
		}
	}

	if err := WriteReportFile(e.opts.OutputFile, agg, e.opts.ReportFormat); err != nil {
		return 0, 0, err
	}
	e.logger.Debug("Report written", slog.String("path", e.opts.OutputFile), slog.String("format", string(e.opts.ReportFormat)))
	return agg.Records(), agg.SenderCount(), nil
}

func (e *Engine) notifyPhase(phase Phase, total int) {
	e.logger.Info("Phase started", slog.String("phase", string(phase)), slog.Int("total", total))
	if hookErr := e.hooks.OnPhaseStart(phase, total); hookErr != nil {
		e.logger.Warn("OnPhaseStart hook returned an error", slog.String("error", hookErr.Error()))
	}
}

// WriteReportFile writes the aggregate to path, truncating any previous report.
func WriteReportFile(path string, agg *Aggregator, format ReportFormat) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating report '%s': %w", ErrSharedFile, path, err)
	}
	if err := agg.WriteReport(out, format); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: writing report '%s': %w", ErrSharedFile, path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing report '%s': %w", ErrSharedFile, path, err)
	}
	return nil
}
