package analyzer

import "errors"

// --- Exported Error Variables ---
// Callers check against these using errors.Is. Per-item failures are carried
// in Report.Errors; shared-file and configuration failures are returned by Run.

var (
	// ErrConfigValidation indicates that the provided Options failed validation
	// before the pipeline started (missing paths, invalid method, bad multiplier source).
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrReadFailed indicates a failure to open or read a per-item input file
	// (a mail file or a per-subdirectory manifest). The affected task is abandoned.
	ErrReadFailed = errors.New("failed to read file")

	// ErrWriteFailed indicates a failure to create or write a per-item output file.
	ErrWriteFailed = errors.New("failed to write file")

	// ErrSharedFile indicates that a file shared by a whole phase (the unified
	// manifest, the record file, or the final report) could not be opened or written.
	// The current phase aborts when this is returned.
	ErrSharedFile = errors.New("shared file unavailable")

	// ErrLockFailed indicates a non-transient failure acquiring or releasing the
	// exclusive append lock on the record file.
	ErrLockFailed = errors.New("failed to lock record file")

	// ErrTransport indicates that a task or completion could not be exchanged with
	// a worker. The outcome of the affected task is lost.
	ErrTransport = errors.New("worker transport failure")

	// ErrUnknownTask indicates that a worker received a task kind it cannot execute.
	ErrUnknownTask = errors.New("unknown task kind")

	// ErrPoolClosed is returned when dispatching on a pool that was already shut down.
	ErrPoolClosed = errors.New("worker pool already shut down")
)
