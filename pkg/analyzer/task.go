package analyzer

import "iter"

// TaskKind names one member of the closed set of task variants.
type TaskKind string

const (
	KindEnumerateDirectory TaskKind = "enumerate_directory"
	KindParseFile          TaskKind = "parse_file"
	KindShutdown           TaskKind = "shutdown"
)

// Task is a self-contained unit of work. The set of implementations is closed:
// EnumerateDirectory, ParseFile and Shutdown are the only variants, and
// executors dispatch on them with a type switch.
type Task interface {
	Kind() TaskKind
	isTask()
}

// EnumerateDirectory lists every non-directory entry under SourcePath into the
// manifest file at OutputPath.
type EnumerateDirectory struct {
	SourcePath string `json:"sourcePath"`
	OutputPath string `json:"outputPath"`
}

// ParseFile parses the mail headers of FilePath and appends one record to the
// shared record file inside OutputDir.
type ParseFile struct {
	FilePath  string `json:"filePath"`
	OutputDir string `json:"outputDir"`
}

// Shutdown asks a worker to leave its run loop. No completion follows it.
type Shutdown struct{}

func (EnumerateDirectory) Kind() TaskKind { return KindEnumerateDirectory }
func (ParseFile) Kind() TaskKind          { return KindParseFile }
func (Shutdown) Kind() TaskKind           { return KindShutdown }

func (EnumerateDirectory) isTask() {}
func (ParseFile) isTask()          {}
func (Shutdown) isTask()           {}

// Tasks binds a work-item source to a task constructor, producing the task
// stream a Pool dispatches. Items are pulled lazily.
func Tasks[T any](items iter.Seq[T], build func(T) Task) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for item := range items {
			if !yield(build(item)) {
				return
			}
		}
	}
}

// Completion is emitted by a worker after each non-Shutdown task.
type Completion struct {
	WorkerID int `json:"workerId"`
	// Task is the task the completion settles. It is filled in by the pool,
	// not carried over the transport.
	Task  Task   `json:"-"`
	Error string `json:"error,omitempty"`
	// Lost marks a completion synthesized by the pool when a worker's
	// completion stream ended or a send failed; the task outcome is unknown.
	Lost bool `json:"lost,omitempty"`
}

// Failed reports whether the task did not complete cleanly.
func (c Completion) Failed() bool { return c.Lost || c.Error != "" }

// taskPath returns the path a task operates on, used for logging and hooks.
func taskPath(t Task) string {
	switch v := t.(type) {
	case EnumerateDirectory:
		return v.SourcePath
	case ParseFile:
		return v.FilePath
	default:
		return ""
	}
}

// TaskPath exposes the input path of a task for callers outside the package.
func TaskPath(t Task) string { return taskPath(t) }
