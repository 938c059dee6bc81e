package analyzer

import (
	"sync"
	"time"
)

// Report summarizes a single analysis run.
type Report struct {
	Summary ReportSummary `json:"summary"`
	Phases  []PhaseInfo   `json:"phases"`
	Errors  []ErrorInfo   `json:"errors"`
}

// ReportSummary contains aggregated statistics for a run.
type ReportSummary struct {
	RunID              string    `json:"runId"`
	DataPath           string    `json:"dataPath"`
	TemporaryDirectory string    `json:"temporaryDirectory"`
	OutputFile         string    `json:"outputFile"`
	ConfigFilePath     string    `json:"configFilePath,omitempty"`
	Method             Method    `json:"method"`
	Workers            int       `json:"workers"`
	Directories        int       `json:"directories"`
	FilesListed        int       `json:"filesListed"`
	FilesParsed        int       `json:"filesParsed"`
	RecordsAggregated  int       `json:"recordsAggregated"`
	SenderCount        int       `json:"senderCount"`
	ErrorCount         int       `json:"errorCount"`
	LostCount          int       `json:"lostCount"`
	FatalErrorOccurred bool      `json:"fatalError"`
	DurationSeconds    float64   `json:"durationSeconds"`
	Timestamp          time.Time `json:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion,omitempty"`
}

// PhaseInfo records the timing and task counts of one phase.
type PhaseInfo struct {
	Phase           Phase         `json:"phase"`
	DurationSeconds float64       `json:"durationSeconds"`
	Stats           DispatchStats `json:"stats"`
}

// ErrorInfo details a non-fatal error, or the fatal one that ended the run.
type ErrorInfo struct {
	Phase   Phase  `json:"phase"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error"`
	Lost    bool   `json:"lost,omitempty"`
	IsFatal bool   `json:"isFatal"`
}

// runCollector accumulates report data during a run. Completion callbacks may
// arrive from several goroutines, so every method locks.
type runCollector struct {
	mu      sync.Mutex
	summary ReportSummary
	phases  []PhaseInfo
	errors  []ErrorInfo
}

func newRunCollector(summary ReportSummary) *runCollector {
	return &runCollector{summary: summary}
}

func (c *runCollector) addError(info ErrorInfo) {
	c.mu.Lock()
	c.errors = append(c.errors, info)
	if info.Lost {
		c.summary.LostCount++
	}
	c.mu.Unlock()
}

func (c *runCollector) addPhase(info PhaseInfo) {
	c.mu.Lock()
	c.phases = append(c.phases, info)
	c.mu.Unlock()
}

func (c *runCollector) update(fn func(s *ReportSummary)) {
	c.mu.Lock()
	fn(&c.summary)
	c.mu.Unlock()
}

// report compiles the final Report, copying internal slices.
func (c *runCollector) report(startTime time.Time, fatal bool) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := c.summary
	summary.ErrorCount = len(c.errors)
	summary.FatalErrorOccurred = fatal
	summary.DurationSeconds = time.Since(startTime).Seconds()
	summary.Timestamp = time.Now().UTC()
	summary.SchemaVersion = ReportSchemaVersion

	phases := make([]PhaseInfo, len(c.phases))
	copy(phases, c.phases)
	errs := make([]ErrorInfo, len(c.errors))
	copy(errs, c.errors)
	return Report{Summary: summary, Phases: phases, Errors: errs}
}
