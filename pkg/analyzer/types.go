package analyzer

// Method selects how workers are run and how tasks reach them.
type Method string

const (
	// MethodChannel runs a persistent pool of goroutine workers fed through typed channels.
	MethodChannel Method = "channel"
	// MethodProcess runs a persistent pool of child processes fed through their stdin/stdout.
	MethodProcess Method = "process"
	// MethodDirect runs each task in its own goroutine, bounded by the pool size, with no persistent workers.
	MethodDirect Method = "direct"
)

// Phase identifies a stage of the pipeline for hooks and reporting.
type Phase string

const (
	PhaseEnumerate Phase = "enumerate"
	PhaseReduce    Phase = "reduce"
	PhaseParse     Phase = "parse"
	PhaseAggregate Phase = "aggregate"
)

// ReportFormat defines the serialization of the final sender/recipient report.
type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
	ReportFormatTOML ReportFormat = "toml"
)

// OutputFormat defines the format for the run summary printed to standard output when TUI is disabled.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)
