package analyzer

// Defaults used when setting up Viper defaults in the configuration loading process.
const (
	// DefaultCPUCoreMultiplier is multiplied by runtime.NumCPU() to size the worker pool.
	DefaultCPUCoreMultiplier = 2
	// MinCPUCoreMultiplier and MaxCPUCoreMultiplier bound the accepted multiplier.
	MinCPUCoreMultiplier = 1
	MaxCPUCoreMultiplier = 10
	// DefaultMethod is the default worker transport.
	DefaultMethod = MethodChannel
	// DefaultReportFormat is the default format of the final report file.
	DefaultReportFormat = ReportFormatText
	// DefaultOutputFormat is the default format for the run summary.
	DefaultOutputFormat = OutputFormatText
	// DefaultTuiEnabled is the default state for the Terminal UI.
	DefaultTuiEnabled = true
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
)

// Names of the files the pipeline owns inside the temporary directory.
const (
	// ManifestFileName is the unified manifest produced by the manifest reducer.
	ManifestFileName = "step1_output"
	// RecordFileName is the shared record file appended by parse workers.
	RecordFileName = "step2_output"
)

// ReportSchemaVersion indicates the version of the JSON run summary structure.
const ReportSchemaVersion = "1.0"
