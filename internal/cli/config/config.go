// Package config loads the analyzer options from defaults, a configuration
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
	"github.com/stackvity/mail-analyzer/pkg/analyzer/encoding"
	"github.com/stackvity/mail-analyzer/pkg/util"
)

const (
	EnvPrefix         = "MAILANALYZER"
	DefaultConfigName = "mail-analyzer"
)

// Flag names. Keys in flagKeys map them onto configuration keys.
const (
	FlagData          = "data"
	FlagTemp          = "temp"
	FlagOutput        = "output"
	FlagMultiplier    = "multiplier"
	FlagVerbose       = "verbose"
	FlagConfig        = "config"
	FlagProfile       = "profile"
	FlagMethod        = "method"
	FlagReportFormat  = "report-format"
	FlagOutputFormat  = "output-format"
	FlagHeaderCharset = "header-charset"
	FlagNoTUI         = "no-tui"
)

// flagKeys binds each configuration key to the flag that overrides it.
var flagKeys = map[string]string{
	"data_path":           FlagData,
	"temporary_directory": FlagTemp,
	"output_file":         FlagOutput,
	"cpu_core_multiplier": FlagMultiplier,
	"method":              FlagMethod,
	"report_format":       FlagReportFormat,
	"output_format":       FlagOutputFormat,
	"header_charset":      FlagHeaderCharset,
}

// RegisterFlags defines the analyzer flags on flags. The single-letter
// shorthands match the legacy single-letter options.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP(FlagData, "d", "", "Required. Root directory of the mail corpus (one subdirectory per mailbox)")
	flags.StringP(FlagTemp, "t", "", "Required. Existing directory for intermediate manifests and records")
	flags.StringP(FlagOutput, "o", "", "Required. Path of the final report file")
	flags.IntP(FlagMultiplier, "n", analyzer.DefaultCPUCoreMultiplier, "Workers per CPU core (1 to 10)")
	flags.BoolP(FlagVerbose, "v", false, "Enable verbose (debug) logging output (disables TUI)")
	flags.StringP(FlagConfig, "f", "", "Configuration file (yaml, json, toml, or legacy 'key = value' lines)")
	flags.String(FlagProfile, "", "Name of a profile section of the configuration file to apply")
	flags.String(FlagMethod, string(analyzer.DefaultMethod), `Worker method ("channel", "process", "direct")`)
	flags.String(FlagReportFormat, string(analyzer.DefaultReportFormat), `Report file format ("text", "json", "yaml", "toml")`)
	flags.String(FlagOutputFormat, string(analyzer.DefaultOutputFormat), `Run summary format on stdout ("text", "json")`)
	flags.String(FlagHeaderCharset, "", "Charset used to decode header lines that are not valid UTF-8 (e.g. latin1)")
	flags.Bool(FlagNoTUI, false, "Disable interactive Terminal UI even if in a TTY")
}

// LoadAndValidate merges every configuration source, validates the result,
// resolves paths to absolute form and builds the logger. The returned logger
// is usable even when an error is returned.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (analyzer.Options, *slog.Logger, error) {
	return load(cfgFile, profileName, appVersion, verbose, flags, os.Stderr)
}

func load(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet, logOut io.Writer) (analyzer.Options, *slog.Logger, error) {
	var opts analyzer.Options
	v := viper.New()

	tempLevel := slog.LevelInfo
	if verbose {
		tempLevel = slog.LevelDebug
	}
	tempLogger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: tempLevel}))

	setDefaults(v)

	// --- Load Config File ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if !slices.Contains(viper.SupportedExts, strings.TrimPrefix(filepath.Ext(cfgFile), ".")) {
			// Legacy "key = value" files carry no recognized extension.
			v.SetConfigType("properties")
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Error("Failed to get user home directory", slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			configFileUsed := cfgFile
			if configFileUsed == "" {
				configFileUsed = fmt.Sprintf("searched locations for %s.yaml/json/toml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", configFileUsed), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("%w: error reading config file '%s': %w", analyzer.ErrConfigValidation, configFileUsed, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	// --- Apply Profile ---
	if profileName != "" {
		profile := v.Sub("profiles." + profileName)
		if profile == nil {
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", analyzer.ErrConfigValidation, profileName, v.ConfigFileUsed())
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	// --- Bind Environment Variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Bind Flags (Highest Priority) ---
	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", name))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", name), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
		}
	}

	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("%w: error unmarshalling configuration: %w", analyzer.ErrConfigValidation, err)
	}

	// is_verbose keeps the legacy yes/no spelling, so it is read by hand.
	isVerbose, ok := parseSwitch(v.GetString("is_verbose"))
	if !ok {
		tempLogger.Warn("Unrecognized is_verbose value, treating as off", slog.String("value", v.GetString("is_verbose")))
	}
	opts.Verbose = verbose || isVerbose
	if flags.Changed(FlagVerbose) {
		opts.Verbose, _ = flags.GetBool(FlagVerbose)
	}
	if flags.Changed(FlagNoTUI) {
		if noTui, _ := flags.GetBool(FlagNoTUI); noTui {
			opts.TuiEnabled = false
		}
	}

	// --- Setup Final Logger ---
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", profileName),
		slog.String("dataPath", opts.DataPath),
		slog.String("temporaryDirectory", opts.TemporaryDirectory),
		slog.String("outputFile", opts.OutputFile),
		slog.Bool("verbose", opts.Verbose),
		slog.Int("cpuCoreMultiplier", opts.CPUCoreMultiplier),
		slog.Int("workers", opts.Workers),
		slog.String("method", string(opts.Method)),
	)
	return opts, logger, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_path", "")
	v.SetDefault("temporary_directory", "")
	v.SetDefault("output_file", "")
	v.SetDefault("is_verbose", "no")
	v.SetDefault("cpu_core_multiplier", analyzer.DefaultCPUCoreMultiplier)
	v.SetDefault("method", string(analyzer.DefaultMethod))
	v.SetDefault("report_format", string(analyzer.DefaultReportFormat))
	v.SetDefault("output_format", string(analyzer.DefaultOutputFormat))
	v.SetDefault("header_charset", "")
	v.SetDefault("tui", analyzer.DefaultTuiEnabled)
}

// parseSwitch reads a yes/no style value. The second result is false when
// the value is not recognized.
func parseSwitch(value string) (on, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true", "on", "1":
		return true, true
	case "no", "n", "false", "off", "0", "":
		return false, true
	default:
		return false, false
	}
}

func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDeriveOptions checks the merged options and fills derived fields.
func validateAndDeriveOptions(opts *analyzer.Options, logger *slog.Logger) error {
	var err error
	if opts.DataPath, err = requireDirectory(opts.DataPath, "data_path", "-d, --data", logger); err != nil {
		return err
	}
	if opts.TemporaryDirectory, err = requireDirectory(opts.TemporaryDirectory, "temporary_directory", "-t, --temp", logger); err != nil {
		return err
	}

	if opts.OutputFile == "" {
		err := fmt.Errorf("%w: output file is required (-o, --output)", analyzer.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "output_file"))
		return err
	}
	absOutput, err := filepath.Abs(opts.OutputFile)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute output path '%s': %w", analyzer.ErrConfigValidation, opts.OutputFile, err)
		logger.Error(err.Error(), slog.String("key", "output_file"))
		return err
	}
	opts.OutputFile = absOutput
	if !util.ParentDirExists(opts.OutputFile) {
		err := fmt.Errorf("%w: directory of output file '%s' does not exist", analyzer.ErrConfigValidation, opts.OutputFile)
		logger.Error(err.Error(), slog.String("key", "output_file"), slog.String("value", opts.OutputFile))
		return err
	}
	if util.DirectoryExists(opts.OutputFile) {
		err := fmt.Errorf("%w: output file '%s' is a directory", analyzer.ErrConfigValidation, opts.OutputFile)
		logger.Error(err.Error(), slog.String("key", "output_file"), slog.String("value", opts.OutputFile))
		return err
	}

	allowedMethods := []analyzer.Method{analyzer.MethodChannel, analyzer.MethodProcess, analyzer.MethodDirect}
	if !isValidEnumValue(opts.Method, allowedMethods) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'method' (flag --method). Allowed: %v", analyzer.ErrConfigValidation, opts.Method, allowedMethods)
		logger.Error(err.Error(), slog.String("key", "method"), slog.String("value", string(opts.Method)))
		return err
	}
	allowedReportFormats := []analyzer.ReportFormat{analyzer.ReportFormatText, analyzer.ReportFormatJSON, analyzer.ReportFormatYAML, analyzer.ReportFormatTOML}
	if !isValidEnumValue(opts.ReportFormat, allowedReportFormats) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'report_format' (flag --report-format). Allowed: %v", analyzer.ErrConfigValidation, opts.ReportFormat, allowedReportFormats)
		logger.Error(err.Error(), slog.String("key", "report_format"), slog.String("value", string(opts.ReportFormat)))
		return err
	}
	allowedOutputFormats := []analyzer.OutputFormat{analyzer.OutputFormatText, analyzer.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormats) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'output_format' (flag --output-format). Allowed: %v", analyzer.ErrConfigValidation, opts.OutputFormat, allowedOutputFormats)
		logger.Error(err.Error(), slog.String("key", "output_format"), slog.String("value", string(opts.OutputFormat)))
		return err
	}
	if _, err := encoding.NewHeaderDecoder(opts.HeaderCharset); err != nil {
		err = fmt.Errorf("%w: key 'header_charset' (flag --header-charset): %w", analyzer.ErrConfigValidation, err)
		logger.Error(err.Error(), slog.String("key", "header_charset"), slog.String("value", opts.HeaderCharset))
		return err
	}

	if m, changed := analyzer.ClampMultiplier(opts.CPUCoreMultiplier); changed {
		logger.Warn("Invalid CPU core multiplier, clamping into range",
			slog.Int("value", opts.CPUCoreMultiplier),
			slog.Int("min", analyzer.MinCPUCoreMultiplier),
			slog.Int("max", analyzer.MaxCPUCoreMultiplier),
			slog.Int("used", m))
		opts.CPUCoreMultiplier = m
	}
	opts.Workers = analyzer.WorkerCount(opts.CPUCoreMultiplier)

	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose logging requested, disabling TUI")
		opts.TuiEnabled = false
	}
	return nil
}

// requireDirectory resolves path to absolute form and checks it names an
// existing directory.
func requireDirectory(path, key, flagHint string, logger *slog.Logger) (string, error) {
	if path == "" {
		err := fmt.Errorf("%w: %s is required (%s)", analyzer.ErrConfigValidation, key, flagHint)
		logger.Error(err.Error(), slog.String("key", key))
		return path, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute path '%s' for %s: %w", analyzer.ErrConfigValidation, path, key, err)
		logger.Error(err.Error(), slog.String("key", key), slog.String("value", path))
		return path, err
	}
	if !util.DirectoryExists(abs) {
		err := fmt.Errorf("%w: %s '%s' is not an existing directory", analyzer.ErrConfigValidation, key, abs)
		logger.Error(err.Error(), slog.String("key", key), slog.String("value", abs))
		return abs, err
	}
	logger.Debug("Validated directory", slog.String("key", key), slog.String("path", abs))
	return abs, nil
}
