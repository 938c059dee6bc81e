package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

type fixture struct {
	data, tmp, output string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		data:   filepath.Join(base, "maildir"),
		tmp:    filepath.Join(base, "tmp"),
		output: filepath.Join(base, "report.txt"),
	}
	require.NoError(t, os.MkdirAll(f.data, 0o755))
	require.NoError(t, os.MkdirAll(f.tmp, 0o755))
	return f
}

// createTempConfigFile writes content to a config file named name.
func createTempConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func loadQuiet(t *testing.T, cfgFile string, flags *pflag.FlagSet) (analyzer.Options, *bytes.Buffer, error) {
	t.Helper()
	var logs bytes.Buffer
	opts, logger, err := load(cfgFile, "", "test", false, flags, &logs)
	require.NotNil(t, logger, "a logger is returned even on error")
	return opts, &logs, err
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	f := newFixture(t)
	opts, _, err := loadQuiet(t, "", newFlags(t, "-d", f.data, "-t", f.tmp, "-o", f.output))
	require.NoError(t, err)

	assert.Equal(t, f.data, opts.DataPath)
	assert.Equal(t, f.tmp, opts.TemporaryDirectory)
	assert.Equal(t, f.output, opts.OutputFile)
	assert.Equal(t, analyzer.DefaultCPUCoreMultiplier, opts.CPUCoreMultiplier)
	assert.Equal(t, analyzer.WorkerCount(analyzer.DefaultCPUCoreMultiplier), opts.Workers)
	assert.Equal(t, analyzer.DefaultMethod, opts.Method)
	assert.Equal(t, analyzer.DefaultReportFormat, opts.ReportFormat)
	assert.Equal(t, analyzer.DefaultOutputFormat, opts.OutputFormat)
	assert.True(t, opts.TuiEnabled)
	assert.False(t, opts.Verbose)
	assert.Equal(t, "test", opts.AppVersion)
	assert.NotNil(t, opts.Logger)
	assert.Empty(t, opts.ConfigFilePath)
}

func TestLoadAndValidate_LegacyConfigFile(t *testing.T) {
	f := newFixture(t)
	cfg := createTempConfigFile(t, "analyzer.cfg", fmt.Sprintf(
		"data_path = %s\ntemporary_directory = %s\noutput_file = %s\nis_verbose = yes\ncpu_core_multiplier = 4\n",
		f.data, f.tmp, f.output))

	opts, _, err := loadQuiet(t, cfg, newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, cfg, opts.ConfigFilePath)
	assert.Equal(t, f.data, opts.DataPath)
	assert.Equal(t, f.tmp, opts.TemporaryDirectory)
	assert.Equal(t, f.output, opts.OutputFile)
	assert.True(t, opts.Verbose)
	assert.False(t, opts.TuiEnabled, "verbose output disables the TUI")
	assert.Equal(t, 4, opts.CPUCoreMultiplier)
}

func TestLoadAndValidate_YAMLConfigFile(t *testing.T) {
	f := newFixture(t)
	cfg := createTempConfigFile(t, "mail-analyzer.yaml", fmt.Sprintf(`
data_path: %s
temporary_directory: %s
output_file: %s
method: direct
report_format: toml
header_charset: latin1
tui: false
`, f.data, f.tmp, f.output))

	opts, _, err := loadQuiet(t, cfg, newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, analyzer.MethodDirect, opts.Method)
	assert.Equal(t, analyzer.ReportFormatTOML, opts.ReportFormat)
	assert.Equal(t, "latin1", opts.HeaderCharset)
	assert.False(t, opts.TuiEnabled)
}

func TestLoadAndValidate_Profile(t *testing.T) {
	f := newFixture(t)
	cfg := createTempConfigFile(t, "mail-analyzer.yaml", fmt.Sprintf(`
data_path: %s
temporary_directory: %s
output_file: %s
profiles:
  archive:
    method: process
    cpu_core_multiplier: 1
`, f.data, f.tmp, f.output))

	var logs bytes.Buffer
	opts, _, err := load(cfg, "archive", "test", false, newFlags(t), &logs)
	require.NoError(t, err)
	assert.Equal(t, analyzer.MethodProcess, opts.Method)
	assert.Equal(t, 1, opts.CPUCoreMultiplier)

	_, _, err = load(cfg, "missing", "test", false, newFlags(t), &logs)
	assert.ErrorIs(t, err, analyzer.ErrConfigValidation)
}

func TestLoadAndValidate_EnvVarOverride(t *testing.T) {
	f := newFixture(t)
	t.Setenv("MAILANALYZER_METHOD", "direct")
	t.Setenv("MAILANALYZER_CPU_CORE_MULTIPLIER", "3")

	opts, _, err := loadQuiet(t, "", newFlags(t, "-d", f.data, "-t", f.tmp, "-o", f.output))
	require.NoError(t, err)
	assert.Equal(t, analyzer.MethodDirect, opts.Method)
	assert.Equal(t, 3, opts.CPUCoreMultiplier)
}

func TestLoadAndValidate_Precedence(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	cfg := createTempConfigFile(t, "analyzer.conf", fmt.Sprintf(
		"data_path = %s\ntemporary_directory = %s\noutput_file = %s\ncpu_core_multiplier = 5\n",
		other.data, f.tmp, f.output))
	t.Setenv("MAILANALYZER_CPU_CORE_MULTIPLIER", "6")

	opts, _, err := loadQuiet(t, cfg, newFlags(t, "-d", f.data, "-n", "7", "--method", "direct", "--no-tui"))
	require.NoError(t, err)
	assert.Equal(t, f.data, opts.DataPath, "flag beats config file")
	assert.Equal(t, 7, opts.CPUCoreMultiplier, "flag beats environment")
	assert.Equal(t, analyzer.MethodDirect, opts.Method)
	assert.False(t, opts.TuiEnabled)
}

func TestLoadAndValidate_MultiplierClamped(t *testing.T) {
	f := newFixture(t)
	opts, logs, err := loadQuiet(t, "", newFlags(t, "-d", f.data, "-t", f.tmp, "-o", f.output, "-n", "42"))
	require.NoError(t, err)
	assert.Equal(t, analyzer.MaxCPUCoreMultiplier, opts.CPUCoreMultiplier)
	assert.Contains(t, logs.String(), "level=WARN")

	opts, _, err = loadQuiet(t, "", newFlags(t, "-d", f.data, "-t", f.tmp, "-o", f.output, "-n", "0"))
	require.NoError(t, err)
	assert.Equal(t, analyzer.MinCPUCoreMultiplier, opts.CPUCoreMultiplier)
}

func TestLoadAndValidate_VerboseFlag(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	opts, logger, err := load("", "", "test", true, newFlags(t, "-v", "-d", f.data, "-t", f.tmp, "-o", f.output), &logs)
	require.NoError(t, err)
	assert.True(t, opts.Verbose)
	assert.False(t, opts.TuiEnabled)
	logger.Debug("debug line")
	assert.Contains(t, logs.String(), "debug line")
}

func TestLoadAndValidate_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	notADir := filepath.Join(f.tmp, "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	testCases := []struct {
		name string
		args []string
	}{
		{"missing data path", []string{"-t", f.tmp, "-o", f.output}},
		{"data path does not exist", []string{"-d", filepath.Join(f.data, "nope"), "-t", f.tmp, "-o", f.output}},
		{"data path is a file", []string{"-d", notADir, "-t", f.tmp, "-o", f.output}},
		{"missing temporary directory", []string{"-d", f.data, "-o", f.output}},
		{"missing output", []string{"-d", f.data, "-t", f.tmp}},
		{"output directory missing", []string{"-d", f.data, "-t", f.tmp, "-o", filepath.Join(f.tmp, "a", "b.txt")}},
		{"output is a directory", []string{"-d", f.data, "-t", f.tmp, "-o", f.tmp}},
		{"invalid method", []string{"-d", f.data, "-t", f.tmp, "-o", f.output, "--method", "mq"}},
		{"invalid report format", []string{"-d", f.data, "-t", f.tmp, "-o", f.output, "--report-format", "csv"}},
		{"invalid output format", []string{"-d", f.data, "-t", f.tmp, "-o", f.output, "--output-format", "xml"}},
		{"invalid header charset", []string{"-d", f.data, "-t", f.tmp, "-o", f.output, "--header-charset", "klingon-8"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, logs, err := loadQuiet(t, "", newFlags(t, tc.args...))
			require.Error(t, err)
			assert.ErrorIs(t, err, analyzer.ErrConfigValidation)
			assert.Contains(t, logs.String(), "level=ERROR")
		})
	}
}

func TestLoadAndValidate_ConfigFileErrors(t *testing.T) {
	_, _, err := loadQuiet(t, filepath.Join(t.TempDir(), "absent.yaml"), newFlags(t))
	assert.ErrorIs(t, err, analyzer.ErrConfigValidation)

	broken := createTempConfigFile(t, "broken.yaml", "data_path: [unterminated\n")
	_, _, err = loadQuiet(t, broken, newFlags(t))
	assert.ErrorIs(t, err, analyzer.ErrConfigValidation)
}

func TestParseSwitch(t *testing.T) {
	testCases := []struct {
		in     string
		on, ok bool
	}{
		{"yes", true, true},
		{"YES", true, true},
		{"true", true, true},
		{"1", true, true},
		{"no", false, true},
		{"", false, true},
		{"false", false, true},
		{"maybe", false, false},
	}
	for _, tc := range testCases {
		on, ok := parseSwitch(tc.in)
		assert.Equal(t, tc.on, on, "parseSwitch(%q)", tc.in)
		assert.Equal(t, tc.ok, ok, "parseSwitch(%q) ok", tc.in)
	}
}
