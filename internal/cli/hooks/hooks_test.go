package hooks

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

type MockTUIProgram struct {
	mock.Mock
}

// Send mocks the Send method.
func (m *MockTUIProgram) Send(msg interface{}) {
	m.Called(msg)
}

type MockProgressBar struct {
	mock.Mock
}

func (m *MockProgressBar) Add(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProgressBar) Describe(description string) { m.Called(description) }
func (m *MockProgressBar) ChangeMax(newMax int)        { m.Called(newMax) }
func (m *MockProgressBar) Reset()                      { m.Called() }

func (m *MockProgressBar) Close() error {
	args := m.Called()
	return args.Error(0)
}

func jsonLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

var parsed = analyzer.Completion{WorkerID: 2, Task: analyzer.ParseFile{FilePath: "/mail/1.", OutputDir: "/tmp"}}

func TestCLIHooks_TUI(t *testing.T) {
	tui := new(MockTUIProgram)
	tui.On("Send", PhaseStartMsg{Phase: analyzer.PhaseParse, Total: 12}).Once()
	tui.On("Send", TaskCompleteMsg{Phase: analyzer.PhaseParse, Path: "/mail/1.", WorkerID: 2}).Once()
	tui.On("Send", mock.AnythingOfType("RunCompleteMsg")).Once()

	var logs bytes.Buffer
	h := NewCLIHooks(jsonLogger(&logs, slog.LevelDebug), true, false, tui, nil)
	require.NoError(t, h.OnPhaseStart(analyzer.PhaseParse, 12))
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, parsed))
	require.NoError(t, h.OnRunComplete(analyzer.Report{}))

	tui.AssertExpectations(t)
	assert.Empty(t, logs.String(), "the TUI owns the terminal")
}

func TestCLIHooks_Verbose(t *testing.T) {
	tui := new(MockTUIProgram)
	var logs bytes.Buffer
	h := NewCLIHooks(jsonLogger(&logs, slog.LevelDebug), false, true, tui, nil)

	require.NoError(t, h.OnPhaseStart(analyzer.PhaseEnumerate, 3))
	assert.Contains(t, logs.String(), `"msg":"Phase starting"`)
	assert.Contains(t, logs.String(), `"phase":"enumerate"`)

	logs.Reset()
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, parsed))
	assert.Contains(t, logs.String(), `"level":"DEBUG"`)
	assert.Contains(t, logs.String(), `"path":"/mail/1."`)

	logs.Reset()
	failed := parsed
	failed.Error = "permission denied"
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, failed))
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), `"error":"permission denied"`)

	tui.AssertNotCalled(t, "Send", mock.Anything)
}

func TestCLIHooks_ProgressBar(t *testing.T) {
	bar := new(MockProgressBar)
	bar.On("Reset").Twice()
	bar.On("ChangeMax", 5).Once()
	bar.On("ChangeMax", -1).Once()
	bar.On("Describe", "parse").Once()
	bar.On("Describe", "aggregate").Once()
	bar.On("Add", 1).Return(nil).Twice()
	bar.On("Close").Return(errors.New("already closed")).Once()

	var logs, out bytes.Buffer
	h := NewCLIHooks(jsonLogger(&logs, slog.LevelInfo), false, false, nil, bar)
	h.out = &out

	require.NoError(t, h.OnPhaseStart(analyzer.PhaseParse, 5))
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, parsed))
	assert.Empty(t, logs.String())

	lost := parsed
	lost.Lost = true
	lost.Error = "worker completion stream closed"
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, lost))
	assert.Contains(t, logs.String(), `"msg":"Task lost with its worker"`)

	require.NoError(t, h.OnPhaseStart(analyzer.PhaseAggregate, 0))
	require.NoError(t, h.OnRunComplete(analyzer.Report{}), "hook errors are swallowed")
	assert.Equal(t, "\n", out.String())
	bar.AssertExpectations(t)
}

func TestCLIHooks_Plain(t *testing.T) {
	var logs bytes.Buffer
	h := NewCLIHooks(jsonLogger(&logs, slog.LevelInfo), false, false, nil, nil)

	require.NoError(t, h.OnPhaseStart(analyzer.PhaseParse, 5))
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, parsed))
	assert.Empty(t, logs.String(), "successful tasks are silent")

	failed := parsed
	failed.Error = "boom"
	require.NoError(t, h.OnTaskComplete(analyzer.PhaseParse, failed))
	assert.Contains(t, logs.String(), `"msg":"Task failed"`)
	require.NoError(t, h.OnRunComplete(analyzer.Report{}))
}
