// Package testutil provides mock implementations of the analyzer interfaces
// and small filesystem helpers for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

// MockHooks provides a mock implementation of the analyzer.Hooks interface.
// testify's mock.Mock is safe for concurrent Called invocations.
type MockHooks struct {
	mock.Mock
}

// OnPhaseStart mocks the OnPhaseStart method.
func (m *MockHooks) OnPhaseStart(phase analyzer.Phase, total int) error {
	args := m.Called(phase, total)
	return args.Error(0)
}

// OnTaskComplete mocks the OnTaskComplete method.
func (m *MockHooks) OnTaskComplete(phase analyzer.Phase, completion analyzer.Completion) error {
	args := m.Called(phase, completion)
	return args.Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report analyzer.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockExecutor provides a mock implementation of the analyzer.Executor interface.
type MockExecutor struct {
	mock.Mock
}

// Execute mocks the Execute method.
func (m *MockExecutor) Execute(ctx context.Context, task analyzer.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// FuncExecutor adapts a plain function to analyzer.Executor.
type FuncExecutor func(ctx context.Context, task analyzer.Task) error

// Execute calls f.
func (f FuncExecutor) Execute(ctx context.Context, task analyzer.Task) error { return f(ctx, task) }

// MockTransport provides a mock implementation of the analyzer.Transport interface.
type MockTransport struct {
	mock.Mock
}

// Open mocks the Open method.
func (m *MockTransport) Open(ctx context.Context, workerID int) (analyzer.Endpoint, error) {
	args := m.Called(ctx, workerID)
	ep, _ := args.Get(0).(analyzer.Endpoint)
	return ep, args.Error(1)
}

// FakeEndpoint is a scriptable analyzer.Endpoint. Every task it receives is
// recorded; Reply decides what, if anything, is sent back for it.
type FakeEndpoint struct {
	mu          sync.Mutex
	Sent        []analyzer.Task
	Reply       func(task analyzer.Task) (analyzer.Completion, bool)
	SendErr     error
	completions chan analyzer.Completion
	closeOnce   sync.Once
}

// NewFakeEndpoint returns an endpoint whose completion stream can buffer
// capacity completions.
func NewFakeEndpoint(capacity int) *FakeEndpoint {
	return &FakeEndpoint{completions: make(chan analyzer.Completion, capacity)}
}

// Send records task and emits the scripted reply, if any.
func (e *FakeEndpoint) Send(task analyzer.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SendErr != nil {
		return e.SendErr
	}
	e.Sent = append(e.Sent, task)
	if _, ok := task.(analyzer.Shutdown); ok {
		return nil
	}
	if e.Reply != nil {
		if c, ok := e.Reply(task); ok {
			e.completions <- c
		}
	}
	return nil
}

// Completions returns the completion stream.
func (e *FakeEndpoint) Completions() <-chan analyzer.Completion { return e.completions }

// Crash closes the completion stream as a dead worker would.
func (e *FakeEndpoint) Crash() { e.closeOnce.Do(func() { close(e.completions) }) }

// Close closes the completion stream.
func (e *FakeEndpoint) Close() error {
	e.Crash()
	return nil
}

// Tasks returns a copy of the tasks received so far.
func (e *FakeEndpoint) Tasks() []analyzer.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]analyzer.Task(nil), e.Sent...)
}
