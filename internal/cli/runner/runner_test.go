package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/mail-analyzer/internal/testutil"
	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

// helperEnv switches the test binary into a fake worker process.
const helperEnv = "MAILANALYZER_RUNNER_HELPER"

const receiveTimeout = 10 * time.Second

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "serve":
		os.Exit(runHelperWorker())
	case "garbage":
		fmt.Println("this is not a completion")
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runHelperWorker serves tasks the way the worker subcommand does. Paths
// containing "bad" fail and paths containing "crash" kill the process.
func runHelperWorker() int {
	id := 0
	if i := slices.Index(os.Args, "--id"); i >= 0 && i+1 < len(os.Args) {
		id, _ = strconv.Atoi(os.Args[i+1])
	}
	exec := testutil.FuncExecutor(func(_ context.Context, task analyzer.Task) error {
		path := analyzer.TaskPath(task)
		switch {
		case strings.Contains(path, "crash"):
			os.Exit(3)
		case strings.Contains(path, "bad"):
			return fmt.Errorf("cannot open %s", path)
		}
		return nil
	})
	if err := analyzer.ServeWorker(context.Background(), os.Stdin, os.Stdout, exec, id, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newHelperTransport(t *testing.T, mode string) *ProcessTransport {
	t.Helper()
	t.Setenv(helperEnv, mode)
	tr := NewProcessTransport(os.Args[0], WorkerArgs(false, ""), nil)
	tr.stderr = io.Discard
	return tr
}

func receive(t *testing.T, ep analyzer.Endpoint) (analyzer.Completion, bool) {
	t.Helper()
	select {
	case c, ok := <-ep.Completions():
		return c, ok
	case <-time.After(receiveTimeout):
		t.Fatal("timed out waiting for a completion")
		return analyzer.Completion{}, false
	}
}

func TestProcessTransport_RoundTrip(t *testing.T) {
	tr := newHelperTransport(t, "serve")
	ep, err := tr.Open(context.Background(), 4)
	require.NoError(t, err)

	require.NoError(t, ep.Send(analyzer.ParseFile{FilePath: "/mail/alice/inbox/1.", OutputDir: "/tmp"}))
	c, ok := receive(t, ep)
	require.True(t, ok)
	assert.Equal(t, 4, c.WorkerID)
	assert.Empty(t, c.Error)

	require.NoError(t, ep.Send(analyzer.ParseFile{FilePath: "/mail/bad/inbox/1.", OutputDir: "/tmp"}))
	c, ok = receive(t, ep)
	require.True(t, ok)
	assert.Equal(t, "cannot open /mail/bad/inbox/1.", c.Error)
	assert.True(t, c.Failed())

	require.NoError(t, ep.Send(analyzer.Shutdown{}))
	_, ok = receive(t, ep)
	assert.False(t, ok, "the completion stream closes after shutdown")
	assert.NoError(t, ep.Close())
	assert.NoError(t, ep.Close(), "Close is idempotent")
}

func TestProcessTransport_SendAfterClose(t *testing.T) {
	tr := newHelperTransport(t, "serve")
	ep, err := tr.Open(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, ep.Close())

	err = ep.Send(analyzer.ParseFile{FilePath: "/mail/1"})
	assert.ErrorIs(t, err, analyzer.ErrTransport)
}

func TestProcessTransport_WorkerCrash(t *testing.T) {
	tr := newHelperTransport(t, "serve")
	ep, err := tr.Open(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, ep.Send(analyzer.ParseFile{FilePath: "/mail/crash/1."}))
	_, ok := receive(t, ep)
	assert.False(t, ok, "a crashed worker closes its completion stream")

	err = ep.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, analyzer.ErrTransport)
	assert.Contains(t, err.Error(), "exited with code 3")
}

func TestProcessTransport_MalformedCompletion(t *testing.T) {
	tr := newHelperTransport(t, "garbage")
	ep, err := tr.Open(context.Background(), 2)
	require.NoError(t, err)

	_, ok := receive(t, ep)
	assert.False(t, ok, "a malformed line ends the completion stream")
	assert.NoError(t, ep.Close())
}

func TestProcessTransport_OpenErrors(t *testing.T) {
	_, err := NewProcessTransport("", nil, nil).Open(context.Background(), 0)
	assert.ErrorIs(t, err, analyzer.ErrTransport)

	_, err = NewProcessTransport("/definitely/not/a/worker", nil, nil).Open(context.Background(), 0)
	assert.ErrorIs(t, err, analyzer.ErrTransport)
}

func TestProcessTransport_WithDispatcher(t *testing.T) {
	tr := newHelperTransport(t, "serve")
	ctx := context.Background()
	pool, err := analyzer.NewDispatcher(ctx, tr, 3, nil)
	require.NoError(t, err)

	tasks := []analyzer.Task{
		analyzer.ParseFile{FilePath: "/mail/a/1."},
		analyzer.ParseFile{FilePath: "/mail/a/2."},
		analyzer.ParseFile{FilePath: "/mail/bad/3."},
		analyzer.ParseFile{FilePath: "/mail/b/4."},
		analyzer.ParseFile{FilePath: "/mail/b/5."},
	}
	var seen []string
	var failed []string
	_, err = pool.Dispatch(ctx, slices.Values(tasks), func(c analyzer.Completion) {
		seen = append(seen, analyzer.TaskPath(c.Task))
		if c.Failed() {
			failed = append(failed, analyzer.TaskPath(c.Task))
		}
	})
	require.NoError(t, err)
	assert.Len(t, seen, len(tasks), "every task completes exactly once")
	assert.Equal(t, []string{"/mail/bad/3."}, failed)

	require.NoError(t, pool.Shutdown())
	assert.NoError(t, pool.Shutdown())
}

func TestWorkerArgs(t *testing.T) {
	assert.Equal(t, []string{"worker", "--id", "3"}, WorkerArgs(false, "")(3))
	assert.Equal(t,
		[]string{"worker", "--id", "0", "--header-charset", "koi8-r", "-v"},
		WorkerArgs(true, "koi8-r")(0))
}

func TestProcessTransport_ContextCancel(t *testing.T) {
	tr := newHelperTransport(t, "serve")
	ctx, cancel := context.WithCancel(context.Background())
	ep, err := tr.Open(ctx, 0)
	require.NoError(t, err)

	cancel()
	_, ok := receive(t, ep)
	assert.False(t, ok, "cancelling the context kills the worker")

	err = ep.Close()
	if err != nil {
		assert.True(t, errors.Is(err, analyzer.ErrTransport))
	}
}
