package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crunchcli/internal/shared/testutil"
	"crunchcli/internal/tolerance"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const debounce = 50 * time.Millisecond

// startWatcher runs a watcher over dir and returns its run counter. The
// watcher is stopped and awaited at cleanup.
func startWatcher(t *testing.T, dir string, fail bool) *atomic.Int32 {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	var runs atomic.Int32
	w := New(dir, debounce, func(context.Context) error {
		runs.Add(1)
		if fail {
			return errors.New("boom")
		}
		return nil
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Let the watch register before the test touches dir.
	time.Sleep(debounce)
	return &runs
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	runs := startWatcher(t, dir, false)

	testutil.WriteFile(t, dir, "a_CH1.csv", "Time,Voltage\n0,1\n")
	testutil.WriteFile(t, dir, "b.txt", testutil.FlatBody)
	testutil.WriteFile(t, dir, "a_CH1.csv", "Time,Voltage\n0,1\n1,2\n")

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * debounce)
	assert.Equal(t, int32(1), runs.Load())

	testutil.WriteFile(t, dir, tolerance.DefaultFileName, `{"unit":"V","configurations":[]}`)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	runs := startWatcher(t, dir, false)

	testutil.WriteFile(t, dir, "crunch_results.csv", "Channel\n")
	testutil.WriteFile(t, dir, "notes.md", "hello")
	testutil.WriteFile(t, dir, ".hidden.txt", "x")

	time.Sleep(4 * debounce)
	assert.Zero(t, runs.Load())
}

func TestWatcher_KeepsWatchingAfterFailedRun(t *testing.T) {
	dir := t.TempDir()
	runs := startWatcher(t, dir, true)

	testutil.WriteFile(t, dir, "one.txt", testutil.FlatBody)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	testutil.WriteFile(t, dir, "two.txt", testutil.FlatBody)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(t.TempDir()+"/absent", 0, func(context.Context) error { return nil }, nil)
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
