package operations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepState_Lifecycle(t *testing.T) {
	s := NewStepState("extract", "Extract Samples")
	assert.Equal(t, StepStatusPending, s.Status)
	assert.Zero(t, s.Duration())

	s.Start()
	s.UpdateProgress(50, "half")
	s.SetMetadata("files", 4)
	snap := s.Snapshot()
	assert.Equal(t, StepStatusActive, snap.Status)
	assert.Equal(t, 50.0, snap.Progress)
	assert.Equal(t, "half", snap.Message)
	assert.Equal(t, 4, snap.Metadata["files"])

	time.Sleep(2 * time.Millisecond)
	s.Complete()
	snap = s.Snapshot()
	assert.Equal(t, StepStatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Greater(t, s.Duration(), time.Duration(0))

	s.Fail(fmt.Errorf("boom"))
	assert.Equal(t, "boom", s.Snapshot().Error)
}

func TestBatchState_Progress(t *testing.T) {
	steps := []Step{newStub("a"), newStub("b"), newStub("c"), newStub("d")}
	state := NewBatchState("id", BatchRequest{}, steps)

	a, ok := state.GetStep("a")
	require.True(t, ok)
	a.Start()
	a.Complete()
	b, _ := state.GetStep("b")
	b.Start()
	b.Skip("empty")
	c, _ := state.GetStep("c")
	c.Start()
	c.UpdateProgress(50, "")

	assert.InDelta(t, 62.5, state.Progress(), 1e-9)
	assert.Equal(t, "c", state.CurrentStep())

	snap := state.Snapshot()
	assert.Equal(t, 62, snap.Progress)
	assert.Equal(t, string(BatchStatusPending), snap.Status)
	require.Len(t, snap.Steps, 4)
	assert.Equal(t, "skipped", snap.Steps[1].Status)
}

func TestBatchState_Lifecycle(t *testing.T) {
	state := NewBatchState("id", BatchRequest{}, []Step{newStub("a")})
	assert.Equal(t, BatchStatusPending, state.GetStatus())

	state.Start()
	assert.Equal(t, BatchStatusRunning, state.GetStatus())

	state.Finish(WrapStepError("a", context.Canceled))
	assert.Equal(t, BatchStatusCancelled, state.GetStatus())
	require.NotNil(t, state.EndTime)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, BatchStatusCompleted, statusForError(nil))
	assert.Equal(t, BatchStatusFailed, statusForError(fmt.Errorf("x")))
	assert.Equal(t, BatchStatusCancelled, statusForError(WrapStepError("a", context.Canceled)))
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker("extract", 4)
	assert.Equal(t, "calculating...", p.GetETA())

	p.Increment("one")
	current, total, pct, msg := p.GetProgress()
	assert.Equal(t, 1, current)
	assert.Equal(t, 4, total)
	assert.Equal(t, 25.0, pct)
	assert.Equal(t, "one", msg)
	assert.NotEmpty(t, p.GetETA())
}
