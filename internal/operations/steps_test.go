package operations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/internal/dataprocessing"
	"crunchcli/internal/files"
	"crunchcli/pkg/contracts/domain"
)

func fileInfos(dir string, names ...string) []files.FileInfo {
	out := make([]files.FileInfo, len(names))
	for i, name := range names {
		out[i] = files.FileInfo{Path: filepath.Join(dir, name), Name: name}
	}
	return out
}

func TestExtractStep_Execute(t *testing.T) {
	dir := writeBatchDir(t)
	step := NewExtractStep(dataprocessing.NewProcessor(nil), NewBatchTracer(nil, nil))
	state := NewBatchState("b", BatchRequest{
		InputDir:   dir,
		Selections: domain.Selections{hierarchicalName: "Voltage"},
	}, []Step{step})
	state.Files = fileInfos(dir, "VT2816A_m2V5_R10V_CH1.csv", hierarchicalName, "readme.txt")

	require.NoError(t, step.Execute(context.Background(), state))

	require.Len(t, state.Outcomes, 3)
	assert.Equal(t, "readme.txt", state.Outcomes[2].Name)
	assert.Equal(t, domain.FileStatusSkipped, state.Outcomes[2].Status)
	assert.NotEmpty(t, state.Rows)

	st, ok := state.GetStep(StepIDExtract)
	require.True(t, ok)
	snap := st.Snapshot()
	assert.Equal(t, 100.0, snap.Progress)
	assert.Equal(t, 2, snap.Metadata["processed"])
	assert.Equal(t, 1, snap.Metadata["skipped"])
	assert.Equal(t, 0, snap.Metadata["failed"])
}

func TestExtractStep_NoSamplesFailsAtAggregate(t *testing.T) {
	dir := writeBatchDir(t)
	extract := NewExtractStep(dataprocessing.NewProcessor(nil), NewBatchTracer(nil, nil))
	aggregate := NewAggregateStep()
	state := NewBatchState("b", BatchRequest{InputDir: dir}, []Step{extract, aggregate})
	state.Files = fileInfos(dir, "readme.txt")

	require.NoError(t, extract.Execute(context.Background(), state))
	assert.Len(t, state.Outcomes, 1)
	assert.Empty(t, state.Rows)

	err := aggregate.Execute(context.Background(), state)
	assert.ErrorIs(t, err, dataprocessing.ErrNoValidResults)
	assert.NotNil(t, state.Rows)
}

func TestExtractStep_Cancelled(t *testing.T) {
	dir := writeBatchDir(t)
	step := NewExtractStep(dataprocessing.NewProcessor(nil), NewBatchTracer(nil, nil))
	state := NewBatchState("b", BatchRequest{InputDir: dir}, []Step{step})
	state.Files = fileInfos(dir, "VT2816A_m2V5_R10V_CH1.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, step.Execute(ctx, state), context.Canceled)
}
