package dataprocessing

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/internal/shared/testutil"
	"crunchcli/internal/tolerance"
	"crunchcli/pkg/contracts/domain"
)

func TestProcessor_Process(t *testing.T) {
	dir := t.TempDir()
	csv1 := testutil.WriteCSV(t, dir, "VT2816A_m2V5_R10V_CH1.csv", []string{"Time", "Voltage"},
		[]string{"0", "-2.5"}, []string{"1", "-2.5"})
	csv2 := testutil.WriteCSV(t, dir, "VT2816A_m2V5_R10V_CH1_rep.csv", []string{"Time", "Voltage"},
		[]string{"0", "-2.4"})
	noCh := testutil.WriteCSV(t, dir, "VT2816A_m2V5_R10V.csv", []string{"Voltage"}, []string{"1"})
	hier := testutil.WriteFile(t, dir, "VT2816A_m2V5_R10V_1000x.txt", testutil.HierarchicalBody)
	flat := testutil.WriteFile(t, dir, "VN1600_p7V5_CH3.txt", testutil.FlatBody)
	junk := testutil.WriteFile(t, dir, "VN1600_5V_CH2.txt", "nothing to see\n")
	noValue := testutil.WriteFile(t, dir, "readme.txt", testutil.FlatBody)
	other := testutil.WriteFile(t, dir, "VT_1V_CH1.json", "{}")
	missing := filepath.Join(dir, "VT_1V_CH9.txt")

	logger, handler := testutil.NewTestLogger(t)
	p := NewProcessor(logger)

	result, err := p.Process(context.Background(),
		[]string{csv1, csv2, noCh, hier, flat, junk, noValue, other, missing},
		domain.Selections{"VT2816A_m2V5_R10V_1000x.txt": "Voltage"},
		nil,
	)
	require.NoError(t, err)

	statuses := make(map[string]domain.FileStatus)
	reasons := make(map[string]string)
	for _, f := range result.Files {
		statuses[f.Name] = f.Status
		reasons[f.Name] = f.Reason
	}
	assert.Equal(t, domain.FileStatusProcessed, statuses["VT2816A_m2V5_R10V_CH1.csv"])
	assert.Equal(t, domain.FileStatusProcessed, statuses["VT2816A_m2V5_R10V_CH1_rep.csv"])
	assert.Equal(t, domain.FileStatusSkipped, statuses["VT2816A_m2V5_R10V.csv"])
	assert.Equal(t, ReasonNoChannel, reasons["VT2816A_m2V5_R10V.csv"])
	assert.Equal(t, domain.FileStatusProcessed, statuses["VT2816A_m2V5_R10V_1000x.txt"])
	assert.Equal(t, domain.FileStatusProcessed, statuses["VN1600_p7V5_CH3.txt"])
	assert.Equal(t, ReasonNoMeasurements, reasons["VN1600_5V_CH2.txt"])
	assert.Equal(t, ReasonNoTestValue, reasons["readme.txt"])
	assert.Equal(t, ReasonUnsupported, reasons["VT_1V_CH1.json"])
	assert.Equal(t, domain.FileStatusFailed, statuses["VT_1V_CH9.txt"])

	processed, skipped, failed := result.Counts()
	assert.Equal(t, 4, processed)
	assert.Equal(t, 4, skipped)
	assert.Equal(t, 1, failed)

	require.Len(t, result.Rows, 4)

	out := result.Rows[0]
	assert.Equal(t, domain.GroupKey{Channel: 1, IOType: domain.IOTypeInput, RangeSetting: "10V", TestValue: -2.5}, out.Key())
	assert.Equal(t, 2, out.Samples)

	merged := result.Rows[1]
	assert.Equal(t, domain.GroupKey{Channel: 1, IOType: domain.IOTypeOutput, RangeSetting: "10V", TestValue: -2.5}, merged.Key())
	assert.Equal(t, 3, merged.Samples)
	assert.InDelta(t, -2.4666666666, merged.Mean, 1e-9)

	assert.Equal(t, 2, result.Rows[2].Channel)
	assert.Equal(t, domain.GroupKey{Channel: 3, IOType: domain.IOTypeInput, RangeSetting: "N/A", TestValue: 7.5}, result.Rows[3].Key())
	assert.Equal(t, 3, result.Rows[3].Samples)

	testutil.AssertLogAttr(t, handler, "component", "batch_processor")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "file skipped")
	testutil.AssertLogContains(t, handler, slog.LevelError, "file failed")
}

func TestProcessor_NoValidResults(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteCSV(t, dir, "notes.csv", []string{"Voltage"}, []string{"1"})
	b := testutil.WriteFile(t, dir, "readme.txt", testutil.FlatBody)

	result, err := NewProcessor(nil).Process(context.Background(), []string{a, b}, nil, nil)

	assert.ErrorIs(t, err, ErrNoValidResults)
	assert.Empty(t, result.Rows)
	assert.Len(t, result.Files, 2)
}

func TestProcessor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "VN_5V_CH1.txt", testutil.FlatBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessor(nil).Process(ctx, []string{a}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_ThenEvaluate(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "VN_10V_CH1.txt",
		"  1.0  DEV::AIN  10.0\n  2.0  DEV::AIN  10.0\n  3.0  DEV::AIN  10.0\n")

	result, err := NewProcessor(nil).Process(context.Background(), []string{path}, nil, nil)
	require.NoError(t, err)

	cfg := tolerance.NewConfig(domain.UnitVolt)
	require.NoError(t, cfg.Set(tolerance.Key{TestValue: 10, IOType: domain.IOTypeInput}, tolerance.Limits{Reference: 10, Tolerance: 0.2}))

	rows := Evaluate(result.Rows, cfg)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Tolerance.MeanCheck)
	assert.True(t, rows[0].Tolerance.MeanTwoSigmaCheck)
}

func TestCollectConfigKeys(t *testing.T) {
	keys := CollectConfigKeys([]string{
		"/d/VT_10V_R10V_CH1.csv",
		"/d/VT_10V_R10V_CH2.csv",
		"/d/VT_10V_R10V.csv",
		"/d/VT_10V_1000x.txt",
		"/d/VT_m2V5_CH1.txt",
		"/d/readme.txt",
		"/d/VT_1V_CH1.json",
	})

	assert.Equal(t, []tolerance.Key{
		{TestValue: -2.5, IOType: domain.IOTypeInput},
		{TestValue: 10, IOType: domain.IOTypeInput},
		{TestValue: 10, RangeSetting: "10V", IOType: domain.IOTypeOutput},
	}, keys)
}

func TestIOTypeFor(t *testing.T) {
	io, ok := IOTypeFor("a.TXT")
	assert.True(t, ok)
	assert.Equal(t, domain.IOTypeInput, io)

	io, ok = IOTypeFor("a.xlsx")
	assert.True(t, ok)
	assert.Equal(t, domain.IOTypeOutput, io)

	_, ok = IOTypeFor("a.json")
	assert.False(t, ok)
}
