package dataprocessing

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/internal/errors"
	"crunchcli/internal/shared/testutil"
	"crunchcli/pkg/contracts/domain"
)

func TestDetectMeasurementTypes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "hierarchical",
			body: testutil.HierarchicalBody,
			want: []string{"Current", "Voltage"},
		},
		{
			name: "flat with channel",
			body: testutil.FlatChannelBody,
			want: []string{"AvgVoltage", "CurVoltage"},
		},
		{
			name: "flat channel marker is case insensitive",
			body: "  1.0  VT_1_CH2::Curr  0.5\n",
			want: []string{"Curr"},
		},
		{
			name: "hierarchical wins over flat",
			body: "|  Voltage_Ch01  1.0  V\n  1.0  VT_1_Ch1::Cur  2.0\n",
			want: []string{"Voltage"},
		},
		{
			name: "flat without channel has no labels",
			body: testutil.FlatBody,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMeasurementTypes(strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sorted())
			assert.Equal(t, len(tt.want) > 1, got.Ambiguous())
		})
	}
}

func TestDetectMeasurementTypes_LineLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < DetectLineLimit; i++ {
		b.WriteString("noise\n")
	}
	b.WriteString("|  Voltage_Ch01  1.0  V\n")

	got, err := DetectMeasurementTypes(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildCatalog(t *testing.T) {
	dir := t.TempDir()
	hier := testutil.WriteFile(t, dir, "VT_10V.txt", testutil.HierarchicalBody)
	flat := testutil.WriteFile(t, dir, "VN_5V_CH3.txt", testutil.FlatBody)
	missing := filepath.Join(dir, "gone.txt")

	catalog, failed := BuildCatalog([]string{hier, flat, missing})

	assert.Equal(t, []string{hier}, catalog.AmbiguousFiles())
	assert.NotContains(t, catalog, flat)
	require.Contains(t, failed, missing)
	assert.Equal(t, errors.ErrTypeStorage, errors.TypeOf(failed[missing]))
}

func TestExtractSamples(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		opts       ExtractOptions
		want       domain.ChannelSampleSet
		wantLayout Layout
	}{
		{
			name:       "single hierarchical line",
			body:       "| Voltage_Ch01  -2.498169  V\n",
			want:       domain.ChannelSampleSet{1: {-2.498169}},
			wantLayout: LayoutHierarchical,
		},
		{
			name: "hierarchical filtered by label",
			body: testutil.HierarchicalBody,
			opts: ExtractOptions{MeasurementType: "Voltage"},
			want: domain.ChannelSampleSet{
				1: {-2.498169, -2.499870},
				2: {-2.501004, -2.500310},
			},
			wantLayout: LayoutHierarchical,
		},
		{
			name: "hierarchical without selection keeps every label",
			body: testutil.HierarchicalBody,
			want: domain.ChannelSampleSet{
				1: {-2.498169, 0.000120, -2.499870, 0.000121},
				2: {-2.501004, 0.000118, -2.500310, 0.000119},
			},
			wantLayout: LayoutHierarchical,
		},
		{
			name: "flat with channel filtered by label",
			body: testutil.FlatChannelBody,
			opts: ExtractOptions{MeasurementType: "CurVoltage"},
			want: domain.ChannelSampleSet{
				1: {10.011883, 10.012001},
				2: {10.004120, 10.004500},
			},
			wantLayout: LayoutFlatChannel,
		},
		{
			name:       "flat without channel uses filename channel",
			body:       testutil.FlatBody,
			opts:       ExtractOptions{FallbackChannel: intp(3)},
			want:       domain.ChannelSampleSet{3: {0.6864, 0.6865, 0.6863}},
			wantLayout: LayoutFlat,
		},
		{
			name:       "flat without channel defaults to channel 1",
			body:       testutil.FlatBody,
			want:       domain.ChannelSampleSet{1: {0.6864, 0.6865, 0.6863}},
			wantLayout: LayoutFlat,
		},
		{
			name:       "label filtering everything out falls through to the next layout",
			body:       "|  Voltage_Ch01  1.5  V\n  2.0  VT_1_Ch4::Cur  3.5\n",
			opts:       ExtractOptions{MeasurementType: "Cur"},
			want:       domain.ChannelSampleSet{4: {3.5}},
			wantLayout: LayoutFlatChannel,
		},
		{
			name:       "unrecognised body",
			body:       "hello\nworld\n",
			want:       domain.ChannelSampleSet{},
			wantLayout: LayoutNone,
		},
		{
			name:       "empty body",
			body:       "",
			want:       domain.ChannelSampleSet{},
			wantLayout: LayoutNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, layout, err := ExtractSamples(strings.NewReader(tt.body), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLayout, layout)
		})
	}
}

func TestExtractFile_Missing(t *testing.T) {
	_, layout, err := ExtractFile(filepath.Join(t.TempDir(), "absent.txt"), ExtractOptions{})
	require.Error(t, err)
	assert.Equal(t, LayoutNone, layout)
	assert.Equal(t, errors.ErrTypeStorage, errors.TypeOf(err))
}

func TestExtractFile_OversizedLineIsSkipped(t *testing.T) {
	body := "# " + strings.Repeat("x", MaxLineBytes+1024) + "\n" +
		"15.0 VN1600_1::AIN 1.5\r\n" +
		"15.1 VN1600_1::AIN 2.5"
	path := testutil.WriteFile(t, t.TempDir(), "VN1600_10V_CH3.txt", body)

	ch := 3
	got, layout, err := ExtractFile(path, ExtractOptions{FallbackChannel: &ch})
	require.NoError(t, err)
	assert.Equal(t, LayoutFlat, layout)
	assert.Equal(t, domain.ChannelSampleSet{3: {1.5, 2.5}}, got)

	labels, err := ScanFile(path)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		limit int
		want  []string
	}{
		{name: "empty", body: "", want: nil},
		{name: "no trailing newline", body: "a\nb", want: []string{"a", "b"}},
		{name: "crlf", body: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "blank lines kept", body: "a\n\nb\n", want: []string{"a", "", "b"}},
		{name: "limit", body: "a\nb\nc\n", limit: 2, want: []string{"a", "b"}},
		{name: "oversized line counts as one", body: strings.Repeat("y", MaxLineBytes+1) + "\nz\n", limit: 2, want: []string{"", "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLines(strings.NewReader(tt.body), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
