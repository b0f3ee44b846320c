package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestFindMeasurementFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"VT_m2V5_CH1.csv", "VN_10V.txt", "VT_1V_CH2.XLSX", "VT_1V_CH3.xlsm",
		"notes.md", "test_config.json", "~$VT_1V_CH2.xlsx", ".hidden.txt",
		"crunch_results.csv",
	} {
		touch(t, dir, name)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	got, err := NewDiscovery("", "crunch_results").FindMeasurementFiles(dir)
	require.NoError(t, err)

	names := make([]string, len(got))
	for i, f := range got {
		names[i] = f.Name
		assert.Equal(t, filepath.Join(dir, f.Name), f.Path)
	}
	assert.Equal(t, []string{"VN_10V.txt", "VT_1V_CH2.XLSX", "VT_1V_CH3.xlsm", "VT_m2V5_CH1.csv"}, names)
}

func TestFindMeasurementFiles_RelativeToBase(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "run1"), 0o755))
	touch(t, filepath.Join(base, "run1"), "VN_5V.txt")

	got, err := NewDiscovery(base).FindMeasurementFiles("run1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join(base, "run1", "VN_5V.txt"), got[0].Path)
	assert.Equal(t, []string{got[0].Path}, Paths(got))
}

func TestFindMeasurementFiles_MissingDir(t *testing.T) {
	_, err := NewDiscovery("").FindMeasurementFiles(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.txt")
	touch(t, dir, "b.csv")
	touch(t, dir, "c.TXT")

	got, err := NewDiscovery("").FindFilesByExtension(dir, ".txt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].Name)
	assert.Equal(t, "c.TXT", got[1].Name)
}

func TestIsMeasurementFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"VT_1V.txt", true},
		{"VT_1V.Csv", true},
		{"VT_1V.xlsx", true},
		{"VT_1V.xls", false},
		{"~$VT_1V.xlsx", false},
		{".VT_1V.txt", false},
		{"VT_1V", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMeasurementFile(tt.name))
		})
	}
}
