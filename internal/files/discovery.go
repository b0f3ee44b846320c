package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MeasurementExtensions are the file types a batch reads, lower case.
var MeasurementExtensions = []string{".txt", ".csv", ".xlsx", ".xlsm"}

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
	// excludePrefixes hides files whose name starts with one of the prefixes,
	// such as result tables written back into the input directory.
	excludePrefixes []string
}

// NewDiscovery creates a discovery resolving relative directories against
// basePath. Files whose names start with any of exclude are ignored.
func NewDiscovery(basePath string, exclude ...string) *Discovery {
	return &Discovery{basePath: basePath, excludePrefixes: exclude}
}

// FindMeasurementFiles lists the measurement files directly inside dir,
// sorted by name. Subdirectories are not searched.
func (d *Discovery) FindMeasurementFiles(dir string) ([]FileInfo, error) {
	return d.find(dir, IsMeasurementFile)
}

// FindFilesByExtension lists the files in dir with one of the extensions.
func (d *Discovery) FindFilesByExtension(dir string, exts ...string) ([]FileInfo, error) {
	return d.find(dir, func(name string) bool {
		return hasExtension(name, exts)
	})
}

func (d *Discovery) find(dir string, keep func(string) bool) ([]FileInfo, error) {
	fullPath := d.resolve(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !keep(name) || d.excluded(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

func (d *Discovery) excluded(name string) bool {
	for _, p := range d.excludePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// IsMeasurementFile reports whether name has a measurement extension and is
// not an office lock file or hidden file.
func IsMeasurementFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	return hasExtension(name, MeasurementExtensions)
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Paths returns the Path of every file.
func Paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
