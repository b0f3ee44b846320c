package dataprocessing

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

const (
	// DetectLineLimit caps how many lines the measurement-type scan reads.
	DetectLineLimit = 500

	// MaxLineBytes bounds a single line. Longer lines are skipped and the
	// rest of the file is still read.
	MaxLineBytes = 4 * 1024 * 1024
)

var (
	hierarchicalLabelPattern = regexp.MustCompile(`\|\s+(\w+)_Ch\d+`)
	flatLabelPattern         = regexp.MustCompile(`(?i)_Ch\d+::(\w+)`)
)

// DetectMeasurementTypes reads at most DetectLineLimit lines and returns the
// distinct measurement-type labels present. The hierarchical layout is tried
// first and wins when it finds anything; otherwise the flat layout is used.
// An empty set means no recognised layout.
func DetectMeasurementTypes(r io.Reader) (domain.LabelSet, error) {
	lines, err := readLines(r, DetectLineLimit)
	if err != nil {
		return domain.NewLabelSet(), err
	}

	labels := collectLabels(lines, hierarchicalLabelPattern)
	if len(labels) > 0 {
		return labels, nil
	}
	return collectLabels(lines, flatLabelPattern), nil
}

// ScanFile runs DetectMeasurementTypes on the file at path.
func ScanFile(path string) (domain.LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.NewLabelSet(), errors.NewStorageError("failed to open text file", err).
			WithContext("file", path)
	}
	defer f.Close()

	labels, err := DetectMeasurementTypes(f)
	if err != nil {
		return labels, errors.NewParsingError("failed to scan text file", err).
			WithContext("file", path)
	}
	return labels, nil
}

// BuildCatalog scans every path and records the files whose label set is
// non-empty. Unreadable files are returned in failed and left out of the
// catalog.
func BuildCatalog(paths []string) (domain.MeasurementTypeCatalog, map[string]error) {
	catalog := make(domain.MeasurementTypeCatalog)
	failed := make(map[string]error)
	for _, p := range paths {
		labels, err := ScanFile(p)
		if err != nil {
			failed[p] = err
			continue
		}
		if len(labels) > 0 {
			catalog[p] = labels
		}
	}
	return catalog, failed
}

func collectLabels(lines []string, re *regexp.Regexp) domain.LabelSet {
	labels := domain.NewLabelSet()
	for _, line := range lines {
		if m := re.FindStringSubmatch(line); m != nil {
			labels.Add(m[1])
		}
	}
	return labels
}

// readLines reads up to limit lines (all lines when limit <= 0). Line
// terminators are dropped as bufio.ScanLines does.
func readLines(r io.Reader, limit int) ([]string, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var lines []string
	for limit <= 0 || len(lines) < limit {
		line, ok, err := nextLine(br)
		if err != nil {
			return lines, fmt.Errorf("read line %d: %w", len(lines)+1, err)
		}
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// nextLine returns the next line of br. A line longer than MaxLineBytes is
// consumed and returned empty. ok is false at end of input.
func nextLine(br *bufio.Reader) (line string, ok bool, err error) {
	var buf []byte
	n := 0
	for {
		chunk, err := br.ReadSlice('\n')
		n += len(chunk)
		if n <= MaxLineBytes {
			buf = append(buf, chunk...)
		}

		switch err {
		case nil:
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if n == 0 {
				return "", false, nil
			}
		default:
			return "", false, err
		}

		if n > MaxLineBytes {
			return "", true, nil
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		buf = bytes.TrimSuffix(buf, []byte("\r"))
		return string(buf), true, nil
	}
}
