package dataprocessing

import (
	"io"
	"os"
	"regexp"
	"strconv"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

// Layout names the body-text layout that produced a sample set.
type Layout string

const (
	LayoutNone         Layout = ""
	LayoutHierarchical Layout = "hierarchical"
	LayoutFlatChannel  Layout = "flat_channel"
	LayoutFlat         Layout = "flat"
)

// DefaultChannel is used for flat files that encode no channel anywhere.
const DefaultChannel = 1

var (
	// |  Voltage_Ch01       -2.498169   V   ...
	hierarchicalLinePattern = regexp.MustCompile(`\|\s+(\w+)_Ch(\d+)\s+(-?\d+\.?\d*)\s+(\w+)`)

	// 66.001210   VT2816_1_Ch1::CurVoltage    10.011883
	flatChannelLinePattern = regexp.MustCompile(`^\s*[\d.]+\s+\S+_Ch(\d+)::(\w+)\s+(-?\d+\.?\d*)`)

	// 15.001821   VN1600_1::AIN   0.686400
	flatLinePattern = regexp.MustCompile(`^\s*[\d.]+\s+\S+\s+(-?\d+\.?\d*)\s*$`)
)

// ExtractOptions carries the resolved choices for one text file.
type ExtractOptions struct {
	// MeasurementType keeps only lines with this label. Empty keeps all.
	MeasurementType string

	// FallbackChannel is the channel decoded from the filename, used by the
	// channel-less flat layout. Nil means DefaultChannel.
	FallbackChannel *int
}

// layoutParser is one member of the closed, ordered set of body layouts.
// Each is strictly more permissive than the one before it.
type layoutParser struct {
	layout Layout
	parse  func(lines []string, opts ExtractOptions) domain.ChannelSampleSet
}

var layoutParsers = []layoutParser{
	{layout: LayoutHierarchical, parse: parseHierarchical},
	{layout: LayoutFlatChannel, parse: parseFlatChannel},
	{layout: LayoutFlat, parse: parseFlat},
}

// ExtractSamples reads a text body and returns per-channel samples from the
// first layout that yields any. A body matching no layout gives an empty set
// and LayoutNone, which is not an error.
func ExtractSamples(r io.Reader, opts ExtractOptions) (domain.ChannelSampleSet, Layout, error) {
	lines, err := readLines(r, 0)
	if err != nil {
		return domain.ChannelSampleSet{}, LayoutNone, err
	}
	set, layout := extractLines(lines, opts)
	return set, layout, nil
}

// ExtractFile opens path and runs ExtractSamples on it.
func ExtractFile(path string, opts ExtractOptions) (domain.ChannelSampleSet, Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ChannelSampleSet{}, LayoutNone, errors.NewStorageError("failed to open text file", err).
			WithContext("file", path)
	}
	defer f.Close()

	set, layout, err := ExtractSamples(f, opts)
	if err != nil {
		return set, layout, errors.NewParsingError("failed to read text file", err).
			WithContext("file", path)
	}
	return set, layout, nil
}

func extractLines(lines []string, opts ExtractOptions) (domain.ChannelSampleSet, Layout) {
	for _, p := range layoutParsers {
		if set := p.parse(lines, opts); len(set) > 0 {
			return set, p.layout
		}
	}
	return domain.ChannelSampleSet{}, LayoutNone
}

func parseHierarchical(lines []string, opts ExtractOptions) domain.ChannelSampleSet {
	return parseLabelled(lines, opts, hierarchicalLinePattern, 1, 2, 3)
}

func parseFlatChannel(lines []string, opts ExtractOptions) domain.ChannelSampleSet {
	return parseLabelled(lines, opts, flatChannelLinePattern, 2, 1, 3)
}

// parseLabelled accumulates samples by the channel captured on each line,
// dropping lines whose label differs from the selected one.
func parseLabelled(lines []string, opts ExtractOptions, re *regexp.Regexp, labelIdx, channelIdx, valueIdx int) domain.ChannelSampleSet {
	set := make(domain.ChannelSampleSet)
	for _, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if opts.MeasurementType != "" && m[labelIdx] != opts.MeasurementType {
			continue
		}
		ch, err := strconv.Atoi(m[channelIdx])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(m[valueIdx], 64)
		if err != nil {
			continue
		}
		set[ch] = append(set[ch], v)
	}
	return set
}

func parseFlat(lines []string, opts ExtractOptions) domain.ChannelSampleSet {
	var values []float64
	for _, line := range lines {
		m := flatLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return domain.ChannelSampleSet{}
	}

	ch := DefaultChannel
	if opts.FallbackChannel != nil {
		ch = *opts.FallbackChannel
	}
	return domain.ChannelSampleSet{ch: values}
}
