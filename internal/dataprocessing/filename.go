package dataprocessing

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"crunchcli/pkg/contracts/domain"
)

var (
	channelPattern = regexp.MustCompile(`(?i)_CH(\d+)`)
	rangePattern   = regexp.MustCompile(`(?i)_R(\d+(?:\.\d+)?)(V|mV|mA|uA|A|ohm|Ohm|kOhm|MOhm)(?:_|$)`)
)

// valueFamily is one member of the ordered chain used to read the test value
// and unit from a filename stem.
//
// notAfter lists the bytes that must not immediately precede the match. RE2 has
// no look-behind, so the guard is applied by hand while scanning.
type valueFamily struct {
	name     string
	unit     domain.Unit
	pattern  *regexp.Regexp
	notAfter string
	convert  func(capture string) (float64, bool)
}

// valueFamilies is tried in order; the first family whose first guarded match
// converts cleanly decides the value. Later families are never consulted.
var valueFamilies = []valueFamily{
	{
		name:     "voltage",
		unit:     domain.UnitVolt,
		pattern:  regexp.MustCompile(`(?i)_([mp]?\d+V\d*)(?:_|$)`),
		notAfter: "Rr",
		convert:  parseEmbeddedVolt,
	},
	{
		name:     "milliampere",
		unit:     domain.UnitMilliAmp,
		pattern:  regexp.MustCompile(`(?i)_([mp]?\d+(?:\.\d+)?)\s*mA(?:_|$)`),
		notAfter: "Rr",
		convert:  parseSigned,
	},
	{
		name:     "microampere",
		unit:     domain.UnitMicroAmp,
		pattern:  regexp.MustCompile(`(?i)_([mp]?\d+(?:\.\d+)?)\s*uA(?:_|$)`),
		notAfter: "Rr",
		convert:  parseSigned,
	},
	{
		name:     "ampere",
		unit:     domain.UnitAmp,
		pattern:  regexp.MustCompile(`(?i)_([mp]?\d+(?:\.\d+)?)\s*A(?:_|$)`),
		notAfter: "RrMmUu",
		convert:  parseSigned,
	},
	{
		name:    "ohm",
		unit:    domain.UnitOhm,
		pattern: regexp.MustCompile(`(?i)_(\d+(?:\.\d+)?)[_\s]?ohms?(?:_|$)`),
		convert: parseUnsigned,
	},
	{
		name:    "generic",
		unit:    domain.UnitUnknown,
		pattern: regexp.MustCompile(`_([mp]?\d+(?:\.\d+)?)_`),
		convert: parseSigned,
	},
}

// DecodeFilename extracts test value, unit, channel and range setting from a
// bare filename. Fields that cannot be decoded are left absent; decoding never
// fails.
//
//	VT2816A_m2V5_R10V_CH3.csv -> -2.5 V, range 10V, channel 3
//	VIO2004_3mA_R10mA_CH1.txt -> 3 mA, range 10mA, channel 1
//	VT2516A_25V_1000x.txt     -> 25 V, no range, no channel
func DecodeFilename(filename string) domain.FileMetadata {
	stem := fileStem(filename)

	var meta domain.FileMetadata

	if m := channelPattern.FindStringSubmatch(stem); m != nil {
		if ch, err := strconv.Atoi(m[1]); err == nil {
			meta.Channel = &ch
		}
	}

	if m := rangePattern.FindStringSubmatch(stem); m != nil {
		r := m[1] + m[2]
		meta.RangeSetting = &r
	}

	if value, unit, ok := decodeValue(stem); ok {
		meta.TestValue = &value
		meta.Unit = unit
	}

	return meta
}

// familyOf reports which pattern family decoded the test value of a
// filename, or "" when none did.
func familyOf(filename string) string {
	stem := fileStem(filename)
	for _, fam := range valueFamilies {
		if _, ok := fam.match(stem); ok {
			return fam.name
		}
	}
	return ""
}

func decodeValue(stem string) (float64, domain.Unit, bool) {
	for _, fam := range valueFamilies {
		if v, ok := fam.match(stem); ok {
			return v, fam.unit, true
		}
	}
	return 0, domain.UnitNone, false
}

func (f valueFamily) match(stem string) (float64, bool) {
	capture, ok := searchGuarded(f.pattern, stem, f.notAfter)
	if !ok {
		return 0, false
	}
	return f.convert(capture)
}

// searchGuarded returns the first capture group of the leftmost match of re in
// s whose preceding byte is not listed in notAfter.
func searchGuarded(re *regexp.Regexp, s, notAfter string) (string, bool) {
	for offset := 0; offset <= len(s); {
		loc := re.FindStringSubmatchIndex(s[offset:])
		if loc == nil {
			return "", false
		}
		start := offset + loc[0]
		if start > 0 && notAfter != "" && strings.IndexByte(notAfter, s[start-1]) >= 0 {
			offset = start + 1
			continue
		}
		if len(loc) < 4 || loc[2] < 0 {
			return "", false
		}
		return s[offset+loc[2] : offset+loc[3]], true
	}
	return "", false
}

// parseSigned reads "[m|p]<number>" where a leading m means negative.
// Only lowercase sign letters are honoured; anything else fails to parse.
func parseSigned(capture string) (float64, bool) {
	sign := 1.0
	switch {
	case strings.HasPrefix(capture, "m"):
		sign = -1
		capture = capture[1:]
	case strings.HasPrefix(capture, "p"):
		capture = capture[1:]
	}
	v, err := strconv.ParseFloat(capture, 64)
	if err != nil {
		return 0, false
	}
	return sign * v, true
}

func parseUnsigned(capture string) (float64, bool) {
	v, err := strconv.ParseFloat(capture, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseEmbeddedVolt reads "[m|p]<digits>V<digits>" where V stands in for the
// decimal point: m2V5 -> -2.5, p7V5 -> 7.5, 10V -> 10.
func parseEmbeddedVolt(capture string) (float64, bool) {
	s := strings.ToLower(capture)
	sign := 1.0
	if strings.HasPrefix(s, "m") {
		sign = -1
	}
	s = strings.TrimLeft(s, "mp")
	s = strings.Replace(s, "v", ".", 1)
	s = strings.TrimSuffix(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return sign * v, true
}

func fileStem(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

// DetectUnit returns the first concrete unit decoded from the given filenames,
// falling back to volts.
func DetectUnit(filenames []string) domain.Unit {
	for _, name := range filenames {
		meta := DecodeFilename(name)
		if meta.Unit != domain.UnitNone && meta.Unit != domain.UnitUnknown {
			return meta.Unit
		}
	}
	return domain.UnitVolt
}
