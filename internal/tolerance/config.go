package tolerance

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

const (
	// DefaultFileName is auto-loaded from the input directory when no
	// configuration path is given.
	DefaultFileName = "test_config.json"

	// DefaultTolerance is written into generated templates.
	DefaultTolerance = "0.015"
)

// Key identifies the aggregate rows a configuration entry applies to.
// RangeSetting is "" for files without a range token.
type Key struct {
	TestValue    float64
	RangeSetting string
	IOType       domain.IOType
}

// KeyFor builds the join key of an aggregate row.
func KeyFor(row domain.AggregateRow) Key {
	r := row.RangeSetting
	if r == domain.RangeNotApplicable {
		r = ""
	}
	return Key{TestValue: row.TestValue, RangeSetting: r, IOType: row.IOType}
}

// Less orders keys by test value, I/O type, then range setting.
func (k Key) Less(o Key) bool {
	if k.TestValue != o.TestValue {
		return k.TestValue < o.TestValue
	}
	if k.IOType != o.IOType {
		return k.IOType < o.IOType
	}
	return k.RangeSetting < o.RangeSetting
}

// Limits are the parsed reference values of one entry.
type Limits struct {
	RangeOverride string
	Reference     float64
	Tolerance     float64
}

// Lower returns reference - tolerance.
func (l Limits) Lower() float64 { return l.Reference - l.Tolerance }

// Upper returns reference + tolerance.
func (l Limits) Upper() float64 { return l.Reference + l.Tolerance }

// Config is the read-only tolerance table consumed by the evaluation pass.
type Config struct {
	Unit   domain.Unit
	limits map[Key]Limits
}

// NewConfig returns an empty configuration for unit.
func NewConfig(unit domain.Unit) *Config {
	return &Config{Unit: unit, limits: make(map[Key]Limits)}
}

// Set adds or replaces the limits for key. Negative or non-finite values are
// rejected.
func (c *Config) Set(key Key, limits Limits) error {
	if math.IsNaN(limits.Reference) || math.IsInf(limits.Reference, 0) {
		return errors.NewAppValidationError("reference must be a finite number").
			WithContext("test_value", key.TestValue)
	}
	if math.IsNaN(limits.Tolerance) || math.IsInf(limits.Tolerance, 0) {
		return errors.NewAppValidationError("tolerance must be a finite number").
			WithContext("test_value", key.TestValue)
	}
	if limits.Tolerance < 0 {
		return errors.NewAppValidationError(
			fmt.Sprintf("tolerance for %g %s (%s) must be positive", key.TestValue, c.Unit, key.IOType)).
			WithContext("test_value", key.TestValue).
			WithContext("io_type", string(key.IOType))
	}
	if c.limits == nil {
		c.limits = make(map[Key]Limits)
	}
	c.limits[key] = limits
	return nil
}

// Lookup returns the limits configured for key.
func (c *Config) Lookup(key Key) (Limits, bool) {
	if c == nil {
		return Limits{}, false
	}
	l, ok := c.limits[key]
	return l, ok
}

// Len returns the number of configured keys.
func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return len(c.limits)
}

// Keys returns the configured keys in template order.
func (c *Config) Keys() []Key {
	if c == nil {
		return nil
	}
	keys := make([]Key, 0, len(c.limits))
	for k := range c.limits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// ParseDecimal reads a user-entered number, accepting a decimal comma.
func ParseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// normalizeRangeInput maps "", "N/A" and "n/a" to no override.
func normalizeRangeInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, domain.RangeNotApplicable) {
		return ""
	}
	return s
}
