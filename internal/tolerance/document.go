package tolerance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

// Entry is one persisted configuration line. Reference and Tolerance stay
// strings so that hand-edited files may use a decimal comma.
type Entry struct {
	TestValue    float64       `json:"test_value" yaml:"test_value"`
	RangeSetting *string       `json:"range_setting" yaml:"range_setting"`
	IOType       domain.IOType `json:"io_type" yaml:"io_type" validate:"required,oneof=Input Output"`
	RangeInput   string        `json:"range_input" yaml:"range_input"`
	Reference    string        `json:"reference" yaml:"reference" validate:"required,decimal"`
	Tolerance    string        `json:"tolerance" yaml:"tolerance" validate:"required,decimal"`
}

// Key returns the join key of the entry.
func (e Entry) Key() Key {
	k := Key{TestValue: e.TestValue, IOType: e.IOType}
	if e.RangeSetting != nil {
		k.RangeSetting = *e.RangeSetting
	}
	return k
}

// Document is the persisted tolerance configuration.
type Document struct {
	Unit           domain.Unit `json:"unit" yaml:"unit"`
	Configurations []Entry     `json:"configurations" yaml:"configurations" validate:"dive"`
}

// Format selects the encoding of a persisted document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension. Anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("decimal", isDecimal)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func isDecimal(fl validator.FieldLevel) bool {
	_, err := ParseDecimal(fl.Field().String())
	return err == nil
}

// Decode parses a persisted document.
func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&doc)
	}
	if err != nil {
		return Document{}, errors.NewConfigError("failed to decode tolerance configuration", err).
			WithContext("format", string(format))
	}
	return doc, nil
}

// Build validates doc and converts it into a Config. Every invalid entry is
// reported; the first failure aborts the build.
func Build(doc Document) (*Config, error) {
	if err := validate.Struct(doc); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
		}
		return nil, errors.NewConfigError("invalid tolerance configuration", err).
			WithContext("fields", fields)
	}

	cfg := NewConfig(doc.Unit)
	for i, e := range doc.Configurations {
		ref, _ := ParseDecimal(e.Reference)
		tol, _ := ParseDecimal(e.Tolerance)
		limits := Limits{
			RangeOverride: normalizeRangeInput(e.RangeInput),
			Reference:     ref,
			Tolerance:     tol,
		}
		if err := cfg.Set(e.Key(), limits); err != nil {
			return nil, errors.NewConfigError("invalid tolerance configuration", err).
				WithContext("entry", i)
		}
	}
	return cfg, nil
}

// Parse decodes and builds a configuration in one step.
func Parse(data []byte, format Format) (*Config, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Load reads a configuration file, choosing the encoding from its extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewStorageError("failed to read tolerance configuration", err).
			WithContext("path", path)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			appErr.WithContext("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads DefaultFileName from dir when it exists. A missing file
// gives a nil Config and no error.
func LoadDefault(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("failed to stat tolerance configuration", err).
			WithContext("path", path)
	}
	return Load(path)
}

// Encode renders doc in the given format. JSON uses two-space indentation.
func Encode(doc Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Save writes doc to path in the encoding chosen by its extension.
func Save(path string, doc Document) error {
	data, err := Encode(doc, FormatFor(path))
	if err != nil {
		return errors.NewConfigError("failed to encode tolerance configuration", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewStorageError("failed to write tolerance configuration", err).
			WithContext("path", path)
	}
	return nil
}

// Document converts cfg back into its persisted form.
func (c *Config) Document() Document {
	doc := Document{Unit: c.Unit}
	for _, k := range c.Keys() {
		l := c.limits[k]
		doc.Configurations = append(doc.Configurations, newEntry(k,
			l.RangeOverride,
			strconv.FormatFloat(l.Reference, 'g', -1, 64),
			strconv.FormatFloat(l.Tolerance, 'g', -1, 64)))
	}
	return doc
}

// Template returns a document with one entry per key. The reference defaults
// to the test value, the tolerance to DefaultTolerance and the range input to
// the decoded range.
func Template(keys []Key, unit domain.Unit) Document {
	sorted := append([]Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	doc := Document{Unit: unit, Configurations: make([]Entry, 0, len(sorted))}
	for _, k := range sorted {
		rangeInput := k.RangeSetting
		if rangeInput == "" {
			rangeInput = domain.RangeNotApplicable
		}
		doc.Configurations = append(doc.Configurations,
			newEntry(k, rangeInput, strconv.FormatFloat(k.TestValue, 'g', 6, 64), DefaultTolerance))
	}
	return doc
}

// Merge overlays the entries of cfg onto doc for keys present in both, the
// way an existing configuration pre-fills a fresh template.
func Merge(doc Document, cfg *Config) Document {
	if cfg == nil {
		return doc
	}
	out := Document{Unit: doc.Unit, Configurations: make([]Entry, len(doc.Configurations))}
	for i, e := range doc.Configurations {
		if l, ok := cfg.Lookup(e.Key()); ok {
			rangeInput := l.RangeOverride
			if rangeInput == "" {
				rangeInput = domain.RangeNotApplicable
			}
			e.RangeInput = rangeInput
			e.Reference = strconv.FormatFloat(l.Reference, 'g', -1, 64)
			e.Tolerance = strconv.FormatFloat(l.Tolerance, 'g', -1, 64)
		}
		out.Configurations[i] = e
	}
	return out
}

func newEntry(k Key, rangeInput, reference, tolerance string) Entry {
	e := Entry{
		TestValue:  k.TestValue,
		IOType:     k.IOType,
		RangeInput: rangeInput,
		Reference:  reference,
		Tolerance:  tolerance,
	}
	if k.RangeSetting != "" {
		r := k.RangeSetting
		e.RangeSetting = &r
	}
	return e
}
