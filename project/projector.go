package project

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vecpipe/vecpipe/model"
)

// Options configures which record fields a Projector reads.
type Options struct {
	// TextFields are concatenated into the embedding input text.
	TextFields []string

	// MetadataFields are copied verbatim into entry metadata.
	MetadataFields []string

	// RestrictFields become categorical allow filters.
	RestrictFields []string

	// NumericRestrictFields become numeric filters.
	NumericRestrictFields []string

	// TimestampFields within NumericRestrictFields are parsed as
	// timestamps and stored as epoch seconds.
	TimestampFields []string
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	TimestampFields: []string{"created_at", "updated_at"},
}

// Projector derives embedding text, display metadata, and filter clauses
// from raw records. Extraction is driven entirely by the configured field
// lists, never by probing the record shape. All methods are pure and safe
// for concurrent use.
type Projector struct {
	opts Options
}

// New creates a Projector.
func New(optFns ...func(o *Options)) *Projector {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Projector{opts: opts}
}

// Projection bundles everything derived from a single record.
type Projection struct {
	Text             string
	Metadata         map[string]any
	Restricts        []model.Restriction
	NumericRestricts []model.NumericRestriction
}

// Project runs all four extractions against one record.
func (p *Projector) Project(rec model.Record) Projection {
	return Projection{
		Text:             p.Text(rec),
		Metadata:         p.Metadata(rec),
		Restricts:        p.Restricts(rec),
		NumericRestricts: p.NumericRestricts(rec),
	}
}

// Text returns the configured text fields joined by newline.
func (p *Projector) Text(rec model.Record) string {
	return BuildText(rec, p.opts.TextFields)
}

// Metadata returns the configured metadata fields present in the record.
func (p *Projector) Metadata(rec model.Record) map[string]any {
	return BuildMetadata(rec, p.opts.MetadataFields)
}

// Restricts returns categorical filter clauses for the configured fields.
func (p *Projector) Restricts(rec model.Record) []model.Restriction {
	return BuildRestricts(rec, p.opts.RestrictFields)
}

// NumericRestricts returns numeric filter clauses for the configured fields.
func (p *Projector) NumericRestricts(rec model.Record) []model.NumericRestriction {
	return BuildNumericRestricts(rec, p.opts.NumericRestrictFields, p.opts.TimestampFields)
}

// BuildText concatenates the string form of each named field that is present
// and non-empty, joined by newline in configured order. Missing and empty
// fields are skipped, not padded.
func BuildText(rec model.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || isEmpty(v) {
			continue
		}

		s, ok := stringValue(v)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}

		parts = append(parts, s)
	}

	return strings.Join(parts, "\n")
}

// BuildMetadata copies the named fields that are present in the record.
// Absent fields are omitted rather than set to nil; present fields are
// copied even when their value is empty.
func BuildMetadata(rec model.Record, fields []string) map[string]any {
	md := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			md[f] = v
		}
	}

	return md
}

// BuildRestricts emits one allow clause per named field with a non-empty
// value. Array values contribute their stringified non-nil, non-empty
// elements; scalar values contribute a single-element allow list. Fields
// whose allow list comes out empty are dropped.
func BuildRestricts(rec model.Record, fields []string) []model.Restriction {
	restricts := make([]model.Restriction, 0, len(fields))
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || isEmpty(v) {
			continue
		}

		var allow []string
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				if e == nil {
					continue
				}
				if s, ok := stringValue(e); ok && strings.TrimSpace(s) != "" {
					allow = append(allow, s)
				}
			}
		case []string:
			for _, s := range t {
				if strings.TrimSpace(s) != "" {
					allow = append(allow, s)
				}
			}
		default:
			if s, ok := stringValue(v); ok && strings.TrimSpace(s) != "" {
				allow = []string{s}
			}
		}

		if len(allow) == 0 {
			continue
		}

		restricts = append(restricts, model.Restriction{
			Namespace: f,
			Allow:     allow,
		})
	}

	return restricts
}

// BuildNumericRestricts emits one numeric clause per named field with a
// non-empty value. Fields listed in timestampFields are resolved through
// ParseTimestamp first and stored as integer epoch seconds; unparseable
// timestamps are skipped. Other values classify as float clauses when the
// value is a floating type and integer clauses otherwise; values with no
// numeric form are skipped.
func BuildNumericRestricts(rec model.Record, fields, timestampFields []string) []model.NumericRestriction {
	isTimestamp := make(map[string]bool, len(timestampFields))
	for _, f := range timestampFields {
		isTimestamp[f] = true
	}

	restricts := make([]model.NumericRestriction, 0, len(fields))
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || isEmpty(v) {
			continue
		}

		nr := model.NumericRestriction{Namespace: f}

		if isTimestamp[f] {
			epoch, ok := ParseTimestamp(v)
			if !ok {
				continue
			}
			nr.ValueInt = &epoch
			restricts = append(restricts, nr)
			continue
		}

		switch t := v.(type) {
		case float64:
			val := t
			nr.ValueFloat = &val
		case float32:
			val := float64(t)
			nr.ValueFloat = &val
		case int:
			val := int64(t)
			nr.ValueInt = &val
		case int32:
			val := int64(t)
			nr.ValueInt = &val
		case int64:
			val := t
			nr.ValueInt = &val
		case uint:
			val := int64(t)
			nr.ValueInt = &val
		case json.Number:
			if i, err := t.Int64(); err == nil {
				nr.ValueInt = &i
			} else if fl, err := t.Float64(); err == nil {
				nr.ValueFloat = &fl
			} else {
				continue
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				nr.ValueInt = &i
			} else if fl, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				nr.ValueFloat = &fl
			} else {
				continue
			}
		default:
			continue
		}

		restricts = append(restricts, nr)
	}

	return restricts
}

// stringValue renders a scalar as text. It returns false for nil and for
// values with no sensible text form.
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// isEmpty reports whether a field value carries no usable content.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
