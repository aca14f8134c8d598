package datapoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vecpipe/vecpipe/codec"
	"github.com/vecpipe/vecpipe/model"
)

var (
	// ErrEmptyID is returned when an entry id coerces to the empty string.
	ErrEmptyID = errors.New("entry id must not be empty")

	// ErrEmptyVector is returned when the dense vector has no components.
	ErrEmptyVector = errors.New("dense vector must not be empty")

	// ErrLengthMismatch is returned when sparse dimensions and values
	// disagree in length.
	ErrLengthMismatch = errors.New("sparse dimensions and values must have equal length")
)

// Assemble combines an identifier, dense vector, optional sparse vector, and
// the projected attributes into a canonical index entry.
//
// The id is coerced to a string and must come out non-empty; the dense
// vector must be non-empty. The sparse vector is attached only when it has
// at least one non-zero bucket, otherwise it is omitted entirely so that
// downstream consumers can tell "no sparse signal" from "empty sparse
// signal".
func Assemble(id any, dense []float32, sparse model.SparseVector, restricts []model.Restriction, numericRestricts []model.NumericRestriction, metadata map[string]any) (model.IndexEntry, error) {
	sid, err := coerceID(id)
	if err != nil {
		return model.IndexEntry{}, err
	}

	if len(dense) == 0 {
		return model.IndexEntry{}, ErrEmptyVector
	}

	if len(sparse.Dimensions) != len(sparse.Values) {
		return model.IndexEntry{}, ErrLengthMismatch
	}

	entry := model.IndexEntry{
		ID:               sid,
		Dense:            dense,
		Restricts:        restricts,
		NumericRestricts: numericRestricts,
		Metadata:         metadata,
	}

	if !sparse.IsEmpty() {
		entry.Sparse = &sparse
	}

	return entry, nil
}

// Parse decodes one serialized entry. Optional fields may be absent and
// default to empty; historical entries use a few alternate field names
// (allow_list for allow, metadata for embedding_metadata) which are accepted
// on read but never written.
func Parse(c codec.Codec, data []byte) (model.IndexEntry, error) {
	if c == nil {
		c = codec.Default
	}

	var w wireEntry
	if err := c.Unmarshal(data, &w); err != nil {
		return model.IndexEntry{}, fmt.Errorf("decode entry: %w", err)
	}

	return w.toEntry()
}

// wireEntry is the storage shape of an index entry, tolerant of the field
// aliases that appear in heterogeneous historical data.
type wireEntry struct {
	ID               json.RawMessage       `json:"id"`
	Embedding        []float32             `json:"embedding"`
	Sparse           *wireSparse           `json:"sparse_embedding"`
	Restricts        []wireRestrict        `json:"restricts"`
	NumericRestricts []wireNumericRestrict `json:"numeric_restricts"`
	Metadata         map[string]any        `json:"embedding_metadata"`
	MetadataAlt      map[string]any        `json:"metadata"`
}

type wireSparse struct {
	Dimensions []int32   `json:"dimensions"`
	Values     []float32 `json:"values"`
}

type wireRestrict struct {
	Namespace string   `json:"namespace"`
	Allow     []string `json:"allow"`
	AllowList []string `json:"allow_list"`
	Deny      []string `json:"deny"`
	DenyList  []string `json:"deny_list"`
}

type wireNumericRestrict struct {
	Namespace  string   `json:"namespace"`
	ValueInt   *int64   `json:"value_int"`
	ValueFloat *float64 `json:"value_float"`
}

func (w wireEntry) toEntry() (model.IndexEntry, error) {
	id, err := DecodeID(w.ID)
	if err != nil {
		return model.IndexEntry{}, err
	}

	if len(w.Embedding) == 0 {
		return model.IndexEntry{}, ErrEmptyVector
	}

	entry := model.IndexEntry{
		ID:       id,
		Dense:    w.Embedding,
		Metadata: w.Metadata,
	}

	if entry.Metadata == nil {
		entry.Metadata = w.MetadataAlt
	}

	if w.Sparse != nil {
		if len(w.Sparse.Dimensions) != len(w.Sparse.Values) {
			return model.IndexEntry{}, ErrLengthMismatch
		}
		sv := model.SparseVector{
			Dimensions: w.Sparse.Dimensions,
			Values:     w.Sparse.Values,
		}
		if !sv.IsEmpty() {
			entry.Sparse = &sv
		}
	}

	for _, r := range w.Restricts {
		allow := r.Allow
		if allow == nil {
			allow = r.AllowList
		}
		deny := r.Deny
		if deny == nil {
			deny = r.DenyList
		}
		if r.Namespace == "" || (len(allow) == 0 && len(deny) == 0) {
			continue
		}
		entry.Restricts = append(entry.Restricts, model.Restriction{
			Namespace: r.Namespace,
			Allow:     allow,
			Deny:      deny,
		})
	}

	for _, nr := range w.NumericRestricts {
		if nr.Namespace == "" || (nr.ValueInt == nil && nr.ValueFloat == nil) {
			continue
		}
		entry.NumericRestricts = append(entry.NumericRestricts, model.NumericRestriction{
			Namespace:  nr.Namespace,
			ValueInt:   nr.ValueInt,
			ValueFloat: nr.ValueFloat,
		})
	}

	return entry, nil
}

// coerceID renders an identifier of any scalar type as a string.
func coerceID(id any) (string, error) {
	var s string
	switch t := id.(type) {
	case nil:
		return "", ErrEmptyID
	case string:
		s = t
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		s = t.String()
	default:
		return "", fmt.Errorf("%w: unsupported id type %T", ErrEmptyID, id)
	}

	if s == "" {
		return "", ErrEmptyID
	}
	return s, nil
}

// DecodeID accepts an id serialized as either a JSON string or number.
// Numeric ids keep their literal form, so 42 and "42" are the same id.
func DecodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyID
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrEmptyID
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("%w: id is neither string nor number", ErrEmptyID)
}
