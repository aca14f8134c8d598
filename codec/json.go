package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Index entries and metadata records are map-like structures for which JSON
// is stable and portable, and it is the only format the external search
// service accepts for line-delimited entry files.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
var Default Codec = JSON{}
