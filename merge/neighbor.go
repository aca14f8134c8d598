package merge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vecpipe/vecpipe/datapoint"
	"github.com/vecpipe/vecpipe/model"
)

// ErrUnknownNeighborShape is returned when a raw neighbor record matches
// neither of the two known result shapes.
var ErrUnknownNeighborShape = errors.New("unrecognized neighbor shape")

// rawNeighbor covers both neighbor shapes the vector-search service is
// known to produce: the nested form carries the identifier and metadata
// under a "datapoint" object, the flat form carries them at the top level.
// The score travels as "distance" or "score" in either form.
type rawNeighbor struct {
	Datapoint *rawDatapoint   `json:"datapoint"`
	ID        json.RawMessage `json:"id"`
	Distance  *float64        `json:"distance"`
	Score     *float64        `json:"score"`
	Metadata  map[string]any  `json:"metadata"`
}

type rawDatapoint struct {
	DatapointID json.RawMessage `json:"datapoint_id"`
	ID          json.RawMessage `json:"id"`
	Metadata    map[string]any  `json:"embedding_metadata"`
	MetadataAlt map[string]any  `json:"metadata"`
}

// DecodeNeighbor normalizes one raw neighbor record into a Neighbor.
//
// Nested id and metadata win over their flat counterparts, "distance" wins
// over "score", and a record with neither score field gets a nil score.
// Records that decode to no identifier at all are rejected with
// ErrUnknownNeighborShape rather than silently defaulted.
func DecodeNeighbor(raw json.RawMessage) (model.Neighbor, error) {
	var w rawNeighbor
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Neighbor{}, fmt.Errorf("%w: %v", ErrUnknownNeighborShape, err)
	}

	var id string
	if w.Datapoint != nil {
		if s, err := datapoint.DecodeID(w.Datapoint.DatapointID); err == nil {
			id = s
		} else if s, err := datapoint.DecodeID(w.Datapoint.ID); err == nil {
			id = s
		}
	}
	if id == "" {
		if s, err := datapoint.DecodeID(w.ID); err == nil {
			id = s
		}
	}
	if id == "" {
		return model.Neighbor{}, fmt.Errorf("%w: no identifier field", ErrUnknownNeighborShape)
	}

	n := model.Neighbor{ID: id}

	switch {
	case w.Datapoint != nil && w.Datapoint.Metadata != nil:
		n.Metadata = w.Datapoint.Metadata
	case w.Datapoint != nil && w.Datapoint.MetadataAlt != nil:
		n.Metadata = w.Datapoint.MetadataAlt
	default:
		n.Metadata = w.Metadata
	}

	switch {
	case w.Distance != nil:
		n.Score = w.Distance
	case w.Score != nil:
		n.Score = w.Score
	}

	return n, nil
}

// DecodeNeighbors normalizes a raw neighbor list, failing on the first
// unrecognized record.
func DecodeNeighbors(raws []json.RawMessage) ([]model.Neighbor, error) {
	neighbors := make([]model.Neighbor, 0, len(raws))
	for i, raw := range raws {
		n, err := DecodeNeighbor(raw)
		if err != nil {
			return nil, fmt.Errorf("neighbor %d: %w", i, err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}
