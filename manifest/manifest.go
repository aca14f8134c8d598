// Package manifest records what an ingest run wrote.
//
// A manifest is a small JSON blob stored next to the part files it
// describes. It names every part with its entry count, byte size and
// CRC32-Castagnoli checksum, plus the codec the parts were encoded with, so
// a later batch update can verify and replay the run without guessing at
// its framing.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vecpipe/vecpipe/blobstore"
)

// CurrentVersion is the manifest format version this package writes.
const CurrentVersion = 1

// Manifest describes the output of one ingest run.
type Manifest struct {
	Version   int        `json:"version"`
	RunID     string     `json:"run_id"`
	Codec     string     `json:"codec"`
	CreatedAt time.Time  `json:"created_at"`
	Parts     []PartInfo `json:"parts"`
}

// PartInfo describes a single part file.
type PartInfo struct {
	Name     string `json:"name"`
	Entries  int    `json:"entries"`
	Bytes    int64  `json:"bytes"`
	Checksum uint32 `json:"checksum"`
}

// TotalEntries returns the entry count summed across parts.
func (m *Manifest) TotalEntries() int {
	total := 0
	for _, p := range m.Parts {
		total += p.Entries
	}
	return total
}

// Write stores m under name. A zero Version is stamped with CurrentVersion.
func Write(ctx context.Context, store blobstore.Store, name string, m *Manifest) error {
	if m.Version == 0 {
		m.Version = CurrentVersion
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return store.Put(ctx, name, data)
}

// Load reads and validates the manifest stored under name.
func Load(ctx context.Context, store blobstore.Store, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", name, err)
	}

	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}
