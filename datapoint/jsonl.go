package datapoint

import (
	"bufio"
	"bytes"
	"fmt"
	stdhash "hash"
	"io"

	"github.com/vecpipe/vecpipe/codec"
	"github.com/vecpipe/vecpipe/internal/hash"
	"github.com/vecpipe/vecpipe/model"
)

// maxLineSize bounds a single serialized entry. Metadata payloads are small
// but dense vectors at high dimensionality produce long lines.
const maxLineSize = 16 * 1024 * 1024

// StreamWriter writes entries as line-delimited records, tracking the entry
// count and a CRC32C checksum of the emitted bytes. Not safe for concurrent
// use.
type StreamWriter struct {
	w       io.Writer
	codec   codec.Codec
	crc     stdhash.Hash32
	entries int
}

// NewStreamWriter creates a StreamWriter on top of w.
func NewStreamWriter(w io.Writer, c codec.Codec) *StreamWriter {
	if c == nil {
		c = codec.Default
	}

	return &StreamWriter{
		w:     w,
		codec: c,
		crc:   hash.NewCRC32C(),
	}
}

// Write appends one entry as a single line.
func (sw *StreamWriter) Write(entry model.IndexEntry) error {
	data, err := sw.codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", entry.ID, err)
	}

	data = append(data, '\n')
	if _, err := sw.w.Write(data); err != nil {
		return err
	}

	sw.crc.Write(data)
	sw.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (sw *StreamWriter) Entries() int {
	return sw.entries
}

// Checksum returns the CRC32C of all bytes written so far.
func (sw *StreamWriter) Checksum() uint32 {
	return sw.crc.Sum32()
}

// WriteAll writes entries as line-delimited records and returns the entry
// count and checksum of the emitted bytes.
func WriteAll(w io.Writer, entries []model.IndexEntry, c codec.Codec) (int, uint32, error) {
	sw := NewStreamWriter(w, c)
	for _, entry := range entries {
		if err := sw.Write(entry); err != nil {
			return sw.Entries(), sw.Checksum(), err
		}
	}

	return sw.Entries(), sw.Checksum(), nil
}

// ReadAll decodes line-delimited entries from r. Malformed lines are skipped
// and reported through the skip count, never as an error; blank lines are
// ignored outright. A read failure from r itself aborts the scan.
func ReadAll(r io.Reader, c codec.Codec) ([]model.IndexEntry, int, error) {
	var (
		entries []model.IndexEntry
		skipped int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		entry, err := Parse(c, line)
		if err != nil {
			skipped++
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scan entries: %w", err)
	}

	return entries, skipped, nil
}
