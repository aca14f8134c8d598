// Package recordsource defines where raw records come from. The pipeline
// consumes a source as a read-only iterator per embedding run; restarting a
// run means asking the source for a fresh iterator.
package recordsource

import (
	"context"
	"io"

	"github.com/vecpipe/vecpipe/model"
)

// Source yields the records of one embedding run.
type Source interface {
	// Query starts a new iteration over the source's records.
	Query(ctx context.Context) (Iterator, error)
}

// Iterator walks records one at a time. Next returns io.EOF after the last
// record; any other error is a source failure and ends the run.
type Iterator interface {
	Next(ctx context.Context) (model.Record, error)
	Close() error
}

// Collect drains an iterator into a slice and closes it.
func Collect(ctx context.Context, it Iterator) ([]model.Record, error) {
	defer it.Close()

	var records []model.Record
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// SliceSource serves a fixed set of records, mainly for tests and small
// one-off ingests.
type SliceSource struct {
	records []model.Record
}

// NewSliceSource creates a source over the given records.
func NewSliceSource(records ...model.Record) *SliceSource {
	return &SliceSource{records: records}
}

// Query starts a new iteration.
func (s *SliceSource) Query(_ context.Context) (Iterator, error) {
	return &sliceIterator{records: s.records}, nil
}

type sliceIterator struct {
	records []model.Record
	pos     int
}

func (it *sliceIterator) Next(ctx context.Context) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		return nil, io.EOF
	}

	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Close() error {
	return nil
}
