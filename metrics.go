package vecpipe

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordIngest is called after each batch ingest run.
	// records is the source rows read, entries the items produced,
	// skipped the rows dropped, duration the total time taken.
	RecordIngest(records, entries, skipped int, duration time.Duration, err error)

	// RecordUpsert is called after each streaming upsert.
	RecordUpsert(count int, duration time.Duration, err error)

	// RecordDelete is called after each streaming delete.
	RecordDelete(count int, duration time.Duration, err error)

	// RecordBatchUpdate is called after each batch update from stored
	// part files.
	RecordBatchUpdate(blobs, entries, skipped int, duration time.Duration, err error)

	// RecordSearch is called after each search.
	// k is the number of neighbors requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordBackfill is called after each metadata backfill pass.
	RecordBackfill(filled, skipped int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(int, int, int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordUpsert(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordBatchUpdate(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordBackfill(int, int, time.Duration)                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestRuns        atomic.Int64
	IngestRecords     atomic.Int64
	IngestEntries     atomic.Int64
	IngestSkipped     atomic.Int64
	IngestErrors      atomic.Int64
	UpsertCount       atomic.Int64
	UpsertItems       atomic.Int64
	UpsertErrors      atomic.Int64
	DeleteCount       atomic.Int64
	DeleteItems       atomic.Int64
	DeleteErrors      atomic.Int64
	BatchUpdateCount  atomic.Int64
	BatchUpdateBlobs  atomic.Int64
	BatchUpdateItems  atomic.Int64
	BatchUpdateErrors atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	BackfillFilled    atomic.Int64
	BackfillSkipped   atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(records, entries, skipped int, duration time.Duration, err error) {
	b.IngestRuns.Add(1)
	b.IngestRecords.Add(int64(records))
	b.IngestEntries.Add(int64(entries))
	b.IngestSkipped.Add(int64(skipped))
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(count int, duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertItems.Add(int64(count))
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(count int, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeleteItems.Add(int64(count))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordBatchUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchUpdate(blobs, entries, skipped int, duration time.Duration, err error) {
	b.BatchUpdateCount.Add(1)
	b.BatchUpdateBlobs.Add(int64(blobs))
	b.BatchUpdateItems.Add(int64(entries))
	if err != nil {
		b.BatchUpdateErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordBackfill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBackfill(filled, skipped int, duration time.Duration) {
	b.BackfillFilled.Add(int64(filled))
	b.BackfillSkipped.Add(int64(skipped))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestRuns:        b.IngestRuns.Load(),
		IngestRecords:     b.IngestRecords.Load(),
		IngestEntries:     b.IngestEntries.Load(),
		IngestSkipped:     b.IngestSkipped.Load(),
		IngestErrors:      b.IngestErrors.Load(),
		UpsertCount:       b.UpsertCount.Load(),
		UpsertItems:       b.UpsertItems.Load(),
		UpsertErrors:      b.UpsertErrors.Load(),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteItems:       b.DeleteItems.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
		BatchUpdateCount:  b.BatchUpdateCount.Load(),
		BatchUpdateBlobs:  b.BatchUpdateBlobs.Load(),
		BatchUpdateItems:  b.BatchUpdateItems.Load(),
		BatchUpdateErrors: b.BatchUpdateErrors.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    b.getAvgSearchNanos(),
		BackfillFilled:    b.BackfillFilled.Load(),
		BackfillSkipped:   b.BackfillSkipped.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestRuns        int64 `json:"ingest_runs"`
	IngestRecords     int64 `json:"ingest_records"`
	IngestEntries     int64 `json:"ingest_entries"`
	IngestSkipped     int64 `json:"ingest_skipped"`
	IngestErrors      int64 `json:"ingest_errors"`
	UpsertCount       int64 `json:"upsert_count"`
	UpsertItems       int64 `json:"upsert_items"`
	UpsertErrors      int64 `json:"upsert_errors"`
	DeleteCount       int64 `json:"delete_count"`
	DeleteItems       int64 `json:"delete_items"`
	DeleteErrors      int64 `json:"delete_errors"`
	BatchUpdateCount  int64 `json:"batch_update_count"`
	BatchUpdateBlobs  int64 `json:"batch_update_blobs"`
	BatchUpdateItems  int64 `json:"batch_update_items"`
	BatchUpdateErrors int64 `json:"batch_update_errors"`
	SearchCount       int64 `json:"search_count"`
	SearchErrors      int64 `json:"search_errors"`
	SearchAvgNanos    int64 `json:"search_avg_nanos"`
	BackfillFilled    int64 `json:"backfill_filled"`
	BackfillSkipped   int64 `json:"backfill_skipped"`
}
