package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobtrack/internal/metrics"
)

// Options controls bulk seeding of jobs.
type Options struct {
	Count  int
	Batch  int
	Prefix string
}

// Inserter is the slice of the store the seeder needs.
type Inserter interface {
	InsertJobBatch(ctx context.Context, names []string, now time.Time) ([]int64, error)
}

// Run inserts Count PENDING jobs in batches, each with the matching first
// history row a regular create would write. Returns how many were created.
func Run(ctx context.Context, st Inserter, log *slog.Logger, opts Options) (int, error) {
	if opts.Count <= 0 {
		return 0, nil
	}
	if opts.Batch <= 0 {
		opts.Batch = 1000
	}
	if opts.Prefix == "" {
		opts.Prefix = "Seed Job"
	}

	log.Info("seeding jobs", "count", opts.Count, "batch", opts.Batch, "prefix", opts.Prefix)
	now := time.Now().UTC()

	created := 0
	nameStart := 1
	for remaining := opts.Count; remaining > 0; {
		take := opts.Batch
		if take > remaining {
			take = remaining
		}

		names := make([]string, take)
		for i := range names {
			names[i] = fmt.Sprintf("%s %d", opts.Prefix, nameStart+i)
		}

		ids, err := st.InsertJobBatch(ctx, names, now)
		if err != nil {
			return created, fmt.Errorf("seed batch: %w", err)
		}

		created += len(ids)
		remaining -= take
		nameStart += take
		metrics.RecordJobsSeeded(len(ids))
		log.Info("seed progress", "inserted", created, "target", opts.Count)
	}

	return created, nil
}
