package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Reporter presents per-tick snapshots and the final outcome.
type Reporter interface {
	Report(ctx context.Context, snap domain.Snapshot) error
	Final(ctx context.Context, outcome domain.Outcome) error
}

// SnapshotJournal keeps the snapshots of the current run in memory.
type SnapshotJournal interface {
	Append(ctx context.Context, snap domain.Snapshot) error

	// Recent returns up to limit snapshots, oldest first.
	Recent(ctx context.Context, limit int) ([]domain.Snapshot, error)

	// Summary aggregates the run's snapshots for the final outcome.
	Summary(ctx context.Context) (JournalSummary, error)

	Close() error
}

// JournalSummary aggregates a run's snapshots.
type JournalSummary struct {
	Count    int
	Degraded int
	MeanPUp  float64
}
