package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// BarPager fetches one page of one-minute bars from a venue.
type BarPager interface {
	// PageLimit is the maximum number of bars the venue returns per request.
	PageLimit() int

	// FetchBarPage returns the raw bars the venue holds in [from, to).
	// Ordering and duplicates are not guaranteed.
	FetchBarPage(ctx context.Context, from, to time.Time) ([]domain.Bar, error)
}

// BarsProvider fetches a complete, cleaned minute-bar series for a venue.
type BarsProvider interface {
	// FetchBars returns bars in [from, to), unique by open time and sorted.
	// A partial series is not an error; an error means nothing could be fetched.
	FetchBars(ctx context.Context, venue string, from, to time.Time) ([]domain.Bar, error)
}

// DailyCloseProvider returns daily close prices for the long-term volatility floor.
type DailyCloseProvider interface {
	// DailyCloses returns the closes of days opening in [from, to), oldest first.
	DailyCloses(ctx context.Context, from, to time.Time) ([]float64, error)
}
