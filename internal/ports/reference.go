package ports

import (
	"context"
	"time"
)

// ReferencePriceSource resolves the opening price of the run's reference minute.
type ReferencePriceSource interface {
	// OpenPrice returns the price at `at` and the name of the method that produced it.
	// Implementations try several strategies and only fail when all of them do.
	OpenPrice(ctx context.Context, at time.Time) (price float64, method string, err error)
}
