package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// QuoteSource returns the current quote of a single venue using one method.
// Several sources may exist for the same venue (book ticker, last price,
// stream); the feed tries them in priority order.
type QuoteSource interface {
	// Name identifies the source in status and metrics, e.g. "binance/book".
	Name() string

	// FetchQuote returns a quote with a positive mid or an error.
	FetchQuote(ctx context.Context) (domain.Quote, error)
}
