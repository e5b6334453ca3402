package coinbase

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/fallback"
)

// afterWindow bounds the nearest-after candle search.
const afterWindow = 10 * time.Minute

// OpenPrice implements ports.ReferencePriceSource. Strategies in order: open
// of the exact 1m candle, open of the first 1m candle after at, open of the
// 5m candle containing at.
func (c *Client) OpenPrice(ctx context.Context, at time.Time) (float64, string, error) {
	at = at.UTC()
	minute := at.Truncate(time.Minute)
	chain := fallback.New(
		fallback.Step[float64]{Name: "candle_1m_open", Fn: func(ctx context.Context) (float64, error) {
			return c.exactOpen(ctx, granularityMinute, minute)
		}},
		fallback.Step[float64]{Name: "candle_1m_after", Fn: func(ctx context.Context) (float64, error) {
			return c.openAfter(ctx, minute)
		}},
		fallback.Step[float64]{Name: "candle_5m_open", Fn: func(ctx context.Context) (float64, error) {
			return c.exactOpen(ctx, granularityFiveMin, at.Truncate(5*time.Minute))
		}},
	)
	chain.OnError = func(step string, err error) {
		c.log.Debug().Str("strategy", step).Err(err).Msg("reference strategy failed")
	}

	price, method, err := chain.Run(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("coinbase.OpenPrice: %w", err)
	}
	return price, method, nil
}

// exactOpen returns the open of the candle starting exactly at bucket.
func (c *Client) exactOpen(ctx context.Context, granularity int, bucket time.Time) (float64, error) {
	width := time.Duration(granularity) * time.Second
	rows, err := c.candles(ctx, granularity, bucket.Add(-time.Second), bucket.Add(width+time.Second))
	if err != nil {
		return 0, err
	}
	for _, b := range mapCandles(rows) {
		if b.OpenTime.Equal(bucket) && b.Open > 0 {
			return b.Open, nil
		}
	}
	return 0, fmt.Errorf("no %ds candle at %s", granularity, bucket.Format(time.RFC3339))
}

// openAfter returns the open of the earliest 1m candle at or after minute.
func (c *Client) openAfter(ctx context.Context, minute time.Time) (float64, error) {
	rows, err := c.candles(ctx, granularityMinute, minute, minute.Add(afterWindow))
	if err != nil {
		return 0, err
	}
	var (
		best  domain.Bar
		found bool
	)
	for _, b := range mapCandles(rows) {
		if b.OpenTime.Before(minute) || b.Open <= 0 {
			continue
		}
		if !found || b.OpenTime.Before(best.OpenTime) {
			best, found = b, true
		}
	}
	if !found {
		return 0, fmt.Errorf("no 1m candle within %s after %s", afterWindow, minute.Format(time.RFC3339))
	}
	return best.Open, nil
}
