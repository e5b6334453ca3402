package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/updown/internal/fallback"
)

const (
	// tradeWindow bounds the aggregate-trade searches around the reference time.
	tradeWindow = 15 * time.Second
	tradeLimit  = 1000
)

// OpenPrice implements ports.ReferencePriceSource. Strategies in order:
// first trade at or after at, last trade before at, open of the 1m kline.
func (c *Client) OpenPrice(ctx context.Context, at time.Time) (float64, string, error) {
	at = at.UTC()
	chain := fallback.New(
		fallback.Step[float64]{Name: "agg_trade_after", Fn: func(ctx context.Context) (float64, error) {
			return c.tradeAfter(ctx, at)
		}},
		fallback.Step[float64]{Name: "agg_trade_before", Fn: func(ctx context.Context) (float64, error) {
			return c.tradeBefore(ctx, at)
		}},
		fallback.Step[float64]{Name: "kline_open", Fn: func(ctx context.Context) (float64, error) {
			return c.klineOpen(ctx, at)
		}},
	)
	chain.OnError = func(step string, err error) {
		c.log.Debug().Str("strategy", step).Err(err).Msg("reference strategy failed")
	}

	price, method, err := chain.Run(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("binance.OpenPrice: %w", err)
	}
	return price, method, nil
}

func (c *Client) aggTrades(ctx context.Context, from, to time.Time, limit int) ([]aggTrade, error) {
	q := url.Values{
		"symbol":    {c.symbol},
		"startTime": {millis(from)},
		"endTime":   {millis(to)},
		"limit":     {strconv.Itoa(limit)},
	}
	var trades []aggTrade
	if err := c.api.GetJSON(ctx, "/api/v3/aggTrades", q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) tradeAfter(ctx context.Context, at time.Time) (float64, error) {
	trades, err := c.aggTrades(ctx, at, at.Add(tradeWindow), 1)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, fmt.Errorf("no trades in [%s, +%s]", at.Format(time.RFC3339), tradeWindow)
	}
	return positive(trades[0].Price)
}

func (c *Client) tradeBefore(ctx context.Context, at time.Time) (float64, error) {
	trades, err := c.aggTrades(ctx, at.Add(-tradeWindow), at.Add(-time.Millisecond), tradeLimit)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, fmt.Errorf("no trades in [-%s, %s)", tradeWindow, at.Format(time.RFC3339))
	}
	return positive(trades[len(trades)-1].Price)
}

func (c *Client) klineOpen(ctx context.Context, at time.Time) (float64, error) {
	minute := at.Truncate(time.Minute)
	rows, err := c.klines(ctx, "1m", minute, minute.Add(time.Minute-time.Millisecond), 1)
	if err != nil {
		return 0, err
	}
	for _, b := range mapKlines(rows) {
		if b.OpenTime.Equal(minute) && b.Open > 0 {
			return b.Open, nil
		}
	}
	return 0, fmt.Errorf("no 1m kline at %s", minute.Format(time.RFC3339))
}

func positive(s string) (float64, error) {
	p, err := parsePrice(s)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %q", errMalformed, s)
	}
	return p, nil
}
