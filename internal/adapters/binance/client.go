// Package binance adapts the Binance spot REST and websocket APIs to the
// quote, bar, daily-close and reference-price ports.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/adapters/rest"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	DefaultBaseURL   = "https://api.binance.com"
	DefaultStreamURL = "wss://stream.binance.com:9443/ws"
	DefaultSymbol    = "BTCUSDT"
	DefaultCurrency  = "USDT"

	klineLimit = 1000
	// daily requests ask for a few extra candles to cover the window edges.
	dailyExtra = 5
)

// Client talks to the Binance REST API for one symbol.
type Client struct {
	api      *rest.Client
	symbol   string
	currency string
	log      zerolog.Logger
}

// New creates a client. Empty symbol or currency take the defaults.
func New(api *rest.Client, symbol, currency string, log zerolog.Logger) *Client {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Client{
		api:      api,
		symbol:   symbol,
		currency: currency,
		log:      log.With().Str("component", "binance").Logger(),
	}
}

// Venue bundles the slow-path services of this client.
func (c *Client) Venue() ports.Venue {
	return ports.Venue{Name: domain.VenueBinance, Bars: c, Reference: c, Daily: c}
}

func (c *Client) stamp(q domain.Quote) domain.Quote {
	q.Venue = domain.VenueBinance
	q.Instrument = c.symbol
	q.Currency = c.currency
	q.Time = time.Now().UTC()
	return q
}

// PageLimit implements ports.BarPager.
func (c *Client) PageLimit() int { return klineLimit }

// FetchBarPage implements ports.BarPager with 1m klines in [from, to).
func (c *Client) FetchBarPage(ctx context.Context, from, to time.Time) ([]domain.Bar, error) {
	rows, err := c.klines(ctx, "1m", from, to.Add(-time.Millisecond), klineLimit)
	if err != nil {
		return nil, fmt.Errorf("binance.FetchBarPage: %w", err)
	}
	return mapKlines(rows), nil
}

// DailyCloses implements ports.DailyCloseProvider with 1d klines.
func (c *Client) DailyCloses(ctx context.Context, from, to time.Time) ([]float64, error) {
	days := int(to.Sub(from).Hours()/24) + dailyExtra
	rows, err := c.klines(ctx, "1d", from, to, min(days, klineLimit))
	if err != nil {
		return nil, fmt.Errorf("binance.DailyCloses: %w", err)
	}
	bars := domain.CleanBars(mapKlines(rows), from, to)
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	return closes, nil
}

func (c *Client) klines(ctx context.Context, interval string, from, to time.Time, limit int) ([]klineRow, error) {
	q := url.Values{
		"symbol":    {c.symbol},
		"interval":  {interval},
		"startTime": {millis(from)},
		"endTime":   {millis(to)},
		"limit":     {strconv.Itoa(limit)},
	}
	var rows []klineRow
	if err := c.api.GetJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
