// Package coinbase adapts the Coinbase Exchange public REST API to the quote,
// bar, daily-close and reference-price ports.
package coinbase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/adapters/rest"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	DefaultBaseURL = "https://api.exchange.coinbase.com"
	DefaultProduct = "BTC-USD"

	// maxCandles is the per-request candle cap of the candles endpoint.
	maxCandles = 300

	granularityMinute  = 60
	granularityFiveMin = 300
	granularityDay     = 86400
)

// Client talks to the Coinbase Exchange REST API for one product.
type Client struct {
	api      *rest.Client
	product  string
	currency string
	log      zerolog.Logger
}

// New creates a client. An empty product takes the default; the quote
// currency is the product suffix.
func New(api *rest.Client, product string, log zerolog.Logger) *Client {
	if product == "" {
		product = DefaultProduct
	}
	currency := product
	if i := strings.LastIndex(product, "-"); i >= 0 {
		currency = product[i+1:]
	}
	return &Client{
		api:      api,
		product:  product,
		currency: currency,
		log:      log.With().Str("component", "coinbase").Logger(),
	}
}

// Venue bundles the slow-path services of this client.
func (c *Client) Venue() ports.Venue {
	return ports.Venue{Name: domain.VenueCoinbase, Bars: c, Reference: c, Daily: c}
}

// BookSource returns the level-1 book source.
func (c *Client) BookSource() ports.QuoteSource { return bookSource{c} }

type bookSource struct{ c *Client }

func (s bookSource) Name() string { return "coinbase/book" }

func (s bookSource) FetchQuote(ctx context.Context) (domain.Quote, error) {
	var b book
	path := "/products/" + s.c.product + "/book"
	if err := s.c.api.GetJSON(ctx, path, url.Values{"level": {"1"}}, &b); err != nil {
		return domain.Quote{}, fmt.Errorf("coinbase.book: %w", err)
	}
	q, err := mapBook(b)
	if err != nil {
		return domain.Quote{}, err
	}
	q.Venue = domain.VenueCoinbase
	q.Instrument = s.c.product
	q.Currency = s.c.currency
	q.Time = time.Now().UTC()
	return q, nil
}

// PageLimit implements ports.BarPager.
func (c *Client) PageLimit() int { return maxCandles }

// FetchBarPage implements ports.BarPager with 1m candles in [from, to).
// The endpoint treats end as inclusive.
func (c *Client) FetchBarPage(ctx context.Context, from, to time.Time) ([]domain.Bar, error) {
	rows, err := c.candles(ctx, granularityMinute, from, to.Add(-time.Second))
	if err != nil {
		return nil, fmt.Errorf("coinbase.FetchBarPage: %w", err)
	}
	return mapCandles(rows), nil
}

// DailyCloses implements ports.DailyCloseProvider. Daily candles are fetched
// in batches of maxCandles days; a failed batch ends paging.
func (c *Client) DailyCloses(ctx context.Context, from, to time.Time) ([]float64, error) {
	from, to = from.UTC(), to.UTC()
	span := maxCandles * 24 * time.Hour
	maxRequests := int(to.Sub(from)/span) + 2

	var raw []domain.Bar
	cur := from
	for requests := 0; cur.Before(to) && requests < maxRequests; requests++ {
		end := cur.Add(span)
		if end.After(to) {
			end = to
		}
		rows, err := c.candles(ctx, granularityDay, cur, end)
		if err != nil {
			if len(raw) == 0 {
				return nil, fmt.Errorf("coinbase.DailyCloses: %w", err)
			}
			c.log.Warn().Err(err).Int("bars", len(raw)).Msg("daily paging stopped early")
			break
		}
		page := mapCandles(rows)
		raw = append(raw, page...)

		next := end
		for _, b := range page {
			if day := b.OpenTime.Add(24 * time.Hour); day.After(next) {
				next = day
			}
		}
		cur = next
	}

	bars := domain.CleanBars(raw, from, to)
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	return closes, nil
}

func (c *Client) candles(ctx context.Context, granularity int, start, end time.Time) ([]candleRow, error) {
	q := url.Values{
		"granularity": {strconv.Itoa(granularity)},
		"start":       {isoTime(start)},
		"end":         {isoTime(end)},
	}
	var rows []candleRow
	if err := c.api.GetJSON(ctx, "/products/"+c.product+"/candles", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
