package binance

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// BookSource returns the REST best bid/ask source.
func (c *Client) BookSource() ports.QuoteSource { return bookSource{c} }

// PriceSource returns the REST last-trade-price source. It carries no book.
func (c *Client) PriceSource() ports.QuoteSource { return priceSource{c} }

type bookSource struct{ c *Client }

func (s bookSource) Name() string { return "binance/book" }

func (s bookSource) FetchQuote(ctx context.Context) (domain.Quote, error) {
	var bt bookTicker
	if err := s.c.api.GetJSON(ctx, "/api/v3/ticker/bookTicker", url.Values{"symbol": {s.c.symbol}}, &bt); err != nil {
		return domain.Quote{}, fmt.Errorf("binance.bookTicker: %w", err)
	}
	q, err := mapBookTicker(bt)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.c.stamp(q), nil
}

type priceSource struct{ c *Client }

func (s priceSource) Name() string { return "binance/price" }

func (s priceSource) FetchQuote(ctx context.Context) (domain.Quote, error) {
	var tp tickerPrice
	if err := s.c.api.GetJSON(ctx, "/api/v3/ticker/price", url.Values{"symbol": {s.c.symbol}}, &tp); err != nil {
		return domain.Quote{}, fmt.Errorf("binance.tickerPrice: %w", err)
	}
	p, err := parsePrice(tp.Price)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.c.stamp(domain.Quote{Mid: p}), nil
}
