// Package history fetches minute-bar windows of arbitrary length by paging
// through venue endpoints.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	// coverage below this share of the requested minutes is logged as a shortfall.
	minCoverage = 0.8
	// shortfall warnings only apply to windows longer than this many minutes.
	coverageMinMinutes = 20
	// extra requests allowed beyond the ideal page count.
	extraRequests = 3
)

// Provider implements ports.BarsProvider over one pager per venue.
type Provider struct {
	pagers map[string]ports.BarPager
	log    zerolog.Logger
	pause  time.Duration
}

// New creates a Provider. pause is the delay between page requests.
func New(pagers map[string]ports.BarPager, pause time.Duration, log zerolog.Logger) *Provider {
	return &Provider{
		pagers: pagers,
		log:    log.With().Str("component", "history").Logger(),
		pause:  pause,
	}
}

// FetchBars pages through [from, to) and returns the cleaned series. Row-level
// problems drop rows; a page error ends paging with what was collected so far.
// An error is returned only when the venue is unknown or no page succeeded.
func (p *Provider) FetchBars(ctx context.Context, venue string, from, to time.Time) ([]domain.Bar, error) {
	pager, ok := p.pagers[venue]
	if !ok {
		return nil, fmt.Errorf("history.FetchBars: unsupported venue %q", venue)
	}
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, nil
	}

	start := time.Now()
	raw, pages, err := p.paginate(ctx, pager, from, to)
	if err != nil && pages == 0 {
		return nil, fmt.Errorf("history.FetchBars: %s: %w", venue, err)
	}
	if err != nil {
		p.log.Warn().Err(err).Str("venue", venue).Int("pages", pages).Msg("paging stopped early, keeping partial data")
	}

	bars := domain.CleanBars(raw, from, to)

	expected := int(to.Sub(from) / time.Minute)
	evt := p.log.Debug()
	if expected > coverageMinMinutes && float64(len(bars)) < float64(expected)*minCoverage {
		evt = p.log.Warn()
	}
	evt.Str("venue", venue).
		Int("bars", len(bars)).
		Int("expected", expected).
		Int("pages", pages).
		Dur("took", time.Since(start).Round(time.Millisecond)).
		Msg("historical bars fetched")

	return bars, nil
}

// paginate walks the window one page at a time. The request count is capped
// by the window length so a backend that never advances cannot loop forever.
func (p *Provider) paginate(ctx context.Context, pager ports.BarPager, from, to time.Time) ([]domain.Bar, int, error) {
	limit := pager.PageLimit()
	if limit <= 0 {
		limit = 1
	}
	span := time.Duration(limit) * time.Minute
	maxRequests := int(to.Sub(from)/span) + extraRequests

	var (
		all   []domain.Bar
		pages int
	)
	cur := from.Truncate(time.Minute)
	for requests := 0; cur.Before(to) && requests < maxRequests; requests++ {
		if requests > 0 && p.pause > 0 {
			select {
			case <-ctx.Done():
				return all, pages, ctx.Err()
			case <-time.After(p.pause):
			}
		}

		batchEnd := cur.Add(span)
		if batchEnd.After(to) {
			batchEnd = to
		}
		page, err := pager.FetchBarPage(ctx, cur, batchEnd)
		if err != nil {
			return all, pages, err
		}
		pages++
		all = append(all, page...)

		next := batchEnd
		if last, ok := latestOpen(page); ok && last.Add(time.Minute).After(cur) {
			next = last.Add(time.Minute)
		}
		cur = next
	}
	return all, pages, nil
}

func latestOpen(page []domain.Bar) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, b := range page {
		if b.OpenTime.IsZero() {
			continue
		}
		if !found || b.OpenTime.After(latest) {
			latest, found = b.OpenTime, true
		}
	}
	return latest, found
}
