package ports

// Venue bundles the slow-path services of one venue. The fast path (quotes)
// is owned by the feed and not part of this struct.
type Venue struct {
	Name      string
	Bars      BarPager
	Reference ReferencePriceSource
	Daily     DailyCloseProvider
}
