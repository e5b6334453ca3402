// Package metrics holds the process Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updown_feed_polls_total", Help: "Quote fetch attempts by source and result"},
		[]string{"source", "result"},
	)
	FeedNoData = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "updown_feed_no_data_total", Help: "Poll cycles where every source failed"},
	)
	FeedBufferDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "updown_feed_buffer_drops_total", Help: "Samples discarded because the buffer was full"},
	)
	ModelRefits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updown_model_refits_total", Help: "Slow-path refits by result"},
		[]string{"result"},
	)
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updown_ticks_total", Help: "Control loop ticks by mode"},
		[]string{"mode"},
	)
	TickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "updown_tick_seconds",
			Help:    "Duration of one fast update",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
	ProbabilityUp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "updown_probability_up", Help: "Latest upside probability"},
	)
	ForecastVariance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "updown_forecast_variance", Help: "Latest cumulative forecast variance to the horizon"},
	)
	MeasurementVariance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "updown_measurement_variance", Help: "Latest measurement variance"},
	)
	DriftPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "updown_drift_per_second", Help: "Latest raw drift per second"},
	)
)

func init() {
	prometheus.MustRegister(
		FeedPolls, FeedNoData, FeedBufferDrops,
		ModelRefits, Ticks, TickSeconds,
		ProbabilityUp, ForecastVariance, MeasurementVariance, DriftPerSecond,
	)
}
