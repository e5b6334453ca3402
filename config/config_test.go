package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Horizon())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, []string{"binance", "coinbase"}, cfg.Run.Venues)
	assert.Equal(t, 1440, cfg.History.GarchMinutes)
	assert.Equal(t, 120, cfg.History.DriftMinutes)
	assert.Equal(t, 90, cfg.History.LongTermDays)
	assert.Equal(t, 5, cfg.Model.BucketMinutes)
	assert.InDelta(t, 3.0, cfg.Model.DF, 0)
	assert.InDelta(t, 0.9, cfg.Model.FallbackAnnualVol, 0)
	assert.InDelta(t, 0.0001, cfg.Model.Theta, 0)
	assert.True(t, cfg.API.BinanceStreamEnabled)
	assert.Equal(t, uint32(5), cfg.API.BreakerFailures)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	ref, err := cfg.ReferenceTime()
	require.NoError(t, err)
	assert.True(t, ref.IsZero())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)

	def, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, def, cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
run:
  horizon_minutes: 5
  poll_seconds: 0.5
  venues: [Coinbase]
  reference_time: "2026-03-02T10:00:00Z"
api:
  binance_stream_enabled: false
model:
  df: 4
log:
  level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Horizon())
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, []string{"coinbase"}, cfg.Run.Venues)
	assert.False(t, cfg.API.BinanceStreamEnabled)
	assert.InDelta(t, 4.0, cfg.Model.DF, 0)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 1440, cfg.History.GarchMinutes)

	ref, err := cfg.ReferenceTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), ref)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("UPDOWN_VENUES", "coinbase, binance")
	t.Setenv("UPDOWN_HORIZON_MINUTES", "60")
	t.Setenv("UPDOWN_METRICS_ADDR", ":9200")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"coinbase", "binance"}, cfg.Run.Venues)
	assert.Equal(t, time.Hour, cfg.Horizon())
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
}

func TestLoad_InvalidHorizonEnv(t *testing.T) {
	t.Setenv("UPDOWN_HORIZON_MINUTES", "quarter")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "UPDOWN_HORIZON_MINUTES")
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"unknown venue":    "run:\n  venues: [kraken]\n",
		"no venues":        "run:\n  venues: []\n",
		"duplicate venues": "run:\n  venues: [binance, binance]\n",
		"bad time":         "run:\n  reference_time: yesterday\n",
		"bad zone":         "run:\n  display_timezone: Mars/Olympus\n",
		"df too low":       "model:\n  df: 2\n",
		"obi weight":       "model:\n  obi_weight: 1.5\n",
		"drift over garch": "history:\n  garch_minutes: 100\n  drift_minutes: 120\n",
		"bad log level":    "log:\n  level: verbose\n",
		"bad base url":     "api:\n  binance_base: not a url\n",
		"poll too fast":    "run:\n  poll_seconds: 0.001\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, config.SplitList(" a,, b ,"))
	assert.Nil(t, config.SplitList(""))
}
