// Package config loads the run configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	// embedded zone database for minimal images
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one run.
type Config struct {
	Run     RunConfig     `yaml:"run"`
	History HistoryConfig `yaml:"history"`
	Model   ModelConfig   `yaml:"model"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// RunConfig controls the estimation window and the live feed.
type RunConfig struct {
	HorizonMinutes           int      `yaml:"horizon_minutes" default:"15" validate:"min=1,max=1440"`
	PollSeconds              float64  `yaml:"poll_seconds" default:"1" validate:"gte=0.05,lte=60"`
	FirstQuoteTimeoutSeconds int      `yaml:"first_quote_timeout_seconds" default:"15" validate:"min=1"`
	FetchTimeoutSeconds      int      `yaml:"fetch_timeout_seconds" default:"10" validate:"min=1"`
	Venues                   []string `yaml:"venues" default:"[\"binance\",\"coinbase\"]" validate:"min=1,unique,dive,oneof=binance coinbase"`
	// ReferenceTime pins t0 (RFC3339). Empty aligns t0 to the horizon grid.
	ReferenceTime   string `yaml:"reference_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DisplayTimezone string `yaml:"display_timezone" default:"Europe/Berlin" validate:"timezone"`
}

// HistoryConfig sets the lookback windows.
type HistoryConfig struct {
	GarchMinutes int `yaml:"garch_minutes" default:"1440" validate:"min=60"`
	DriftMinutes int `yaml:"drift_minutes" default:"120" validate:"min=5,ltefield=GarchMinutes"`
	LongTermDays int `yaml:"long_term_days" default:"90" validate:"min=10"`
	PagePauseMS  int `yaml:"page_pause_ms" default:"250" validate:"min=0"`
}

// ModelConfig holds the model constants.
type ModelConfig struct {
	BucketMinutes       int     `yaml:"bucket_minutes" default:"5" validate:"min=1,max=60"`
	DF                  float64 `yaml:"df" default:"3" validate:"gt=2"`
	MinBars             int     `yaml:"min_bars" default:"60" validate:"min=10"`
	MinCloses           int     `yaml:"min_closes" default:"20" validate:"min=10"`
	FallbackAnnualVol   float64 `yaml:"fallback_annual_vol" default:"0.9" validate:"gt=0,lte=5"`
	DriftSpanMinutes    float64 `yaml:"drift_span_minutes" default:"15" validate:"gt=0"`
	OBIWeight           float64 `yaml:"obi_weight" default:"0.5" validate:"gte=0,lte=1"`
	OBISmoothingSeconds int     `yaml:"obi_smoothing_seconds" default:"30" validate:"min=1"`
	KappaHalfLifeMin    float64 `yaml:"kappa_half_life_minutes" default:"10" validate:"gte=0"`
	Theta               float64 `yaml:"theta" default:"0.0001"`
	JumpsPerDay         float64 `yaml:"jumps_per_day" default:"1" validate:"gte=0"`
	JumpSigma           float64 `yaml:"jump_sigma" default:"0.01" validate:"gte=0"`
}

// APIConfig configures the venue clients.
type APIConfig struct {
	BinanceBase          string  `yaml:"binance_base" default:"https://api.binance.com" validate:"url"`
	BinanceStream        string  `yaml:"binance_stream" default:"wss://stream.binance.com:9443/ws" validate:"url"`
	BinanceStreamEnabled bool    `yaml:"binance_stream_enabled" default:"true"`
	BinanceSymbol        string  `yaml:"binance_symbol" default:"BTCUSDT" validate:"required"`
	BinanceCurrency      string  `yaml:"binance_currency" default:"USDT" validate:"required"`
	CoinbaseBase         string  `yaml:"coinbase_base" default:"https://api.exchange.coinbase.com" validate:"url"`
	CoinbaseProduct      string  `yaml:"coinbase_product" default:"BTC-USD" validate:"required"`
	RatePerSec           float64 `yaml:"rate_per_sec" default:"10" validate:"gt=0"`
	Burst                int     `yaml:"burst" default:"5" validate:"min=1"`
	TimeoutSeconds       float64 `yaml:"timeout_seconds" default:"5" validate:"gt=0"`
	Retries              int     `yaml:"retries" validate:"min=0,max=5"`
	BreakerFailures      uint32  `yaml:"breaker_failures" default:"5" validate:"min=1"`
	BreakerCooldownSec   int     `yaml:"breaker_cooldown_seconds" default:"30" validate:"min=1"`
}

// MetricsConfig controls the status server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:"127.0.0.1:9108" validate:"hostname_port"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load builds the configuration: struct defaults, then the YAML file at path
// (skipped when path is empty), then .env and environment overrides. The
// result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	for i, v := range c.Run.Venues {
		c.Run.Venues[i] = strings.ToLower(strings.TrimSpace(v))
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides overwrites values with environment variables when present.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("UPDOWN_VENUES"); v != "" {
		cfg.Run.Venues = SplitList(v)
	}
	if v := os.Getenv("UPDOWN_HORIZON_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UPDOWN_HORIZON_MINUTES: %w", err)
		}
		cfg.Run.HorizonMinutes = n
	}
	if v := os.Getenv("UPDOWN_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return nil
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Horizon returns the window length.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Run.HorizonMinutes) * time.Minute
}

// PollInterval returns the feed poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Run.PollSeconds * float64(time.Second))
}

// ReferenceTime returns the pinned t0, or the zero time when none is set.
func (c *Config) ReferenceTime() (time.Time, error) {
	if c.Run.ReferenceTime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Run.ReferenceTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: reference_time: %w", err)
	}
	return t.UTC(), nil
}

// Location returns the display time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Run.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: display_timezone: %w", err)
	}
	return loc, nil
}

// APITimeout returns the per-request HTTP timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds * float64(time.Second))
}
