package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/updown/config"
	"github.com/alejandrodnm/updown/internal/adapters/binance"
	"github.com/alejandrodnm/updown/internal/adapters/coinbase"
	"github.com/alejandrodnm/updown/internal/adapters/httpapi"
	"github.com/alejandrodnm/updown/internal/adapters/notify"
	"github.com/alejandrodnm/updown/internal/adapters/rest"
	"github.com/alejandrodnm/updown/internal/adapters/storage"
	"github.com/alejandrodnm/updown/internal/application/engine"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/feed"
	"github.com/alejandrodnm/updown/internal/history"
	"github.com/alejandrodnm/updown/internal/logging"
	"github.com/alejandrodnm/updown/internal/ports"
	"github.com/alejandrodnm/updown/internal/probability"
	"github.com/alejandrodnm/updown/internal/volatility"
)

const defaultConfigPath = "config/config.yaml"

var runFlags struct {
	configPath    string
	logLevel      string
	logFormat     string
	venues        []string
	horizon       int
	referenceTime string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one estimation window",
	Long: `Run resolves the reference price at the start of the current window,
streams quotes until the window ends and prints the realized direction.

Example usage:
  updown run                               # defaults plus config/config.yaml
  updown run --venues coinbase             # Coinbase only
  updown run --horizon 5 --log-level debug # five minute window`,
	RunE: runEstimator,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.configPath, "config", defaultConfigPath, "path to config file")
	f.StringVar(&runFlags.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	f.StringVar(&runFlags.logFormat, "log-format", "", "log format: json|console (overrides config)")
	f.StringSliceVar(&runFlags.venues, "venues", nil, "venue priority list, e.g. binance,coinbase (overrides config)")
	f.IntVar(&runFlags.horizon, "horizon", 0, "window length in minutes (overrides config)")
	f.StringVar(&runFlags.referenceTime, "reference-time", "", "pin the window start, RFC3339 (overrides config)")
}

func runEstimator(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.NewWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	refTime, err := cfg.ReferenceTime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := wire(ctx, cfg, log)
	defer w.close()

	journal, err := storage.NewSQLiteJournal(":memory:")
	if err != nil {
		return err
	}
	defer journal.Close()

	lf := feed.New(w.sources, cfg.PollInterval(), log)
	bars := history.New(w.pagers, time.Duration(cfg.History.PagePauseMS)*time.Millisecond, log)
	eng := engine.New(engineConfig(cfg, refTime), lf, bars, w.venues, notify.NewConsole(loc), journal, log)

	if cfg.Metrics.Enabled {
		srv := httpapi.New(cfg.Metrics.Addr, eng, journal, log)
		if err := srv.Start(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("status server unavailable")
		} else {
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer scancel()
				_ = srv.Shutdown(sctx)
			}()
		}
	}

	log.Info().
		Str("version", version).
		Strs("venues", cfg.Run.Venues).
		Dur("horizon", cfg.Horizon()).
		Dur("poll", cfg.PollInterval()).
		Msg("updown starting")

	out, err := eng.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoInitialQuote):
			return fmt.Errorf("no quote source answered: %w", err)
		case errors.Is(err, engine.ErrNoReferencePrice):
			return fmt.Errorf("could not resolve the opening price: %w", err)
		}
		return err
	}
	log.Info().Str("direction", string(out.Direction)).Msg("updown stopped cleanly")
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := runFlags.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if runFlags.logLevel != "" {
		cfg.Log.Level = runFlags.logLevel
	}
	if runFlags.logFormat != "" {
		cfg.Log.Format = runFlags.logFormat
	}
	if len(runFlags.venues) > 0 {
		cfg.Run.Venues = runFlags.venues
	}
	if runFlags.horizon > 0 {
		cfg.Run.HorizonMinutes = runFlags.horizon
	}
	if runFlags.referenceTime != "" {
		cfg.Run.ReferenceTime = runFlags.referenceTime
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// wiring holds the per-venue adapters in priority order.
type wiring struct {
	sources []ports.QuoteSource
	pagers  map[string]ports.BarPager
	venues  []ports.Venue
	streams []*binance.StreamSource
}

func (w *wiring) close() {
	for _, s := range w.streams {
		s.Close()
	}
}

func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) *wiring {
	w := &wiring{pagers: make(map[string]ports.BarPager)}
	for _, name := range cfg.Run.Venues {
		var v ports.Venue
		switch name {
		case domain.VenueBinance:
			c := binance.New(rest.New(restConfig(cfg, name, cfg.API.BinanceBase), log), cfg.API.BinanceSymbol, cfg.API.BinanceCurrency, log)
			if cfg.API.BinanceStreamEnabled {
				s := c.StreamSource(cfg.API.BinanceStream)
				s.Start(ctx)
				w.streams = append(w.streams, s)
				w.sources = append(w.sources, s)
			}
			w.sources = append(w.sources, c.BookSource(), c.PriceSource())
			v = c.Venue()
		case domain.VenueCoinbase:
			c := coinbase.New(rest.New(restConfig(cfg, name, cfg.API.CoinbaseBase), log), cfg.API.CoinbaseProduct, log)
			w.sources = append(w.sources, c.BookSource())
			v = c.Venue()
		default:
			continue
		}
		w.pagers[v.Name] = v.Bars
		w.venues = append(w.venues, v)
	}
	return w
}

func restConfig(cfg *config.Config, name, base string) rest.Config {
	return rest.Config{
		Name:            name,
		BaseURL:         base,
		RatePerSec:      cfg.API.RatePerSec,
		Burst:           cfg.API.Burst,
		Timeout:         cfg.APITimeout(),
		Retries:         cfg.API.Retries,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: time.Duration(cfg.API.BreakerCooldownSec) * time.Second,
	}
}

func engineConfig(cfg *config.Config, refTime time.Time) engine.Config {
	m := cfg.Model
	return engine.Config{
		Horizon:           cfg.Horizon(),
		PollInterval:      cfg.PollInterval(),
		FirstQuoteTimeout: time.Duration(cfg.Run.FirstQuoteTimeoutSeconds) * time.Second,
		FetchTimeout:      time.Duration(cfg.Run.FetchTimeoutSeconds) * time.Second,
		ReferenceTime:     refTime,
		GarchMinutes:      cfg.History.GarchMinutes,
		DriftMinutes:      cfg.History.DriftMinutes,
		SmoothingSeconds:  m.OBISmoothingSeconds,
		LongTermDays:      cfg.History.LongTermDays,
		FallbackAnnualVol: m.FallbackAnnualVol,
		DriftSpanMinutes:  m.DriftSpanMinutes,
		OBIWeight:         m.OBIWeight,
		Volatility: volatility.Config{
			BucketMinutes: m.BucketMinutes,
			DF:            m.DF,
			MinBars:       m.MinBars,
			MinCloses:     m.MinCloses,
		},
		Probability: probability.Params{
			DF:           m.DF,
			KappaPerSec:  probability.KappaFromHalfLife(m.KappaHalfLifeMin * 60),
			Theta:        m.Theta,
			LambdaPerSec: m.JumpsPerDay / volatility.SecondsPerDay,
			SigmaJump:    m.JumpSigma,
		},
	}
}
