package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lox/climadash/internal/api"
	"github.com/lox/climadash/internal/config"
	"github.com/lox/climadash/internal/dashboard"
	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/forecast"
	"github.com/lox/climadash/internal/ingest"
	"github.com/lox/climadash/internal/models"
	"github.com/lox/climadash/internal/store"
)

type ServeCmd struct {
	Port          string        `default:"8080" env:"PORT" help:"HTTP server port."`
	CacheTTL      time.Duration `default:"15m" env:"CLIMADASH_CACHE_TTL" help:"How long query results stay cached (0 keeps them until the next import)."`
	QueryRetry    time.Duration `default:"10s" env:"CLIMADASH_QUERY_RETRY" help:"Maximum time spent retrying a transient query failure."`
	SessionIdle   time.Duration `default:"2h" env:"CLIMADASH_SESSION_IDLE" help:"Drop dashboard sessions idle for this long."`
	DefaultStart  string        `default:"2020-01-01" env:"CLIMADASH_DEFAULT_START" help:"Default start date for date-range widgets."`
	ForecastRate  float64       `default:"0.5" env:"CLIMADASH_FORECAST_RATE" help:"Forecast runs per second across all users."`
	ForecastBurst int           `default:"2" env:"CLIMADASH_FORECAST_BURST" help:"Forecast runs allowed in a burst."`
	SecureCookies bool          `env:"CLIMADASH_SECURE_COOKIES" help:"Mark the session cookie Secure."`

	ImportSource       string        `env:"CLIMADASH_IMPORT_SOURCE" help:"history_day export (file or ftp:// URL) to re-import on a schedule."`
	ImportInterval     time.Duration `default:"24h" env:"CLIMADASH_IMPORT_INTERVAL" help:"How often to re-import --import-source."`
	RebuildClimatology bool          `env:"CLIMADASH_REBUILD_CLIMATOLOGY" help:"Rebuild climatology after each scheduled import."`
	PayloadRetention   time.Duration `default:"2160h" env:"CLIMADASH_PAYLOAD_RETENTION" help:"How long archived import exports are kept (0 keeps them forever)."`
}

func (c *ServeCmd) serverConfig() config.Server {
	return config.Server{
		Port:               c.Port,
		CacheTTL:           c.CacheTTL,
		QueryRetry:         c.QueryRetry,
		SessionIdle:        c.SessionIdle,
		DefaultStart:       c.DefaultStart,
		ForecastRate:       c.ForecastRate,
		ForecastBurst:      c.ForecastBurst,
		SecureCookies:      c.SecureCookies,
		ImportSource:       c.ImportSource,
		ImportInterval:     c.ImportInterval,
		RebuildClimatology: c.RebuildClimatology,
		PayloadRetention:   c.PayloadRetention,
	}
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg := c.serverConfig()
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, st, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrateIfOwned(st); err != nil {
		return err
	}

	cache := store.NewCachedExecutor(store.NewResilientExecutor(st, cfg.QueryRetry), cfg.CacheTTL)
	builder := dataset.NewBuilder(cache, st.Dialect())
	resolver := filters.NewResolver(builder, cfg.StartDate())
	runner := forecast.NewRateLimitedRunner(forecast.NewEngine(), cfg.ForecastRate, cfg.ForecastBurst)
	sessions := dashboard.NewSessions(cfg.SessionIdle)
	importer := ingest.NewImporter(st, cache)

	opts := ingest.SchedulerOptions{
		CachePurge:         cfg.CacheTTL,
		SessionExpiry:      cfg.SessionIdle / 4,
		ImportInterval:     cfg.ImportInterval,
		RebuildClimatology: cfg.RebuildClimatology,
		PayloadRetention:   cfg.PayloadRetention,
	}
	if cfg.ImportSource != "" {
		src, err := ingest.SourceFor(cfg.ImportSource)
		if err != nil {
			return err
		}
		opts.HistorySource = src
	}
	scheduler := ingest.NewScheduler(cache, sessions, importer, opts)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer scheduler.Stop()

	server := api.NewServer(api.Options{
		Port:          cfg.Port,
		Cities:        builder,
		Dispatcher:    dashboard.NewDispatcher(resolver, builder, runner),
		Sessions:      sessions,
		Imports:       st,
		DB:            st,
		Coverage:      builder,
		SecureCookies: cfg.SecureCookies,
	})

	log.Printf("starting server on :%s", cfg.Port)
	return server.Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, st, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if st.Dialect().Name != store.SQLite.Name {
		return fmt.Errorf("%s schema is managed externally", st.Dialect().Name)
	}
	if err := st.Migrate(); err != nil {
		return err
	}
	version, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("schema at version %d", version)
	return nil
}

type ImportCmd struct {
	History     ImportHistoryCmd     `cmd:"" help:"Import history_day rows."`
	Climatology ImportClimatologyCmd `cmd:"" help:"Import climatology_day rows."`
}

type ImportHistoryCmd struct {
	Source  string `arg:"" help:"CSV file path or ftp:// URL."`
	Rebuild bool   `help:"Rebuild climatology from history after importing."`
	Force   bool   `help:"Import even if this export was already imported."`
}

func (c *ImportHistoryCmd) Run(g *Globals) error {
	return withImporter(g, func(ctx context.Context, im *ingest.Importer) error {
		src, err := ingest.SourceFor(c.Source)
		if err != nil {
			return err
		}
		if c.Force {
			im = im.Force()
		}
		_, err = im.ImportHistory(ctx, src, c.Rebuild)
		return err
	})
}

type ImportClimatologyCmd struct {
	Source string `arg:"" help:"CSV file path or ftp:// URL."`
	Force  bool   `help:"Import even if this export was already imported."`
}

func (c *ImportClimatologyCmd) Run(g *Globals) error {
	return withImporter(g, func(ctx context.Context, im *ingest.Importer) error {
		src, err := ingest.SourceFor(c.Source)
		if err != nil {
			return err
		}
		if c.Force {
			im = im.Force()
		}
		_, err = im.ImportClimatology(ctx, src)
		return err
	})
}

// withImporter opens and migrates the warehouse for a one-shot import.
func withImporter(g *Globals, fn func(context.Context, *ingest.Importer) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, st, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrateIfOwned(st); err != nil {
		return err
	}
	return fn(ctx, ingest.NewImporter(st, nil))
}

type ClimatologyCmd struct{}

func (c *ClimatologyCmd) Run(g *Globals) error {
	return withImporter(g, func(ctx context.Context, im *ingest.Importer) error {
		n, err := im.RebuildClimatology(ctx)
		if err != nil {
			return err
		}
		log.Printf("rebuilt %d climatology rows", n)
		return nil
	})
}

type ForecastCmd struct {
	City    string `arg:"" help:"City to forecast."`
	Feature string `default:"Temperature" enum:"Temperature,Precipitation,Humidity,Windspeed" help:"Feature to forecast."`
}

func (c *ForecastCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, st, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	feature, err := models.ParseFeature(c.Feature)
	if err != nil {
		return err
	}
	builder := dataset.NewBuilder(store.NewResilientExecutor(st, 10*time.Second), st.Dialect())
	series, err := builder.ForecastSeries(ctx, models.FilterSet{
		Cities:   []string{c.City},
		Features: []models.Feature{feature},
	})
	if err != nil {
		return err
	}

	points, err := forecast.NewEngine().Run(ctx, series.Dates, series.Values)
	if errors.Is(err, forecast.ErrSeriesTooShort) {
		return fmt.Errorf("%s has %d %s observations: %w", c.City, len(series.Values), feature, err)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DATE\tFORECAST (%s)\tACTUAL\tERROR\n", feature.Unit())
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%+.2f\n", p.Date.Format(models.DateLayout), p.Forecast, p.Actual, p.Forecast-p.Actual)
	}
	return w.Flush()
}
