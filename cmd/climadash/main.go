package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/lox/climadash/internal/config"
	"github.com/lox/climadash/internal/store"
)

// Globals are shared by every command.
type Globals struct {
	Driver string `name:"db-driver" default:"sqlite" env:"CLIMADASH_DB_DRIVER" enum:"sqlite,sqlite3,postgres,postgresql" help:"Warehouse driver."`
	DSN    string `name:"db-dsn" default:"data/climadash.db" env:"CLIMADASH_DB_DSN" help:"Warehouse DSN (SQLite path or Postgres URL)."`
}

type CLI struct {
	Globals

	Serve       ServeCmd       `cmd:"" default:"1" help:"Serve the dashboard."`
	Migrate     MigrateCmd     `cmd:"" help:"Apply schema migrations to the SQLite warehouse."`
	Import      ImportCmd      `cmd:"" help:"Import a CSV export from a file or ftp:// URL."`
	Climatology ClimatologyCmd `cmd:"" help:"Rebuild climatology_day from history_day."`
	Forecast    ForecastCmd    `cmd:"" help:"Print a rolling 14-day forecast for one city."`
}

func main() {
	config.LoadEnv()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("climadash"),
		kong.Description("Historical weather and climatology dashboard."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// open connects to the warehouse described by the global flags.
func (g *Globals) open(ctx context.Context) (*sql.DB, *store.Store, error) {
	if err := config.Validate(config.Database{Driver: g.Driver, DSN: g.DSN}); err != nil {
		return nil, nil, err
	}
	dialect, err := store.DialectFor(g.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, dialect, g.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, store.New(db, dialect), nil
}

// migrateIfOwned migrates the embedded SQLite warehouse and leaves an
// externally managed Postgres schema alone.
func migrateIfOwned(st *store.Store) error {
	if st.Dialect().Name != store.SQLite.Name {
		log.Printf("%s schema is managed externally; skipping migrations", st.Dialect().Name)
		return nil
	}
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
