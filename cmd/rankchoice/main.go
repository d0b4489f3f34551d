// Command rankchoice runs the ranked-choice voting service: the HTTP
// API in front of the ballot/voter store, or a one-off schema
// migration. Flags fall back to environment variables (the teacher's
// own go.mod declares github.com/alecthomas/kong for exactly this), so
// the binary can be configured the same way whether invoked directly
// or from a container entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/zemekeneng/rankchoice/internal/environment"
	"github.com/zemekeneng/rankchoice/internal/httpapi"
	"github.com/zemekeneng/rankchoice/internal/log"
	"github.com/zemekeneng/rankchoice/internal/rcv"
	"github.com/zemekeneng/rankchoice/internal/store/postgres"
	"github.com/zemekeneng/rankchoice/internal/tokencache"
)

var cli struct {
	Serve   ServeCmd   `cmd:"" help:"Run the HTTP API server."`
	Migrate MigrateCmd `cmd:"" help:"Create the database schema if it does not already exist."`
}

// ServeCmd starts the HTTP API against a Postgres store, optionally
// fronted by a Redis token cache.
type ServeCmd struct {
	Port         string `help:"Port to listen on." env:"VOTE_PORT" default:"8081"`
	DatabaseURL  string `help:"Postgres connection URL." env:"RANKCHOICE_DATABASE_URL" required:""`
	RedisAddr    string `help:"Redis address for the ballot-token cache; empty disables caching." env:"RANKCHOICE_REDIS_ADDR"`
	LogLevel     string `help:"Log level (debug, info, warn, error)." env:"RANKCHOICE_LOG_LEVEL" default:"info"`
	LogMode      string `help:"Log output mode (console or json)." env:"RANKCHOICE_LOG_MODE" default:"console"`
	TieBreakSeed uint64 `help:"Seed for the Random tie-break rule." env:"TABULATOR_TIE_BREAK_SEED" default:"42"`
}

// Run implements kong's command interface.
func (c *ServeCmd) Run() error {
	log.Init(c.LogLevel, c.LogMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := postgres.New(ctx, c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer backend.Close()
	backend.Wait(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	cached := tokencache.New(backend, c.RedisAddr)

	deps := httpapi.Deps{
		Store:     cached,
		RCVConfig: rcv.DefaultConfig(c.TieBreakSeed),
	}

	srv := httpapi.New(environment.MapLookup{"VOTE_PORT": c.Port}, deps)
	return srv.Run(ctx)
}

// MigrateCmd applies the schema and exits, for use in an init
// container or a one-off deploy step ahead of ServeCmd.
type MigrateCmd struct {
	DatabaseURL string `help:"Postgres connection URL." env:"RANKCHOICE_DATABASE_URL" required:""`
}

// Run implements kong's command interface.
func (c *MigrateCmd) Run() error {
	ctx := context.Background()

	backend, err := postgres.New(ctx, c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer backend.Close()
	backend.Wait(ctx)

	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	log.Logger.Info().Msg("schema up to date")
	return nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("rankchoice"),
		kong.Description("Single-winner ranked-choice voting service."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
