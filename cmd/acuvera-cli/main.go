package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/acuvera/internal/app"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

type globals struct {
	inMemory bool
	dbURL    string
	verbose  bool
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "acuvera-cli",
		Short:         "Operate the acuvera bill review backend from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&g.inMemory, "inmem", false, "use a private in-memory database, migrated and seeded with demo data")
	rootCmd.PersistentFlags().StringVar(&g.dbURL, "db-url", "", "Postgres DSN (defaults to DB_URL)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newMigrateCmd(g),
		newDBHealthCmd(g),
		newSeedCmd(g),
		newUploadCmd(g),
		newAnalyzeCmd(g),
		newReanalyzeCmd(g),
		newDashboardCmd(g),
		newExportCmd(g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (g *globals) logger() *slog.Logger {
	lvl := slog.LevelWarn
	if g.verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (g *globals) config() (*common.Config, error) {
	cfg := common.LoadConfig()
	if g.dbURL != "" {
		cfg.Database.DSN = g.dbURL
	}
	if err := cfg.Validate(!g.inMemory); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open builds the application with inline analysis. The in-memory store is
// migrated and seeded so that every command has data to work on.
func (g *globals) open(ctx context.Context) (*app.App, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	logger := g.logger()
	db, err := app.OpenDB(ctx, cfg, g.inMemory, logger)
	if err != nil {
		return nil, err
	}
	if g.inMemory {
		if err := db.Migrate(ctx, logger); err != nil {
			db.Close(logger)
			return nil, err
		}
	}
	a, err := app.New(ctx, cfg, db, true, logger)
	if err != nil {
		db.Close(logger)
		return nil, err
	}
	if g.inMemory {
		if _, err := a.Seed(ctx); err != nil {
			a.Shutdown(ctx)
			return nil, err
		}
	}
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
