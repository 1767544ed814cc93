// Package cli implements the llamalot CLI commands. Every command goes
// through the cache manager, which is the single point of access to the
// persistence layer.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/llamalot/llamalot/internal/cache"
	"github.com/llamalot/llamalot/internal/config"
	"github.com/llamalot/llamalot/internal/store"
)

var dbFlag string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "llamalot",
	Short: "Local model and chat cache for an Ollama server",
	Long:  "Inspect and maintain the llamalot local cache: model catalog, conversation history, and application state. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (default: $LLAMALOT_DB or ~/.llamalot/llamalot.db)")
}

// openManager builds the store and cache manager. No remote client is
// attached here, so reads serve cached data.
func openManager() (*cache.Manager, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dbFlag != "" {
		cfg.DatabasePath = dbFlag
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, err
	}

	mgr := cache.New(st, nil, log)
	mgr.LoadConfiguration(context.Background())
	return mgr, st, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
