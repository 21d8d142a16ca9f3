package main

import (
	"context"
	"log/slog"
	"os"

	"attendx/internal/config"
	"attendx/internal/logging"
	"attendx/internal/store"
)

// Migrate applies pending schema migrations and exits.
func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Production())

	db, err := store.NewDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db.Client); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
}
