// Command decivue-seed applies YAML scenario files to a Decivue database.
//
// Usage:
//
//	decivue-seed scenario1.yaml [scenario2.yaml ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/decivue/decivue/internal/config"
	"github.com/decivue/decivue/internal/conflicts"
	"github.com/decivue/decivue/internal/seed"
	"github.com/decivue/decivue/internal/storage"
	"github.com/decivue/decivue/migrations"
)

func main() {
	workers := flag.Int("workers", 4, "concurrent inserts per seeding phase")
	migrate := flag.Bool("migrate", true, "run migrations before seeding")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: decivue-seed [-workers N] [-migrate=false] scenario.yaml ...")
		os.Exit(2)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, flag.Args(), *workers, *migrate); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, paths []string, workers int, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, "", logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(ctx)

	if migrate {
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	rules, err := conflicts.LoadRules(cfg.ConflictRulesPath)
	if err != nil {
		return err
	}
	detector := conflicts.NewDetector(db, rules, logger)

	engine := seed.NewEngine(db, detector, logger)
	if workers > 0 {
		engine.Workers = workers
	}

	for _, path := range paths {
		scenario, err := seed.LoadScenario(path)
		if err != nil {
			return err
		}
		if err := engine.Apply(ctx, scenario); err != nil {
			return fmt.Errorf("apply %s: %w", path, err)
		}
	}
	return nil
}
