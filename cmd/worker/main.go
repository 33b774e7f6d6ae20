package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/stats"
	"switchboard/internal/pkg/logger"
	"switchboard/internal/platform/config"
	"switchboard/internal/platform/database"
	"switchboard/internal/platform/repositories"
	"switchboard/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	hour := flag.Int("hour", 1, "UTC hour at which the daily rollup runs")
	once := flag.String("once", "", "Aggregate a single date (YYYY-MM-DD) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	statsSvc := stats.NewService(repositories.NewCallRecordRepository(db))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	if *once != "" {
		day, err := time.Parse(time.DateOnly, *once)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -once date")
		}
		if err := workers.AggregateDailyStats(ctx, statsSvc, day); err != nil {
			log.Fatal().Err(err).Msg("daily stats aggregation failed")
		}
		return
	}

	log.Info().Int("hour", *hour).Msg("starting switchboard workers")
	workers.RunDailyStats(ctx, statsSvc, *hour)
	log.Info().Msg("workers stopped")
}
