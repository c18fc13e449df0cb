package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobtrack/internal/cache"
	"jobtrack/internal/config"
	server "jobtrack/internal/http"
	"jobtrack/internal/jobs"
	"jobtrack/internal/migrate"
	"jobtrack/internal/seed"
	"jobtrack/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	seedCount := flag.Int("seed", 0, "insert N seed jobs and exit")
	seedBatch := flag.Int("seed-batch", 1000, "seed insert batch size")
	seedPrefix := flag.String("seed-prefix", "Seed Job", "seed job name prefix")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	if *seedCount > 0 {
		created, err := seed.Run(context.Background(), st, logger, seed.Options{
			Count:  *seedCount,
			Batch:  *seedBatch,
			Prefix: *seedPrefix,
		})
		if err != nil {
			log.Fatalf("seeding failed after %d jobs: %v", created, err)
		}
		logger.Info("seeding complete", "created", created)
		return
	}

	cc, err := cache.New(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("redis setup failed: %v", err)
	}
	epochs := cache.NewEpochs(cc, cfg.Cache.EpochKey, logger)

	svc := jobs.NewService(st, cc, epochs, jobs.TTLs{
		List:    time.Duration(cfg.Cache.ListTTLSeconds) * time.Second,
		Detail:  time.Duration(cfg.Cache.DetailTTLSeconds) * time.Second,
		History: time.Duration(cfg.Cache.HistoryTTLSeconds) * time.Second,
	}, logger)

	s := server.NewServer(cfg, svc, db, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
