package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/database"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/repository"
)

var (
	dryRun         = flag.Bool("dry-run", true, "Dry run mode, only count expired events")
	retentionHours = flag.Int("retention", 0, "Hours of webhook events to keep (0 uses webhook.event_retention_hours)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger := logger.New(cfg.Log)

	hours := *retentionHours
	if hours <= 0 {
		hours = cfg.Webhook.EventRetentionHours
	}
	// 短于 Stripe 的 3 天重投窗口会导致重复入账
	if hours < 72 {
		log.Fatalf("Retention %dh is shorter than the provider redelivery window (72h)", hours)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewDB(ctx, &cfg.Database, appLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	events := repository.NewWebhookEventRepository(db)

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	appLogger.Info("cleanup started", "dry_run", *dryRun, "cutoff", cutoff.Format(time.RFC3339))

	if *dryRun {
		count, err := events.CountBefore(ctx, cutoff)
		if err != nil {
			log.Fatalf("Failed to count events: %v", err)
		}
		appLogger.Info("dry run: events would be deleted", "count", count)
		return
	}

	deleted, err := events.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to delete events: %v", err)
	}
	appLogger.Info("cleanup finished", "deleted", deleted)
}
