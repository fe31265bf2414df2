package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"owl-alerts/common/database"
	logpkg "owl-alerts/common/logger"
	"owl-alerts/internal/config"
	"owl-alerts/internal/report"
	"owl-alerts/internal/repository"
	"owl-alerts/internal/service"

	"go.uber.org/zap"
)

func main() {
	var output = flag.String("o", "alerts.xlsx", "Output file")
	var activeOnly = flag.Bool("active", false, "Export active alerts only")
	var pageID = flag.String("page", "", "Only alerts targeted at this page")
	var minSeverity = flag.String("min-severity", "", "Minimum severity (low, medium, high, critical)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, "console", "export-alerts")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer db.Close()

	svc := service.NewAlertService(repository.NewPostgresRepositories(db, log), nil, nil, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := svc.ListAlerts(ctx, service.ListAlertsRequest{
		ActiveOnly:      *activeOnly,
		PageID:          *pageID,
		MinSeverity:     *minSeverity,
		OrderBySeverity: true,
		Size:            -1,
	})
	if err != nil {
		log.Fatal("Failed to list alerts", zap.Error(err))
	}

	ids := make([]int64, 0, len(resp.Items))
	for _, a := range resp.Items {
		ids = append(ids, a.ID)
	}
	counts, err := svc.CountViews(ctx, ids)
	if err != nil {
		log.Fatal("Failed to count views", zap.Error(err))
	}

	data, err := report.GenerateAlertsReport(resp.Items, counts)
	if err != nil {
		log.Fatal("Failed to generate report", zap.Error(err))
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatal("Failed to write report", zap.String("path", *output), zap.Error(err))
	}

	log.Info("Alerts exported",
		zap.String("path", *output),
		zap.Int("alerts", len(resp.Items)),
	)
}
