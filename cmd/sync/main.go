package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/platform"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/froberg/shopsync/internal/service"
	"github.com/froberg/shopsync/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "shopsync-sync",
	})
	logger.SetDefaultLogger(appLogger)

	seed := flag.Bool("seed", false, "Seed backfill jobs for the given shops and date range")
	run := flag.Bool("run", false, "Run scheduling passes until all jobs are processed")
	aggregate := flag.Bool("aggregate", false, "Aggregate daily metrics for the given date")
	shops := flag.String("shops", "", "Comma-separated shop names (default: all configured shops)")
	types := flag.String("types", "", "Comma-separated object types (default: all)")
	startDate := flag.String("start", "", "Start date YYYY-MM-DD (inclusive)")
	endDate := flag.String("end", "", "End date YYYY-MM-DD (inclusive, default: start date)")
	date := flag.String("date", "", "Aggregation target date YYYY-MM-DD (default: yesterday)")
	passInterval := flag.Duration("pass-interval", 10*time.Second, "Delay between scheduling passes")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if !*seed && !*run && !*aggregate {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if err := domain.ValidateObjectTypeGraph(); err != nil {
		appLogger.WithError(err).Fatal("Invalid object type dependency graph")
	}

	// InitDB migrates when database.auto_migrate is set.
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	aggregateRepo := repository.NewAggregateRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *seed {
		seedJobs(ctx, appLogger, cfg, jobRepo, *shops, *types, *startDate, *endDate)
	}

	if *run {
		runScheduler(ctx, appLogger, cfg, jobRepo, orderRepo, *passInterval)
	}

	if *aggregate {
		runAggregation(ctx, appLogger, cfg, orderRepo, aggregateRepo, *date)
	}
}

func seedJobs(
	ctx context.Context,
	appLogger *logger.Logger,
	cfg *config.Config,
	jobRepo *repository.JobRepository,
	shops, types, startDate, endDate string,
) {
	if startDate == "" {
		appLogger.Fatal("-seed requires -start")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid -start date")
	}
	end := start
	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			appLogger.WithError(err).Fatal("Invalid -end date")
		}
	}

	shopNames := splitList(shops)
	if len(shopNames) == 0 {
		shopNames = cfg.ShopNames()
	}
	if len(shopNames) == 0 {
		appLogger.Fatal("No shops given and none configured")
	}

	var objectTypes []domain.ObjectType
	for _, t := range splitList(types) {
		objectTypes = append(objectTypes, domain.ObjectType(t))
	}

	seeder := service.NewSeederService(jobRepo)
	created, err := seeder.Seed(ctx, service.SeedRequest{
		Shops:       shopNames,
		ObjectTypes: objectTypes,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to seed backfill jobs")
	}

	appLogger.WithFields(logger.Fields{
		"created": created,
		"shops":   len(shopNames),
	}).Info("Backfill seeded")
}

func runScheduler(
	ctx context.Context,
	appLogger *logger.Logger,
	cfg *config.Config,
	jobRepo *repository.JobRepository,
	orderRepo *repository.OrderRepository,
	passInterval time.Duration,
) {
	var archive storage.ExportArchive
	if cfg.Archive.Enabled {
		s3Archive, err := storage.NewS3Archive(&storage.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize export archive")
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archive = s3Archive
	}

	clients := newClientFactory(cfg)
	exportService := service.NewExportService(orderRepo, clients, archive, &cfg.Platform)
	enrichService := service.NewRefundEnrichService(orderRepo, clients, &cfg.Enrich, &cfg.Platform)
	scheduler := service.NewScheduler(jobRepo, map[domain.ObjectType]service.Worker{
		domain.ObjectTypeOrders:            exportService,
		domain.ObjectTypeSKUs:              exportService,
		domain.ObjectTypeShippingDiscounts: exportService,
		domain.ObjectTypeRefunds:           enrichService,
	}, &cfg.Scheduler)

	for pass := 1; ; pass++ {
		result, err := scheduler.RunPass(ctx, service.DispatchFilter{})
		if err != nil {
			appLogger.WithError(err).Fatal("Scheduling pass failed")
		}

		appLogger.WithFields(logger.Fields{
			"pass":      pass,
			"pending":   result.Stats.Pending,
			"running":   result.Stats.Running,
			"completed": result.Stats.Completed,
			"failed":    result.Stats.Failed,
		}).Info(result.Message)

		if result.Complete {
			appLogger.Info("All jobs processed")
			return
		}

		select {
		case <-ctx.Done():
			appLogger.Info("Scheduler stopped")
			return
		case <-time.After(passInterval):
		}
	}
}

func runAggregation(
	ctx context.Context,
	appLogger *logger.Logger,
	cfg *config.Config,
	orderRepo *repository.OrderRepository,
	aggregateRepo *repository.AggregateRepository,
	date string,
) {
	target := time.Now().UTC().AddDate(0, 0, -1)
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			appLogger.WithError(err).Fatal("Invalid -date")
		}
		target = parsed
	}

	aggregation := service.NewAggregationService(orderRepo, aggregateRepo, &cfg.Aggregation)
	summary, err := aggregation.AggregateAll(ctx, target)
	if err != nil {
		appLogger.WithError(err).Fatal("Aggregation failed")
	}

	appLogger.WithFields(logger.Fields{
		"date":  summary.Date,
		"shops": summary.ShopsProcessed,
	}).Info("Aggregation completed")
}

// newClientFactory builds one upstream client per configured shop up front;
// unknown shops fail at lookup time, not at request time.
func newClientFactory(cfg *config.Config) service.ClientFactory {
	clients := make(map[string]*platform.Client, len(cfg.Shops))
	for _, shop := range cfg.Shops {
		clients[shop.Name] = platform.NewClient(shop.Name, &platform.Config{
			Domain:         shop.Domain,
			Token:          shop.Token,
			APIVersion:     cfg.Platform.APIVersion,
			RetryCount:     cfg.Platform.RetryCount,
			RetryWaitTime:  cfg.Platform.RetryWaitTime,
			RequestTimeout: cfg.Platform.RequestTimeout,
		})
	}
	return func(shop string) (service.PlatformClient, error) {
		client, ok := clients[shop]
		if !ok {
			return nil, fmt.Errorf("no configured credentials for shop %q", shop)
		}
		return client, nil
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
