package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/froberg/shopsync/internal/api"
	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/platform"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/froberg/shopsync/internal/service"
	"github.com/froberg/shopsync/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

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

	// Optional S3-compatible archive for raw export results.
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
		if err := s3Archive.EnsureBucket(context.Background()); err != nil {
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
	seeder := service.NewSeederService(jobRepo)
	aggregation := service.NewAggregationService(orderRepo, aggregateRepo, &cfg.Aggregation)

	router := api.SetupRouter(db, scheduler, seeder, aggregation, jobRepo, aggregateRepo, cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
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
