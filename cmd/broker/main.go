package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/config/logger"
	postgresConfig "github.com/iavendas62-collab/qubix-sub003/config/storage/postgresql"
	redisConfig "github.com/iavendas62-collab/qubix-sub003/config/storage/redis"
	config "github.com/iavendas62-collab/qubix-sub003/config/utils"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/ledger"
	promAdapter "github.com/iavendas62-collab/qubix-sub003/internal/adapter/monitoring/prometheus"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/queue/rabbitmq"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/postgres"
	redisAdapter "github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/redis"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// _readinessDrainDelay is time to sleep while context shutdown message propagate
const _readinessDrainDelay = 2 * time.Second

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// 1. Init Config & Logger
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	zap.ReplaceGlobals(log)

	log = log.With(zap.String("service", "broker"))
	log.Info("Starting the marketplace broker",
		zap.String("app", appConfig.App.Name),
		zap.String("env", appConfig.App.Env))

	// 2. Init Postgres & migrate
	dbService, err := postgresConfig.New(rootCtx, appConfig.DB, log.Named("DB"))
	if err != nil {
		log.Fatal("Failed to init Postgres", zap.Error(err))
	}
	if err := dbService.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Successfully migrated the database")

	jobRepo := postgres.NewJobRepository(dbService.Pool, log)
	providerRepo := postgres.NewProviderRepository(dbService.Pool, log)
	transactionRepo := postgres.NewTransactionRepository(dbService.Pool, log)
	benchmarkStore := postgres.NewBenchmarkStore(dbService, log)

	// 3. Init Redis provider directory
	redisService, err := redisConfig.New(rootCtx, appConfig.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	directory := redisAdapter.NewProviderDirectory(redisService.Client, log)

	// 4. Init RabbitMQ
	mqURL := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		appConfig.MQ.User, appConfig.MQ.Pass,
		appConfig.MQ.Host, appConfig.MQ.Port,
		appConfig.MQ.Vhost,
	)
	queueService, err := rabbitmq.NewQueueService(mqURL, log)
	if err != nil {
		log.Fatal("Failed to init RabbitMQ", zap.Error(err))
	}

	// 5. Init ledger gateway & metrics
	ledgerGateway := ledger.NewGateway(appConfig.Ledger.BaseURL, appConfig.Ledger.Timeout, log.Named("Ledger"))

	registry := prometheus.NewRegistry()
	metrics := promAdapter.NewMetrics(registry)
	metricsServer := &http.Server{
		Addr:    ":" + appConfig.App.MetricsPort,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	// 6. Build core services
	mp := appConfig.Marketplace
	estimator := service.NewCostEstimator(benchmarkStore, service.EstimatorConfig{
		HeuristicDurations: mp.HeuristicDurations,
		ParamExponents:     mp.ParamExponents,
	}, log.Named("Estimator"))

	matcher := service.NewProviderMatcher(estimator, service.MatcherConfig{
		OverProvisionThreshold: mp.OverProvisionThreshold,
		CostWeight:             mp.CostWeight,
		DurationWeight:         mp.DurationWeight,
		ReliabilityWeight:      mp.ReliabilityWeight,
	}, log.Named("Matcher"))

	balances := service.NewBalanceCache(mp.BalanceCacheTTL, metrics, log.Named("BalanceCache"))

	lifecycle := service.NewJobLifecycle(
		jobRepo, providerRepo, transactionRepo,
		ledgerGateway, estimator, queueService, balances, metrics,
		service.LifecycleConfig{MaxReassignments: mp.MaxReassignments},
		log.Named("Lifecycle"),
	)

	dispatcher := service.NewDispatcher(jobRepo, directory, matcher, lifecycle, mp.DispatchInterval, log.Named("Dispatcher"))
	broadcaster := service.NewEarningsBroadcaster(jobRepo, providerRepo, queueService, metrics, mp.BroadcastInterval, log.Named("Broadcaster"))
	reports := service.NewReportHandler(lifecycle, log.Named("Reports"))

	// 7. Start the loops
	if err := queueService.Consume(rootCtx, reports.Handle); err != nil {
		log.Fatal("Failed to start report consumer", zap.Error(err))
	}
	go dispatcher.Start(rootCtx)
	go broadcaster.Start(rootCtx)

	log.Info("Broker started successfully")

	// 8. Wait for shutdown
	<-rootCtx.Done()
	log.Info("Shutting down...")

	time.Sleep(_readinessDrainDelay)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Metrics server shutdown", zap.Error(err))
	}

	queueService.Close()
	redisService.Client.Close()
	dbService.Close()

	log.Info("Graceful shutdown complete.")
	os.Exit(0)
}
