package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/config/logger"
	postgresConfig "github.com/iavendas62-collab/qubix-sub003/config/storage/postgresql"
	config "github.com/iavendas62-collab/qubix-sub003/config/utils"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/queue/rabbitmq"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/postgres"
	redisAdapter "github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/redis"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/service"
	redigo "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// 1. Init Config & Logger
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	zap.ReplaceGlobals(log)

	providerID := os.Getenv("PROVIDER_ID")
	if providerID == "" {
		providerID = fmt.Sprintf("provider-%d", time.Now().Unix())
	}
	log = log.With(zap.String("service", "worker"), zap.String("provider", providerID))
	log.Info("Starting Provider Agent")

	// 2. Init Adapters

	// Postgres
	dbService, err := postgresConfig.New(rootCtx, appConfig.DB, log)
	if err != nil {
		log.Fatal("Failed to init Postgres", zap.Error(err))
	}
	jobRepo := postgres.NewJobRepository(dbService.Pool, log)
	providerRepo := postgres.NewProviderRepository(dbService.Pool, log)

	// Redis with Retry
	var redisClient *redigo.Client
	maxRedisRetries := 10
	for i := 1; i <= maxRedisRetries; i++ {
		redisClient = redigo.NewClient(&redigo.Options{
			Addr:     appConfig.Redis.Addr,
			Password: appConfig.Redis.Password,
			DB:       0,
		})
		if err := redisClient.Ping(rootCtx).Err(); err == nil {
			break
		} else {
			log.Warn("Failed to connect to Redis, retrying...", zap.Int("attempt", i), zap.Error(err))
			redisClient.Close()
			if i == maxRedisRetries {
				log.Fatal("Failed to init Redis after max retries", zap.Error(err))
			}
			time.Sleep(time.Duration(i*2) * time.Second)
		}
	}
	directory := redisAdapter.NewProviderDirectory(redisClient, log)

	// RabbitMQ
	mqURL := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		appConfig.MQ.User, appConfig.MQ.Pass,
		appConfig.MQ.Host, appConfig.MQ.Port,
		appConfig.MQ.Vhost,
	)
	queueService, err := rabbitmq.NewQueueService(mqURL, log)
	if err != nil {
		log.Fatal("Failed to init RabbitMQ", zap.Error(err))
	}

	// 3. Build this provider's hardware profile from the environment
	profile := domain.Provider{
		ID:      providerID,
		OwnerID: os.Getenv("PROVIDER_OWNER"),
		Capacity: domain.Capacity{
			VramGB:       envFloat("PROVIDER_VRAM_GB", 24),
			ComputeUnits: envFloat("PROVIDER_COMPUTE_UNITS", 10),
			RamGB:        envFloat("PROVIDER_RAM_GB", 64),
		},
		ResourceClass: envStr("PROVIDER_RESOURCE_CLASS", "RTX 4090"),
		PricePerHour:  envFloat("PROVIDER_PRICE_PER_HOUR", 1.5),
		Online:        true,
		Available:     true,
	}

	// The broker is the source of truth for assignment state; the row just
	// has to exist before jobs can settle against it
	if err := providerRepo.Save(rootCtx, &profile); err != nil {
		log.Fatal("Failed to register provider", zap.Error(err))
	}

	// 4. Start the agent
	agent := service.NewProviderAgent(
		profile, jobRepo, directory, queueService,
		envDuration("PROVIDER_WORK_DURATION", 8*time.Second),
		log,
	)
	if err := agent.Start(rootCtx); err != nil {
		log.Fatal("Failed to start agent", zap.Error(err))
	}

	log.Info("Agent started successfully. Waiting for assignments...")

	// 5. Wait for Shutdown
	<-rootCtx.Done()
	log.Info("Shutting down...")

	// Cleanup
	queueService.Close()
	dbService.Close()
	redisClient.Close()

	time.Sleep(1 * time.Second)
	log.Info("Shutdown complete")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
