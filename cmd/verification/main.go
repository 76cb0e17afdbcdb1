package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/config/logger"
	postgresConfig "github.com/iavendas62-collab/qubix-sub003/config/storage/postgresql"
	config "github.com/iavendas62-collab/qubix-sub003/config/utils"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/ledger"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/queue/rabbitmq"
	"github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/postgres"
	redisAdapter "github.com/iavendas62-collab/qubix-sub003/internal/adapter/storage/redis"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	redigo "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Setup Logger & Config
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	ctx := context.Background()

	log.Info("Starting Verification...")

	// 2. Test Postgres
	log.Info("--- Testing Postgres ---")
	dbService, err := postgresConfig.New(ctx, appConfig.DB, log)
	if err != nil {
		log.Fatal("Failed to connect to DB", zap.Error(err))
	}
	jobRepo := postgres.NewJobRepository(dbService.Pool, log)

	// Create a dummy job
	job := &domain.Job{
		ID:      fmt.Sprintf("test-job-%d", time.Now().Unix()),
		OwnerID: "verification-owner",
		JobType: domain.JobTypeInference,
		Requirements: domain.ResourceRequirements{
			VramGB:       4,
			ComputeUnits: 2,
			RamGB:        8,
		},
		Budget:    5.0,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now(),
	}

	if err := jobRepo.Save(ctx, job); err != nil {
		log.Error("X Postgres: Save Job Failed", zap.Error(err))
	} else {
		log.Info("✓ Postgres: Save Job Success")
	}

	if fetched, err := jobRepo.GetByID(ctx, job.ID); err != nil {
		log.Error("X Postgres: Get Job Failed", zap.Error(err))
	} else {
		log.Info("✓ Postgres: Get Job Success", zap.String("FetchedID", fetched.ID))
	}

	// 3. Test Redis
	log.Info("--- Testing Redis ---")
	redisClient := redigo.NewClient(&redigo.Options{
		Addr:     appConfig.Redis.Addr,
		Password: appConfig.Redis.Password,
		DB:       0,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	directory := redisAdapter.NewProviderDirectory(redisClient, log)

	provider := &domain.Provider{
		ID:            "test-provider-1",
		OwnerID:       "verification-owner",
		ResourceClass: "RTX 3090",
		Capacity: domain.Capacity{
			VramGB:       24,
			ComputeUnits: 10,
			RamGB:        64,
		},
		PricePerHour:  1.2,
		Online:        true,
		Available:     true,
		LastHeartbeat: time.Now(),
	}

	if err := directory.Register(ctx, provider); err != nil {
		log.Error("X Redis: Register Provider Failed", zap.Error(err))
	} else {
		log.Info("✓ Redis: Register Provider Success")
	}

	providers, err := directory.Snapshot(ctx)
	if err != nil {
		log.Error("X Redis: Snapshot Failed", zap.Error(err))
	} else {
		log.Info("✓ Redis: Snapshot Success", zap.Int("Count", len(providers)))
	}

	// 4. Test RabbitMQ
	log.Info("--- Testing RabbitMQ ---")
	user := os.Getenv("MQ_ADMIN_USER")
	if user == "" {
		user = "admin"
	}
	pass := os.Getenv("MQ_ADMIN_PASS")
	if pass == "" {
		pass = "admin"
	}
	host := "localhost"
	port := "5672"

	amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	queue, err := rabbitmq.NewQueueService(amqpURL, log)
	if err != nil {
		log.Error("X RabbitMQ: Connection Failed", zap.Error(err))
	} else {
		event := domain.Event{
			Type:       domain.EventJobSubmitted,
			JobID:      job.ID,
			OccurredAt: time.Now(),
		}
		if err := queue.Publish(ctx, event); err != nil {
			log.Error("X RabbitMQ: Publish Failed", zap.Error(err))
		} else {
			log.Info("✓ RabbitMQ: Publish Success")
		}
	}

	// 5. Test Ledger Gateway
	log.Info("--- Testing Ledger ---")
	gateway := ledger.NewGateway(appConfig.Ledger.BaseURL, appConfig.Ledger.Timeout, log)
	balance, err := gateway.GetBalance(ctx, "verification-owner")
	if err != nil {
		log.Warn("! Ledger: Query Failed (Expected if bad connection or no data)", zap.Error(err))
	} else {
		log.Info("✓ Ledger: Query Success", zap.Float64("Balance", balance))
	}

	log.Info("Verification Complete.")
}
