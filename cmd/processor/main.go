package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"weather-upload-service/internal/config"
	"weather-upload-service/internal/repository"
	"weather-upload-service/internal/services"
	"weather-upload-service/internal/storage"
	"weather-upload-service/internal/trigger"
	"weather-upload-service/pkg/database"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("weather-upload-processor", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[PROCESSOR_START] Starting weather upload processor", logging.Fields{
		"version":   version,
		"db_host":   cfg.Database.Host,
		"db_name":   cfg.Database.Database,
		"bucket":    cfg.ObjectStore.Bucket,
		"topic":     cfg.Kafka.Topic,
		"demo_mode": cfg.Demo.Enabled,
	})

	metricsCollector := metrics.NewCollector("weather_upload_processor")

	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[PROCESSOR_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	uploadRepo := repository.NewUploadRepository(db, logger, metricsCollector)
	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	userRepo := repository.NewUserRepository(db, logger, metricsCollector)

	processor := services.NewProcessorService(uploadRepo, weatherRepo, logger, metricsCollector, clockwork.NewRealClock())
	userService := services.NewUserService(userRepo, logger)

	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Bucket:    cfg.ObjectStore.Bucket,
		UseSSL:    cfg.ObjectStore.UseSSL,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[PROCESSOR_ERROR] Failed to create object store client", logging.Fields{}, err)
	}

	adapter := trigger.NewAdapter(
		processor,
		userRepo,
		userService,
		store,
		logger,
		cfg.Demo.Enabled,
		services.DemoUser{
			Name:         cfg.Demo.UserName,
			Email:        cfg.Demo.UserEmail,
			PasswordHash: cfg.Demo.PasswordHash,
		},
	)

	consumer := trigger.NewConsumer(trigger.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, adapter, logger, metricsCollector)
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		logger.Fatal(ctx, "[PROCESSOR_ERROR] Consumer failed", logging.Fields{}, err)
	}

	logger.Info(context.Background(), "[PROCESSOR_STOP] Processor stopped", logging.Fields{})
}
