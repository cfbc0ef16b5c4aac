package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"eduface-backend/cmd"
	"eduface-backend/internal/database"
	"eduface-backend/internal/messaging"
	"eduface-backend/internal/pipeline"
	"eduface-backend/internal/verification"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL        string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL        string `env:"RABBITMQ_URL,notEmpty,required"`
	VerificationURL    string `env:"VERIFICATION_URL,notEmpty,required"`
	VerificationAPIKey string `env:"VERIFICATION_API_KEY" envDefault:""`
	FrameBucketName    string `env:"FRAME_BUCKET_NAME" envDefault:"frames"`

	Storage cmd.StorageConfig
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.CreateStorageProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	verifier := verification.NewClient(cfg.VerificationURL, cfg.VerificationAPIKey)

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	processor := pipeline.NewTaskProcessor(db, store, verifier, receiver, cfg.FrameBucketName)

	go processor.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping task processor...")

	processor.Stop()

	log.Println("Worker process stopped.")
}
