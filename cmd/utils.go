package cmd

import (
	"flag"
	"log"

	"eduface-backend/internal/sessioncache"
	"eduface-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// StorageConfig selects the frame store backend. When an S3 endpoint is
// configured frames go to S3 (or MinIO); otherwise they are written under
// LocalStorageDir, which is enough for single-host deployments.
type StorageConfig struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR" envDefault:"./eduface-data"`
}

func CreateStorageProvider(cfg StorageConfig) (storage.Provider, error) {
	if cfg.S3EndpointURL != "" || cfg.S3AccessKeyID != "" {
		return storage.NewS3Provider(&storage.S3ProviderConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
	}
	return storage.NewLocalProvider(cfg.LocalStorageDir)
}

// CreateSessionCache returns a Redis-backed cache when an address is
// configured, falling back to the in-process cache otherwise.
func CreateSessionCache(addr, password string) (sessioncache.Cache, error) {
	if addr == "" {
		log.Printf("REDIS_ADDR not set, using in-memory session cache")
		return sessioncache.NewInMemoryCache(), nil
	}
	return sessioncache.NewRedisCache(addr, password)
}
