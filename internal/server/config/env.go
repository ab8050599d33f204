package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// parseEnv overlays Config with environment variables. A dotenv file named by
// -envfile (or ./.env when present) is loaded first; variables already set in
// the process environment take precedence over the file.
//
// Variables:
//
//	HTTP_ADDR, METRICS_ADDR, DATABASE_URL, SECRET_KEY,
//	MINIO_ROOT_USER, MINIO_ROOT_PASSWORD, MINIO_URL, S3_REGION,
//	UPLOAD_MAIN_BUCKET, DOWNLOAD_TEMP_BUCKET, RABBITMQ_URL, STAGING_DIR,
//	DOWNLOAD_URL_VALIDITY, WORKER_MAX_ATTEMPTS, WORKER_RETRY_BASE_DELAY,
//	PENDING_SWEEP_INTERVAL, PENDING_GRACE_PERIOD, LOG_LEVEL
//
// Malformed numeric or duration values panic, like malformed JSON does.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	config.HTTPAddr = getEnv("HTTP_ADDR", config.HTTPAddr)
	config.MetricsAddr = getEnv("METRICS_ADDR", config.MetricsAddr)
	config.DatabaseDSN = getEnv("DATABASE_URL", config.DatabaseDSN)
	config.SecretKey = getEnv("SECRET_KEY", config.SecretKey)
	config.S3RootUser = getEnv("MINIO_ROOT_USER", config.S3RootUser)
	config.S3RootPassword = getEnv("MINIO_ROOT_PASSWORD", config.S3RootPassword)
	config.S3BaseEndpoint = getEnv("MINIO_URL", config.S3BaseEndpoint)
	config.S3Region = getEnv("S3_REGION", config.S3Region)
	config.S3MainBucket = getEnv("UPLOAD_MAIN_BUCKET", config.S3MainBucket)
	config.S3TempBucket = getEnv("DOWNLOAD_TEMP_BUCKET", config.S3TempBucket)
	config.AMQPURL = getEnv("RABBITMQ_URL", config.AMQPURL)
	config.StagingDir = getEnv("STAGING_DIR", config.StagingDir)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)

	config.DownloadURLValidity = getEnvDuration("DOWNLOAD_URL_VALIDITY", config.DownloadURLValidity)
	config.WorkerRetryBaseDelay = getEnvDuration("WORKER_RETRY_BASE_DELAY", config.WorkerRetryBaseDelay)
	config.PendingSweepInterval = getEnvDuration("PENDING_SWEEP_INTERVAL", config.PendingSweepInterval)
	config.PendingGracePeriod = getEnvDuration("PENDING_GRACE_PERIOD", config.PendingGracePeriod)

	if v, ok := os.LookupEnv("WORKER_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.WorkerMaxAttempts = n
	}
}

// getEnv returns the variable named key, or fallback when it is unset.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(err)
	}
	return d
}
