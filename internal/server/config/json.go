package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/flaxvault/internal/flagx"
	"github.com/dmitrijs2005/flaxvault/internal/timex"
)

// JsonConfig is the on-disk JSON shape of Config. Durations use timex.Duration
// so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr             string         `json:"http_addr"`
	MetricsAddr          string         `json:"metrics_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3MainBucket         string         `json:"s3_main_bucket"`
	S3TempBucket         string         `json:"s3_temp_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	AMQPURL              string         `json:"amqp_url"`
	StagingDir           string         `json:"staging_dir"`
	DownloadURLValidity  timex.Duration `json:"download_url_validity"`
	WorkerMaxAttempts    int            `json:"worker_max_attempts"`
	WorkerRetryBaseDelay timex.Duration `json:"worker_retry_base_delay"`
	PendingSweepInterval timex.Duration `json:"pending_sweep_interval"`
	PendingGracePeriod   timex.Duration `json:"pending_grace_period"`
	LogLevel             string         `json:"log_level"`
}

// parseJson loads the JSON file named by -c/-config into config. Keys absent
// from the file leave the current value untouched. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3MainBucket, c.S3MainBucket)
	setString(&config.S3TempBucket, c.S3TempBucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.StagingDir, c.StagingDir)
	setString(&config.LogLevel, c.LogLevel)

	if c.DownloadURLValidity.Duration > 0 {
		config.DownloadURLValidity = c.DownloadURLValidity.Duration
	}
	if c.WorkerMaxAttempts > 0 {
		config.WorkerMaxAttempts = c.WorkerMaxAttempts
	}
	if c.WorkerRetryBaseDelay.Duration > 0 {
		config.WorkerRetryBaseDelay = c.WorkerRetryBaseDelay.Duration
	}
	if c.PendingSweepInterval.Duration > 0 {
		config.PendingSweepInterval = c.PendingSweepInterval.Duration
	}
	if c.PendingGracePeriod.Duration > 0 {
		config.PendingGracePeriod = c.PendingGracePeriod.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
