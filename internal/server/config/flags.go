package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-x string   worker metrics bind address
//	-d string   PostgreSQL DSN
//	-s string   token HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 main (ciphertext) bucket
//	-t string   S3 temp (download) bucket
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-q string   AMQP URL
//	-w string   staging directory
//	-l int      download URL validity, minutes
//	-m int      worker attempts before dead-lettering
//	-r duration worker base retry delay (e.g., "2s")
//	-v string   log level
//
// Only the flags listed above are taken from os.Args (see flagx.FilterArgs),
// so -c/-config and -envfile do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-x", "-d", "-s", "-u", "-p", "-b", "-t", "-g", "-e", "-q", "-w", "-l", "-m", "-r", "-v",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.MetricsAddr, "x", config.MetricsAddr, "address and port for worker metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3MainBucket, "b", config.S3MainBucket, "S3 main bucket")
	fs.StringVar(&config.S3TempBucket, "t", config.S3TempBucket, "S3 temp bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP URL")
	fs.StringVar(&config.StagingDir, "w", config.StagingDir, "staging directory")

	downloadURLValidity := fs.Int("l", int(config.DownloadURLValidity.Minutes()), "download_url_validity (in minutes)")

	fs.IntVar(&config.WorkerMaxAttempts, "m", config.WorkerMaxAttempts, "worker attempts before dead-lettering")
	fs.DurationVar(&config.WorkerRetryBaseDelay, "r", config.WorkerRetryBaseDelay, "worker base retry delay")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DownloadURLValidity = time.Duration(*downloadURLValidity) * time.Minute
}
