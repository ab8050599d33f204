package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-x", ":9200", "-d", "db", "-s", "secret",
			"-u", "user", "-p", "password", "-b", "main", "-t", "temp", "-g", "us-west-1", "-e", "http://endpoint",
			"-q", "amqp://broker", "-w", "/staging", "-l", "5", "-m", "3", "-r", "500ms", "-v", "debug",
		}, expectPanic: false,
			expected: &Config{
				HTTPAddr:             "127.0.0.1:9090",
				MetricsAddr:          ":9200",
				DatabaseDSN:          "db",
				SecretKey:            "secret",
				S3RootUser:           "user",
				S3RootPassword:       "password",
				S3MainBucket:         "main",
				S3TempBucket:         "temp",
				S3Region:             "us-west-1",
				S3BaseEndpoint:       "http://endpoint",
				AMQPURL:              "amqp://broker",
				StagingDir:           "/staging",
				DownloadURLValidity:  5 * time.Minute,
				WorkerMaxAttempts:    3,
				WorkerRetryBaseDelay: 500 * time.Millisecond,
				LogLevel:             "debug",
			}},
		{name: "Bad int", args: []string{"cmd", "-m", "many"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
