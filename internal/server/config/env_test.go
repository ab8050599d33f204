package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseEnv(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("process environment", func(t *testing.T) {
		chdir(t, t.TempDir())
		os.Args = []string{"testbin"}

		t.Setenv("DATABASE_URL", "postgres://env")
		t.Setenv("UPLOAD_MAIN_BUCKET", "main-env")
		t.Setenv("DOWNLOAD_URL_VALIDITY", "30m")
		t.Setenv("WORKER_MAX_ATTEMPTS", "7")

		var c Config
		c.LoadDefaults()
		parseEnv(&c)

		assert.Equal(t, "postgres://env", c.DatabaseDSN)
		assert.Equal(t, "main-env", c.S3MainBucket)
		assert.Equal(t, 30*time.Minute, c.DownloadURLValidity)
		assert.Equal(t, 7, c.WorkerMaxAttempts)
		assert.Equal(t, "download-temp", c.S3TempBucket, "unset variables keep defaults")
	})

	t.Run("dotenv file from flag", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		path := filepath.Join(dir, "custom.env")
		require.NoError(t, os.WriteFile(path, []byte("RABBITMQ_URL=amqp://file\nSTAGING_DIR=/var/staging\n"), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("RABBITMQ_URL")
			os.Unsetenv("STAGING_DIR")
		})

		os.Args = []string{"testbin", "-envfile", path}

		var c Config
		c.LoadDefaults()
		parseEnv(&c)

		assert.Equal(t, "amqp://file", c.AMQPURL)
		assert.Equal(t, "/var/staging", c.StagingDir)
	})

	t.Run("process environment wins over dotenv", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600))
		os.Args = []string{"testbin"}
		t.Setenv("LOG_LEVEL", "warn")

		var c Config
		c.LoadDefaults()
		parseEnv(&c)

		assert.Equal(t, "warn", c.LogLevel)
	})

	t.Run("malformed duration panics", func(t *testing.T) {
		chdir(t, t.TempDir())
		os.Args = []string{"testbin"}
		t.Setenv("WORKER_RETRY_BASE_DELAY", "soon")

		var c Config
		require.Panics(t, func() { parseEnv(&c) })
	})
}
