package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultServerPort, cfg.Server.Port)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
	assert.Equal(t, BackendBackground, cfg.Jobs.SingleBackend)
	assert.Equal(t, 3, cfg.Jobs.PoolSize)
	assert.Equal(t, time.Hour, cfg.Jobs.Timeout)
	assert.Equal(t, "download:queue", cfg.Jobs.QueueKey)
	assert.Equal(t, "mp3", cfg.Resolver.AudioCodec)
	assert.Equal(t, 44100, cfg.Resolver.AudioSampleRate)
	assert.Equal(t, 5, cfg.Resolver.Retries)
	assert.Equal(t, 32*1024, cfg.Transcoder.ChunkSize)
	assert.False(t, cfg.StorageEnabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
store:
  driver: memory
storage:
  driver: minio
  endpoint: localhost:9000
  bucket: videos
`), 0o644))

	t.Setenv("VDL_JOBS_SINGLE_BACKEND", "pool")
	t.Setenv("MAX_PARALLEL_DOWNLOADS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, BackendPool, cfg.Jobs.SingleBackend)
	assert.Equal(t, 7, cfg.Jobs.PoolSize)
	assert.True(t, cfg.StorageEnabled())
	assert.Equal(t, "videos", cfg.Storage.Bucket)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8000},
			Redis:      RedisConfig{URL: "redis://localhost:6379"},
			Store:      StoreConfig{Driver: StoreRedis, TTL: time.Hour},
			Jobs:       JobsConfig{SingleBackend: BackendBackground, PoolSize: 3, WorkerConcurrency: 1, Timeout: time.Hour, QueueKey: "q", ScratchDir: "tmp"},
			Resolver:   ResolverConfig{BinaryPath: "yt-dlp"},
			Transcoder: TranscoderConfig{BinaryPath: "ffmpeg", ChunkSize: 1024},
			Storage:    StorageConfig{Driver: StorageNone},
			Logging:    LoggingConfig{Level: "info", Format: "json"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool", func(c *Config) { c.Jobs.PoolSize = 0 }},
		{"zero timeout", func(c *Config) { c.Jobs.Timeout = 0 }},
		{"unknown store", func(c *Config) { c.Store.Driver = "etcd" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StorePostgres }},
		{"unknown backend", func(c *Config) { c.Jobs.SingleBackend = "celery" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = StorageS3; c.Storage.PresignExpiry = time.Hour }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
