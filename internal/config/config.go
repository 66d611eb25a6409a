// Package config loads service configuration from defaults, an optional
// YAML file and VDL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8000
	defaultReadTimeout     = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultRecordTTL       = time.Hour
	defaultPoolSize        = 3
	defaultJobTimeout      = time.Hour
	defaultDequeueTimeout  = 5 * time.Second
	defaultQueueKey        = "download:queue"
	defaultScratchDir      = "tmp_videos"
	defaultPresignExpiry   = time.Hour
	defaultKillGrace       = 3 * time.Second
	defaultChunkSize       = 32 * 1024
	defaultJanitorSchedule = "@every 10m"
)

// Store drivers.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Single-job execution backends.
const (
	BackendBackground = "background"
	BackendPool       = "pool"
	BackendQueue      = "queue"
)

// Object storage drivers.
const (
	StorageNone  = "none"
	StorageS3    = "s3"
	StorageMinio = "minio"
)

// Config holds all configuration for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Store      StoreConfig      `mapstructure:"store"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Transcoder TranscoderConfig `mapstructure:"transcoder"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Janitor    JanitorConfig    `mapstructure:"janitor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// RedisConfig holds the Redis connection used by the status store and the durable queue.
type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// PostgresConfig holds the connection string of the postgres status store.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StoreConfig selects the status store backend.
type StoreConfig struct {
	Driver string        `mapstructure:"driver"` // redis, postgres, memory
	TTL    time.Duration `mapstructure:"ttl"`
}

// JobsConfig controls job execution.
type JobsConfig struct {
	SingleBackend     string        `mapstructure:"single_backend"` // background, pool, queue
	PoolSize          int           `mapstructure:"pool_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
	QueueKey          string        `mapstructure:"queue_key"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	DequeueTimeout    time.Duration `mapstructure:"dequeue_timeout"`
	ScratchDir        string        `mapstructure:"scratch_dir"`
}

// ResolverConfig configures the yt-dlp media resolver.
type ResolverConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`
	VideoFormat     string   `mapstructure:"video_format"`
	AudioFormat     string   `mapstructure:"audio_format"`
	StreamFormat    string   `mapstructure:"stream_format"`
	AudioCodec      string   `mapstructure:"audio_codec"`
	AudioQuality    string   `mapstructure:"audio_quality"`
	AudioSampleRate int      `mapstructure:"audio_sample_rate"`
	MergeFormat     string   `mapstructure:"merge_format"`
	Retries         int      `mapstructure:"retries"`
	FragmentRetries int      `mapstructure:"fragment_retries"`
	CookiesFile     string   `mapstructure:"cookies_file"`
	UserAgents      []string `mapstructure:"user_agents"`
	AcceptLanguage  string   `mapstructure:"accept_language"`
	ExtractorArgs   string   `mapstructure:"extractor_args"`
}

// TranscoderConfig configures the ffmpeg transcoder.
type TranscoderConfig struct {
	BinaryPath       string        `mapstructure:"binary_path"`
	StreamAudioCodec string        `mapstructure:"stream_audio_codec"`
	KillGrace        time.Duration `mapstructure:"kill_grace"`
	ChunkSize        int           `mapstructure:"chunk_size"`
}

// StorageConfig configures the object store used for batch artifacts.
type StorageConfig struct {
	Driver        string        `mapstructure:"driver"` // none, s3, minio
	Endpoint      string        `mapstructure:"endpoint"`
	Region        string        `mapstructure:"region"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	UsePathStyle  bool          `mapstructure:"use_path_style"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// JanitorConfig configures the scratch directory sweeper.
type JanitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and use
// the VDL_ prefix with underscores for nesting, e.g. VDL_SERVER_PORT=8000.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/video-downloader")
	}

	v.SetEnvPrefix("VDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv keeps the unprefixed variable names deployments already use.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("redis.url", "VDL_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("postgres.dsn", "VDL_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("jobs.pool_size", "VDL_JOBS_POOL_SIZE", "MAX_PARALLEL_DOWNLOADS")
	_ = v.BindEnv("jobs.scratch_dir", "VDL_JOBS_SCRATCH_DIR", "TEMP_DIR")
	_ = v.BindEnv("resolver.cookies_file", "VDL_RESOLVER_COOKIES_FILE", "COOKIES_FILE")
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("store.driver", StoreRedis)
	v.SetDefault("store.ttl", defaultRecordTTL)

	v.SetDefault("jobs.single_backend", BackendBackground)
	v.SetDefault("jobs.pool_size", defaultPoolSize)
	v.SetDefault("jobs.timeout", defaultJobTimeout)
	v.SetDefault("jobs.queue_key", defaultQueueKey)
	v.SetDefault("jobs.worker_concurrency", defaultPoolSize)
	v.SetDefault("jobs.dequeue_timeout", defaultDequeueTimeout)
	v.SetDefault("jobs.scratch_dir", defaultScratchDir)

	v.SetDefault("resolver.binary_path", "yt-dlp")
	v.SetDefault("resolver.video_format", "bestvideo+bestaudio/best")
	v.SetDefault("resolver.audio_format", "bestaudio/best")
	v.SetDefault("resolver.stream_format", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best")
	v.SetDefault("resolver.audio_codec", "mp3")
	v.SetDefault("resolver.audio_quality", "192")
	v.SetDefault("resolver.audio_sample_rate", 44100)
	v.SetDefault("resolver.merge_format", "mp4")
	v.SetDefault("resolver.retries", 5)
	v.SetDefault("resolver.fragment_retries", 5)
	v.SetDefault("resolver.cookies_file", "cookies.txt")
	v.SetDefault("resolver.user_agents", []string{})
	v.SetDefault("resolver.accept_language", "en-US,en;q=0.9")
	v.SetDefault("resolver.extractor_args", "")

	v.SetDefault("transcoder.binary_path", "ffmpeg")
	v.SetDefault("transcoder.stream_audio_codec", "aac")
	v.SetDefault("transcoder.kill_grace", defaultKillGrace)
	v.SetDefault("transcoder.chunk_size", defaultChunkSize)

	v.SetDefault("storage.driver", StorageNone)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.presign_expiry", defaultPresignExpiry)

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.schedule", defaultJanitorSchedule)
	v.SetDefault("janitor.max_age", defaultRecordTTL)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	switch c.Store.Driver {
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis store")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("store.driver must be one of: redis, postgres, memory")
	}
	if c.Store.TTL <= 0 {
		return fmt.Errorf("store.ttl must be positive")
	}

	validBackends := map[string]bool{BackendBackground: true, BackendPool: true, BackendQueue: true}
	if !validBackends[c.Jobs.SingleBackend] {
		return fmt.Errorf("jobs.single_backend must be one of: background, pool, queue")
	}
	if c.Jobs.PoolSize < 1 {
		return fmt.Errorf("jobs.pool_size must be at least 1")
	}
	if c.Jobs.WorkerConcurrency < 1 {
		return fmt.Errorf("jobs.worker_concurrency must be at least 1")
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("jobs.timeout must be positive")
	}
	if c.Jobs.QueueKey == "" {
		return fmt.Errorf("jobs.queue_key is required")
	}
	if c.Jobs.ScratchDir == "" {
		return fmt.Errorf("jobs.scratch_dir is required")
	}

	if c.Resolver.BinaryPath == "" {
		return fmt.Errorf("resolver.binary_path is required")
	}
	if c.Resolver.Retries < 0 || c.Resolver.FragmentRetries < 0 {
		return fmt.Errorf("resolver retries must not be negative")
	}
	if c.Transcoder.BinaryPath == "" {
		return fmt.Errorf("transcoder.binary_path is required")
	}
	if c.Transcoder.ChunkSize < 1 {
		return fmt.Errorf("transcoder.chunk_size must be at least 1")
	}

	switch c.Storage.Driver {
	case StorageNone:
	case StorageS3, StorageMinio:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage.driver is %s", c.Storage.Driver)
		}
		if c.Storage.Driver == StorageMinio && c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for minio")
		}
		if c.Storage.PresignExpiry <= 0 {
			return fmt.Errorf("storage.presign_expiry must be positive")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: none, s3, minio")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageEnabled reports whether finished batch artifacts go to object storage.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Driver != StorageNone
}
