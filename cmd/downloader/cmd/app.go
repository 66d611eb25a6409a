package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/Yudee-19/video-downloader/internal/backend"
	"github.com/Yudee-19/video-downloader/internal/config"
	"github.com/Yudee-19/video-downloader/internal/download"
	"github.com/Yudee-19/video-downloader/internal/ffmpeg"
	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
	"github.com/Yudee-19/video-downloader/internal/storage"
	"github.com/Yudee-19/video-downloader/internal/store"
	"github.com/Yudee-19/video-downloader/internal/ytdlp"
)

// app holds the collaborators shared by the serve and worker commands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	redis   *redis.Client
	store   *store.StatusStore
	records *download.Records
	// queue is nil when Redis is unreachable
	queue *backend.RedisQueue

	resolver   *ytdlp.Resolver
	transcoder *ffmpeg.Transcoder
	objects    storage.ObjectStore
	executor   *download.Executor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logger.Default().WithComponent("app"),
		metrics: metrics.Default(),
	}

	if err := os.MkdirAll(cfg.Jobs.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}

	client, err := store.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		a.log.Warn(ctx, "redis unavailable, batch queue disabled", map[string]interface{}{"error": err.Error()})
	} else {
		a.redis = client
		a.queue = backend.NewRedisQueue(client, cfg.Jobs.QueueKey, a.metrics)
	}

	primary, err := a.openStore(ctx)
	if err != nil {
		a.log.Warn(ctx, "status store unavailable, using in-memory records", map[string]interface{}{
			"driver": cfg.Store.Driver,
			"error":  err.Error(),
		})
	}
	a.store = store.New(primary,
		store.WithTTL(cfg.Store.TTL),
		store.WithMetrics(a.metrics),
		store.WithLogger(logger.Default().WithComponent("store")),
	)
	a.records = download.NewRecords(a.store)

	a.resolver, err = ytdlp.New(ytdlp.Config{
		BinaryPath:      cfg.Resolver.BinaryPath,
		VideoFormat:     cfg.Resolver.VideoFormat,
		AudioFormat:     cfg.Resolver.AudioFormat,
		StreamFormat:    cfg.Resolver.StreamFormat,
		AudioCodec:      cfg.Resolver.AudioCodec,
		AudioQuality:    cfg.Resolver.AudioQuality,
		AudioSampleRate: cfg.Resolver.AudioSampleRate,
		MergeFormat:     cfg.Resolver.MergeFormat,
		Retries:         cfg.Resolver.Retries,
		FragmentRetries: cfg.Resolver.FragmentRetries,
		CookiesFile:     cfg.Resolver.CookiesFile,
		UserAgents:      cfg.Resolver.UserAgents,
		AcceptLanguage:  cfg.Resolver.AcceptLanguage,
		ExtractorArgs:   cfg.Resolver.ExtractorArgs,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing resolver: %w", err)
	}

	a.transcoder, err = ffmpeg.New(ffmpeg.Config{
		BinaryPath:       cfg.Transcoder.BinaryPath,
		StreamAudioCodec: cfg.Transcoder.StreamAudioCodec,
		KillGrace:        cfg.Transcoder.KillGrace,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing transcoder: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		a.close()
		return nil, fmt.Errorf("initializing object storage: %w", err)
	default:
		a.objects = objects
	}

	a.executor = download.NewExecutor(download.ExecutorConfig{
		Records:    a.records,
		Resolver:   a.resolver,
		Trimmer:    a.transcoder,
		Objects:    a.objects,
		ScratchDir: cfg.Jobs.ScratchDir,
		Metrics:    a.metrics,
	})

	return a, nil
}

// openStore returns the configured primary backend. A nil backend leaves
// the in-memory map as the only store.
func (a *app) openStore(ctx context.Context) (store.Backend, error) {
	switch a.cfg.Store.Driver {
	case config.StoreRedis:
		if a.redis == nil {
			return nil, errors.New("redis is not connected")
		}
		return store.NewRedisBackend(a.redis), nil
	case config.StorePostgres:
		db, err := store.OpenPostgres(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b, err := store.NewPostgresBackend(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return b, nil
	default:
		return nil, nil
	}
}

// durable returns the batch executor, or nil so batches are rejected.
func (a *app) durable() download.DurableExecutor {
	if a.queue == nil {
		return nil
	}
	return a.queue
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn(context.Background(), "failed to close status store", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
