package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Yudee-19/video-downloader/internal/api"
	"github.com/Yudee-19/video-downloader/internal/backend"
	"github.com/Yudee-19/video-downloader/internal/config"
	"github.com/Yudee-19/video-downloader/internal/download"
	"github.com/Yudee-19/video-downloader/internal/health"
	"github.com/Yudee-19/video-downloader/internal/janitor"
	"github.com/Yudee-19/video-downloader/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Single downloads run on the configured in-process backend (background
goroutines or a bounded pool) or on the durable queue. Batch downloads are
always pushed to the durable Redis queue and need a running worker.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "host to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
}

// singleBackend builds the executor for single-job submissions, the
// in-process fallback used when that executor refuses work, and a stop
// function that drains both.
func singleBackend(a *app) (backend.Executor, backend.Executor, func(context.Context) error) {
	handler := a.executor.Handler()
	if a.cfg.Jobs.SingleBackend == config.BackendPool {
		pool := backend.NewPool(handler, backend.PoolConfig{
			Size:       a.cfg.Jobs.PoolSize,
			JobTimeout: a.cfg.Jobs.Timeout,
		}, a.metrics)
		pool.Start()
		return pool, nil, pool.Stop
	}

	bg := backend.NewBackground(handler, a.cfg.Jobs.Timeout, a.metrics)
	switch a.cfg.Jobs.SingleBackend {
	case config.BackendQueue:
		if a.queue == nil {
			a.log.Warn(context.Background(), "jobs.single_backend is queue but redis is unavailable, running single jobs in process")
			return bg, nil, bg.Wait
		}
		return a.queue, bg, bg.Wait
	default:
		return bg, nil, bg.Wait
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	single, fallback, drain := singleBackend(a)

	dispatcher := download.NewDispatcher(download.DispatcherConfig{
		Records:           a.records,
		Single:            single,
		Fallback:          fallback,
		Durable:           a.durable(),
		BatchPersistLocal: !cfg.StorageEnabled(),
	})

	pipeline := stream.NewPipeline(stream.Config{
		Resolver:  a.resolver,
		Launcher:  stream.FFmpegLauncher{Transcoder: a.transcoder},
		ChunkSize: cfg.Transcoder.ChunkSize,
		Metrics:   a.metrics,
	})

	checks := &health.CheckerConfig{
		Store:   a.store,
		Objects: a.objects,
		Binaries: map[string]string{
			"yt-dlp": a.resolver.BinaryPath(),
			"ffmpeg": a.transcoder.BinaryPath(),
		},
		Version: version,
	}
	if a.queue != nil {
		checks.Queue = a.queue
	}

	var sweeper *janitor.Janitor
	if cfg.Janitor.Enabled {
		sweeper, err = janitor.New(janitor.Config{
			ScratchDir: cfg.Jobs.ScratchDir,
			Schedule:   cfg.Janitor.Schedule,
			MaxAge:     cfg.Janitor.MaxAge,
			Jobs:       a.records,
			Store:      a.store,
		})
		if err != nil {
			return fmt.Errorf("initializing janitor: %w", err)
		}
		sweeper.Start()
	}

	server := &http.Server{
		Addr: cfg.Server.Address(),
		Handler: api.Handler(api.Deps{
			Dispatcher:  dispatcher,
			Tracker:     download.NewTracker(a.records),
			Service:     download.NewService(a.records, cfg.Jobs.ScratchDir),
			Stream:      stream.NewHandler(pipeline),
			Health:      health.NewHandler(health.NewChecker(checks)),
			Metrics:     a.metrics,
			CORSOrigins: cfg.Server.CORSOrigins,
			Version:     version,
		}),
		// no write timeout: stream downloads are long-lived
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "starting server", map[string]interface{}{
			"addr":           server.Addr,
			"single_backend": single.Name(),
			"store":          a.store.Backend(),
			"batch_queue":    a.queue != nil,
			"object_storage": cfg.Storage.Driver,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		a.log.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn(shutdownCtx, "http server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	if err := drain(shutdownCtx); err != nil {
		a.log.Warn(shutdownCtx, "jobs still running at shutdown", map[string]interface{}{"error": err.Error()})
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			a.log.Warn(shutdownCtx, "janitor stop incomplete", map[string]interface{}{"error": err.Error()})
		}
	}

	a.log.Info(shutdownCtx, "server stopped")
	return nil
}
