package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yudee-19/video-downloader/internal/backend"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the durable download queue",
	Long: `Consume the durable Redis download queue.

Workers share nothing with the API process except Redis: tasks are popped
from the queue and every status change is written to the status store.
A task is removed from the queue when it is popped, so a worker that dies
mid-job leaves that job in its last recorded status.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int("concurrency", 0, "number of jobs run at once (overrides jobs.worker_concurrency)")
	workerCmd.Flags().String("metrics-addr", "", "serve /metrics on this address, e.g. :9100")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Jobs.WorkerConcurrency, _ = cmd.Flags().GetInt("concurrency")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if a.queue == nil {
		return errors.New("worker needs redis for the download queue")
	}

	var metricsServer *http.Server
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.metrics.Handler())
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error(ctx, "metrics server failed", err)
			}
		}()
	}

	worker := backend.NewWorker(a.queue, a.executor.Handler(), backend.WorkerConfig{
		Concurrency:    cfg.Jobs.WorkerConcurrency,
		JobTimeout:     cfg.Jobs.Timeout,
		DequeueTimeout: cfg.Jobs.DequeueTimeout,
	}, a.metrics)
	worker.Start(ctx)

	<-ctx.Done()
	a.log.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		a.log.Warn(shutdownCtx, "jobs still running at shutdown", map[string]interface{}{"error": err.Error()})
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
