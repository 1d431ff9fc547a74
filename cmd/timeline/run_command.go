package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifestory/internal/config"
	"lifestory/internal/database"
	"lifestory/internal/events"
	"lifestory/internal/metrics"
	"lifestory/internal/models"
	"lifestory/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync the timeline until interrupted",
		Long: "Uploads pending items, processes the retry queue and polls voice memo\n" +
			"transcriptions until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := ctx.openSession(sigCtx)
			if err != nil {
				return err
			}
			defer sess.Close()

			logger := sess.logger.With().Str("component", "runner").Logger()
			watchStore(sess, &logger)

			if err := sess.store.Start(sigCtx); err != nil {
				return err
			}

			background := worker.NewScheduler(sigCtx, &logger)
			defer background.Stop()
			startMetrics(background, sess.cfg, &logger)
			startBackups(background, sess.cfg, &logger)

			logger.Info().Str("backend", sess.cfg.Storage.Backend).Str("api", sess.cfg.API.BaseURL).Msg("timeline sync running")
			<-sigCtx.Done()
			logger.Info().Msg("shutdown signal received")
			return nil
		},
	}
}

func watchStore(sess *session, logger *zerolog.Logger) {
	sess.store.Subscribe(func(state models.TimelineState) error {
		stats := sess.store.GetStats()
		logger.Debug().
			Int("items", stats.Total).
			Int("pending", stats.ByStatus[models.StatusPending]+stats.ByStatus[models.StatusUploading]).
			Int("errors", stats.ByStatus[models.StatusError]).
			Int("retry_queue", len(state.RetryQueue)).
			Msg("timeline changed")
		return nil
	})
	sess.store.OnItemEvent(events.EventItemFinalized, func(item models.TimelineItem) {
		logger.Info().Str("item_id", item.ID).Str("status", string(item.Status)).Msg("item synced")
	})
	sess.store.OnItemEvent(events.EventItemFailed, func(item models.TimelineItem) {
		logger.Warn().Str("item_id", item.ID).Str("error", item.Error).Bool("will_retry", item.WillRetry).Msg("item failed")
	})
}

func startMetrics(sched *worker.Scheduler, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	sched.Go("metrics-server", func(ctx context.Context) {
		startMetricsServer(ctx, port, logger)
	})
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startBackups(sched *worker.Scheduler, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	if cfg.Storage.Backend != config.StorageSQLite {
		logger.Warn().Str("backend", cfg.Storage.Backend).Msg("backups only apply to the sqlite backend")
		return
	}
	svc := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	sched.Every("backup", svc.Interval(), svc.RunOnce)
	logger.Info().Dur("interval", svc.Interval()).Str("path", cfg.Backup.StoragePath).Msg("backup service started")
}
