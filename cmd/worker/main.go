package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/mailcampaign-sender/internal/app"
	"github.com/unclebandit/mailcampaign-sender/internal/config"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.L().Fatalw("config_invalid", "error", err)
	}
	logx.Init(cfg.LogLevel)
	defer logx.Sync()

	if cfg.AMQPURL == "" {
		logx.L().Fatalw("config_invalid", "error", "AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logx.L().Fatalw("startup_failed", "error", err)
	}
	defer a.Close()

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		logx.L().Fatalw("amqp_connect_failed", "error", err)
	}
	defer q.Close()

	if err := a.Worker.Start(q, cfg.Queue); err != nil {
		logx.L().Fatalw("worker_start_failed", "error", err)
	}
	logx.L().Infow("worker_running", "queue", cfg.Queue)

	select {
	case <-ctx.Done():
		logx.L().Infow("worker_shutting_down")
	case amqpErr := <-q.NotifyClose():
		logx.L().Errorw("amqp_connection_closed", "error", amqpErr)
	}

	// Deferred closes of the queue, DB and Redis run only after the
	// current send has finished.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Sender.RunLockTTL)
	defer cancel()
	if err := q.Shutdown(drainCtx); err != nil {
		logx.L().Warnw("worker_drain_incomplete", "error", err)
	}
	logx.L().Infow("worker_stopped")
}
