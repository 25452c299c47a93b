// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/mailcampaign-sender/internal/app"
	"github.com/unclebandit/mailcampaign-sender/internal/config"
	"github.com/unclebandit/mailcampaign-sender/internal/controller"
	"github.com/unclebandit/mailcampaign-sender/internal/handler"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logx.L().Fatalw("startup_failed", "error", err)
	}
	defer a.Close()

	var inproc *queue.InMemoryQueue
	switch cfg.DispatchMode {
	case config.DispatchAMQP:
		q, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			logx.L().Fatalw("amqp_connect_failed", "error", err)
		}
		defer q.Close()
		a.Service.Queue = q
	default:
		inproc = queue.NewInMemoryQueue()
		if err := a.Worker.Start(inproc, cfg.Queue); err != nil {
			logx.L().Fatalw("worker_start_failed", "error", err)
		}
		a.Service.Queue = inproc
	}

	router := controller.NewRouter(
		&controller.CampaignController{CampaignService: a.Service},
		handler.NewCampaignHandler(a.Service),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.L().Infow("server_listening", "addr", srv.Addr, "dispatch_mode", cfg.DispatchMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.L().Fatalw("server_failed", "error", err)
		}
	}()

	<-ctx.Done()
	logx.L().Infow("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.L().Warnw("server_shutdown_error", "error", err)
	}
	if inproc != nil {
		// in-flight runs finish and record their own outcome
		inproc.Wait()
	}
}
