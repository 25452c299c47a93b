// Package app assembles the campaign sender from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/mailcampaign-sender/internal/config"
	"github.com/unclebandit/mailcampaign-sender/internal/db"
	"github.com/unclebandit/mailcampaign-sender/internal/lock"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/mailer"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
	"github.com/unclebandit/mailcampaign-sender/internal/service"
)

// App holds the long-lived dependencies shared by the server and worker.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client
	Runner  *service.CampaignRunner
	Worker  *service.Worker
	Service *service.CampaignService
}

// Build connects to the database (and Redis, if configured) and wires the
// send pipeline. The returned App's Service has no queue; callers attach one.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	conn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: conn}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logx.L().Warnw("redis_unavailable_using_pg_locks", "error", err)
			a.Redis.Close()
			a.Redis = nil
		}
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	memberRepo := &repository.MemberRepository{DB: conn}
	eventRepo := &repository.EventRepository{DB: conn}
	logRepo := &repository.CampaignLogRepository{DB: conn}
	credentialRepo := &repository.CredentialRepository{DB: conn}

	ms := cfg.Microsoft
	tokens := &service.TokenManager{
		Credentials: credentialRepo,
		OAuth:       service.NewMicrosoftOAuthConfig(ms.ClientID, ms.ClientSecret, ms.TokenURL, ms.Scopes),
		Buffer:      cfg.Sender.TokenExpiryBuffer,
		HTTPClient:  &http.Client{Timeout: ms.HTTPTimeout},
	}

	sender := service.NewCampaignSender(
		campaignRepo, recipientRepo, memberRepo, eventRepo,
		tokens,
		mailer.NewGraphClient(ms.GraphBaseURL, ms.HTTPTimeout),
	)
	sender.BatchSize = cfg.Sender.BatchSize
	sender.BatchPause = cfg.Sender.BatchPause
	sender.MarkPartialFailure = cfg.Sender.PartialFailureMark

	a.Runner = &service.CampaignRunner{
		Sender:    sender,
		Heartbeat: &service.Heartbeat{Logs: logRepo, Interval: cfg.Sender.HeartbeatInterval},
		Locks:     &lock.Factory{Redis: a.Redis, DB: conn, TTL: cfg.Sender.RunLockTTL},
	}
	a.Worker = service.NewWorker(a.Runner)
	a.Service = &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		EventRepo:     eventRepo,
		Topic:         cfg.Queue,
	}
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}
