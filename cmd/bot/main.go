package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/orderdesk-bot/orderdesk/internal/api"
	"github.com/orderdesk-bot/orderdesk/internal/config"
	"github.com/orderdesk-bot/orderdesk/internal/convo"
	"github.com/orderdesk-bot/orderdesk/internal/database"
	"github.com/orderdesk-bot/orderdesk/internal/dialogue"
	"github.com/orderdesk-bot/orderdesk/internal/dispatch"
	"github.com/orderdesk-bot/orderdesk/internal/events"
	"github.com/orderdesk-bot/orderdesk/internal/messenger"
	"github.com/orderdesk-bot/orderdesk/internal/middleware"
	"github.com/orderdesk-bot/orderdesk/internal/nlp"
	"github.com/orderdesk-bot/orderdesk/internal/orders"
	iredis "github.com/orderdesk-bot/orderdesk/internal/redis"
	"github.com/orderdesk-bot/orderdesk/internal/server"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
	"github.com/orderdesk-bot/orderdesk/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS
	natsClient, err := events.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to nats", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	publisher := events.NewPublisher(natsClient.JetStream())
	consumerMgr := events.NewConsumerManager(natsClient.JetStream())

	// LLM provider: classifier, matcher, transcriber, describer, translator.
	llm := nlp.NewProvider(cfg.LLM)

	// Dialogue engine
	store := convo.NewStore(redisClient)
	engine := dialogue.NewEngine(tasks.NewRepository(pool), orders.NewRepository(pool), store, llm, dialogue.Options{
		PageSize:            cfg.Dialogue.PageSize,
		TaskConfirmTTL:      cfg.Dialogue.ConfirmTaskTTL,
		DuplicateConfirmTTL: cfg.Dialogue.ConfirmDupOrderTTL,
		CursorTTL:           cfg.Dialogue.CursorTTL,
	})

	// WhatsApp Cloud API
	sender := messenger.NewSender(cfg.WhatsApp, nil)

	// Rate limiting, shared between the webhook endpoints and the dispatcher.
	limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.MaxReqs, cfg.RateLimit.WindowSec)

	// Message pipeline
	dispatcher := dispatch.NewDispatcher(engine, publisher, consumerMgr, sender, llm, llm, llm, limiter, nil)
	go func() {
		if err := dispatcher.Start(ctx); err != nil {
			slog.Error("dispatcher stopped", "error", err)
			cancel()
		}
	}()

	outbound := messenger.NewConsumer(sender, consumerMgr, nil)
	go func() {
		if err := outbound.Start(ctx); err != nil {
			slog.Error("outbound sender stopped", "error", err)
			cancel()
		}
	}()

	// HTTP surface
	wh := webhook.NewHandler(cfg.WhatsApp, publisher, nil)
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		WebhookRateLimiter: limiter.Middleware,
	}, api.WebhookHandlers{
		Verify:  wh.Verify,
		Receive: wh.Receive,
	})

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
