package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tacivo/tacivo/internal/ai"
	"github.com/tacivo/tacivo/internal/api"
	"github.com/tacivo/tacivo/internal/blocknote"
	"github.com/tacivo/tacivo/internal/cache"
	"github.com/tacivo/tacivo/internal/config"
	"github.com/tacivo/tacivo/internal/email"
	"github.com/tacivo/tacivo/internal/invitation"
	"github.com/tacivo/tacivo/internal/pipeline"
	"github.com/tacivo/tacivo/internal/speech"
	"github.com/tacivo/tacivo/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage.
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Error("apply migrations", "error", err)
		os.Exit(1)
	}
	st := store.NewPostgresStore(db)

	var textCache cache.TextCache = cache.Noop{}
	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		redisCache, err = cache.NewRedisCache(cfg.RedisURL, cfg.TextCacheTTL, log)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		textCache = redisCache
	}
	flattener := blocknote.NewFlattener(blocknote.Limits{
		MaxDepth:  cfg.FlattenMaxDepth,
		MaxBlocks: cfg.FlattenMaxBlocks,
	}, log)
	text := cache.NewFlattener(textCache, flattener)

	// External services.
	claude := ai.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	mailer := email.NewService(email.Config{
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
	})
	if !mailer.IsConfigured() {
		log.Warn("RESEND_API_KEY not set, invitation emails are disabled")
	}
	voice := speech.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, speech.WithModel(cfg.ElevenLabsModel))
	invitations := invitation.NewService(st, mailer, cfg.InvitationTTL, cfg.AppBaseURL, log)

	// Playbook pipeline.
	worker := pipeline.NewWorker(st, claude, text, flattener, log, cfg.PlaybookContextTokens)
	orch := pipeline.NewOrchestrator(cfg, worker, log)
	orch.Start(ctx)

	srv := api.NewServer(api.Deps{
		Store:       st,
		Invitations: invitations,
		Playbooks:   orch,
		Claude:      claude,
		Stats:       claude.Stats,
		Text:        text,
		Flattener:   flattener,
		Speech:      voice,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
		if redisCache != nil {
			redisCache.Close()
		}
		db.Close()
	}()

	log.Info("starting tacivo", "port", cfg.Port, "model", claude.Model(), "text_cache", redisCache != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
