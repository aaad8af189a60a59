package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/draftmind/draftmind/internal/agent"
	"github.com/draftmind/draftmind/internal/config"
	"github.com/draftmind/draftmind/internal/doctools"
	"github.com/draftmind/draftmind/internal/httpapi"
	"github.com/draftmind/draftmind/internal/intent"
	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/internal/persistence"
	"github.com/draftmind/draftmind/internal/service"
	"github.com/draftmind/draftmind/internal/tools"
	"github.com/draftmind/draftmind/internal/usage"
	"github.com/draftmind/draftmind/pkg/log"
)

func main() {
	// .env is optional; real deployments use the environment
	_ = godotenv.Load()

	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer store.Close()

	settings, err := config.NewRuntimeSettingsStore(store, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to init runtime settings: %v", err)
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		log.Fatal("Failed to create LLM client: %v", err)
	}

	registry := tools.NewRegistry()
	rewriter := doctools.NewLLMRewriter(client, cfg.LLM.Model)
	if err := doctools.RegisterAll(registry, store, rewriter); err != nil {
		log.Fatal("Failed to register tools: %v", err)
	}

	prices := usage.DefaultPrices()
	if cfg.LLM.PricesPath != "" {
		prices, err = usage.LoadPrices(cfg.LLM.PricesPath)
		if err != nil {
			log.Fatal("Failed to load price table: %v", err)
		}
	}
	engine := agent.NewEngine(
		client,
		registry,
		prices,
		cfg.Agent.MaxTurns,
		time.Duration(cfg.Agent.ToolTimeout)*time.Second,
		cfg.Agent.StreamBuffer,
	)
	classifier := intent.NewClassifier(client, cfg.LLM.RouterModel)

	assistant := service.NewAssistant(store, client, classifier, registry, engine, prices, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	sweeper := service.NewSweeper(store, settings, c)
	if err := sweeper.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule retention sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	server := httpapi.NewServer(assistant, store,
		httpapi.WithRuntimeSettingsStore(settings),
	)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		log.Error("HTTP server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown failed: %v", err)
	}
	_ = os.Stdout.Sync()
}
