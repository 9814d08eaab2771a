package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/contractclarity/engine/internal/api"
	"github.com/contractclarity/engine/internal/config"
	"github.com/contractclarity/engine/internal/llm"
	"github.com/contractclarity/engine/internal/pipeline"
	"github.com/contractclarity/engine/internal/prompt"
	"github.com/contractclarity/engine/internal/retrieval"
	"github.com/contractclarity/engine/internal/schema"
	"github.com/contractclarity/engine/internal/server"
	"github.com/contractclarity/engine/internal/task"
	"github.com/contractclarity/engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("contract-clarity", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	// Vector index is optional: without it every task runs ungrounded.
	var searcher retrieval.Searcher
	if cfg.Retrieval.IndexPath != "" {
		index, err := retrieval.OpenIndex(cfg.Retrieval.IndexPath)
		if err != nil {
			log.Fatalf("Failed to open vector index: %v", err)
		}
		defer index.Close()
		searcher = index
	} else {
		logger.Warn("no vector index configured, analysis runs without legal grounding")
		searcher = retrieval.NoIndex{}
	}

	embedder := retrieval.NewHTTPEmbedder(
		cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Timeout)
	engine := retrieval.NewEngine(embedder, searcher, config.MaxTopK, cfg.Retrieval.MinSimilarity, logger)

	client := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
	completer := llm.NewRetrier(client, cfg.LLM.MaxRetries, cfg.LLM.RetryBackoff, logger)

	budgeter, err := prompt.NewBudgeter()
	if err != nil {
		log.Fatalf("Failed to initialize tokenizer: %v", err)
	}
	builder := prompt.NewBuilder(budgeter, cfg.Pipeline.PromptTokenBudget)

	validator, err := schema.NewValidator(cfg.Risk.Banding())
	if err != nil {
		log.Fatalf("Failed to compile stage schemas: %v", err)
	}

	store := task.NewMemoryStore()

	orchestrator := pipeline.New(pipeline.Options{
		Store:            store,
		Retriever:        engine,
		Completer:        completer,
		Builder:          builder,
		Validator:        validator,
		MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
		RepairBudget:     cfg.Pipeline.RepairBudget,
		MaxContractChars: cfg.Pipeline.MaxContractChars,
		TopK:             cfg.Retrieval.TopK,
		Logger:           logger,
	})

	srv := server.New(cfg.Server.Port, logger)
	api.NewHandler(orchestrator, store, logger).Mount(srv.Router)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go store.RunSweeper(sweepCtx, cfg.Tasks.SweepInterval, cfg.Tasks.Retention)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Let accepted analyses run to completion before exiting.
	orchestrator.Wait()
	logger.Info("shutdown complete")
}
