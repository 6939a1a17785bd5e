package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents/llm"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents/websearch"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/httpapi"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.New(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open task store", zap.Error(err))
	}
	defer st.Close()

	hub := streaming.NewHub(cfg.Streaming.RingCapacity)

	llmClient := llm.NewClient(cfg.LLM, logger)

	var searcher agents.Searcher
	if cfg.Search.APIKey != "" {
		searcher = websearch.NewClient(cfg.Search, logger)
	} else {
		logger.Warn("No search API key configured, researcher will rely on model knowledge only")
	}

	sequence := []agents.Agent{
		agents.NewResearcher(llmClient, searcher, logger),
		agents.NewWriter(llmClient),
		agents.NewAnalyst(llmClient),
	}

	orch := orchestrator.New(st, hub, sequence, cfg.Agents, logger)
	defer orch.Close()

	server := httpapi.NewServer(cfg, st, orch, hub, logger)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
