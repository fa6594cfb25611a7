package main

import (
	// Standard library
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"

	// Internal packages
	"github.com/clinscribe/clinscribe/cmd/server/internal/api"
	"github.com/clinscribe/clinscribe/cmd/server/internal/config"
	"github.com/clinscribe/clinscribe/cmd/server/internal/knowledge"
	"github.com/clinscribe/clinscribe/cmd/server/internal/middleware"
	"github.com/clinscribe/clinscribe/cmd/server/internal/ner"
	"github.com/clinscribe/clinscribe/cmd/server/internal/pipeline"
	"github.com/clinscribe/clinscribe/cmd/server/internal/report"
	"github.com/clinscribe/clinscribe/cmd/server/internal/summarize"
	"github.com/clinscribe/clinscribe/cmd/server/internal/transcribe"
	"github.com/clinscribe/clinscribe/pkg/logger"
)

func main() {
	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  !strings.EqualFold(os.Getenv("ENV"), "prod"),
		File:        os.Getenv("LOG_FILE"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Transcription adapter. With whisper disabled the pipeline still serves
	// text input; audio requests get the degraded empty result.
	var transcriber transcribe.Transcriber
	if cfg.Whisper.Disabled || cfg.Whisper.APIURL == "" {
		transcriber = transcribe.NewMock()
		appLogger.Warn("whisper disabled, audio transcription degraded")
	} else {
		transcriber = transcribe.NewWhisperHTTP(cfg.Whisper.APIURL, cfg.Whisper.Model, cfg.Whisper.MaxDuration)
		appLogger.Info("whisper transcriber ready", "url", cfg.Whisper.APIURL, "model", cfg.Whisper.Model)
	}

	// Entity extraction with the ranked fallback chain
	extractor := ner.NewEngine(cfg.NLP.ServiceURL, cfg.NLP.NERModel, cfg.NLP.NERFallbacks)

	// Summarization
	summarizer := summarize.NewClient(cfg.NLP.ServiceURL, cfg.NLP.SummarizeModel)

	// Report generation. A nil client means no API key: the engine then
	// answers every request with the not-configured sentinel.
	var gen report.Generator
	if client := report.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model); client != nil {
		gen = client
		appLogger.Info("report generator ready", "model", cfg.Gemini.Model)
	} else {
		appLogger.Warn("report generation not configured, check GEMINI_API_KEY")
	}
	reporter := report.NewEngine(gen, cfg.Gemini.Retries, cfg.Gemini.RetryDelay)

	// Knowledge base
	embedder := knowledge.NewEmbedClient(cfg.NLP.ServiceURL, cfg.NLP.EmbedModel)
	kb := knowledge.NewBase(embedder, cfg.Knowledge.IndexPath, cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)

	// Reports directory must exist before the first render
	if err := os.MkdirAll(cfg.Reports.Dir, 0o755); err != nil {
		appLogger.Error("failed to create reports directory", "dir", cfg.Reports.Dir, "error", err)
		os.Exit(1)
	}

	orc := pipeline.New(transcriber, extractor, summarizer, reporter, kb, cfg.NLP.NERThreshold, cfg.Reports.Dir)
	appLogger.Info("pipeline ready",
		"transcriber", transcriber.Name(),
		"ner_model", cfg.NLP.NERModel,
		"ner_fallbacks", len(cfg.NLP.NERFallbacks),
		"reports_dir", cfg.Reports.Dir,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	api.RegisterRoutes(r, orc)

	// Create HTTP server with graceful shutdown
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("server starting", "addr", serverAddr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}
