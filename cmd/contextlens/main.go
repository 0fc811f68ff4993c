package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaekop/ContextLens/internal/analytics"
	"github.com/jaekop/ContextLens/internal/emitter"
	"github.com/jaekop/ContextLens/internal/health"
	"github.com/jaekop/ContextLens/internal/processor"
	"github.com/jaekop/ContextLens/internal/session"
	"github.com/jaekop/ContextLens/internal/store"
	"github.com/jaekop/ContextLens/internal/summarize"
	"github.com/jaekop/ContextLens/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	ollama := summarize.NewOllamaClient(cfg.ollamaURL, cfg.ollamaModel, cfg.maxTokens, cfg.llmPoolSize)
	backends := map[string]summarize.Completer{"ollama": ollama}
	if cfg.anthropicAPIKey != "" {
		backends["anthropic"] = summarize.NewAnthropicClient(
			cfg.anthropicAPIKey, cfg.anthropicURL, cfg.anthropicModel, cfg.maxTokens, cfg.llmPoolSize)
		slog.Info("anthropic backend enabled", "model", cfg.anthropicModel)
	}

	var vision summarize.VisionCompleter
	if cfg.geminiAPIKey != "" {
		gem, err := summarize.NewGeminiClient(context.Background(), cfg.geminiAPIKey, cfg.geminiModel, cfg.maxTokens)
		if err != nil {
			slog.Warn("gemini init failed", "error", err)
		} else {
			backends["gemini"] = gem
			vision = gem
			slog.Info("gemini backend enabled", "model", cfg.geminiModel)
		}
	}

	gateway := summarize.NewGateway(summarize.Config{
		Backends: backends,
		Engine:   cfg.engine,
		Fallback: cfg.fallbackEngine,
		Vision:   vision,
	})

	registry := session.NewRegistry()
	hub := emitter.NewHub()

	var st *store.Store
	if cfg.storeDSN != "" {
		var err error
		st, err = store.Open(cfg.storeDSN)
		if err != nil {
			slog.Error("store open failed", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		slog.Info("persistence enabled")
	}

	var saver processor.Saver
	if st != nil {
		saver = st
	}
	var sink analytics.Sink
	if cfg.sinkURL != "" {
		sink = analytics.NewHTTPSink(cfg.sinkURL)
		slog.Info("metrics egress enabled", "url", cfg.sinkURL)
	}

	proc := processor.New(processor.Config{
		Registry:       registry,
		Gateway:        gateway,
		Emit:           hub.Publish,
		Store:          saver,
		Sink:           sink,
		MinInterval:    cfg.minInterval,
		MinCharsDelta:  cfg.minCharsDelta,
		VisionInterval: cfg.visionInterval,
		VisionBackoff:  cfg.visionBackoff,
		WindowChars:    cfg.windowChars,
		SummaryTimeout: cfg.summaryTimeout,
	})

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Processor:     proc,
		Registry:      registry,
		Hub:           hub,
		STTURL:        cfg.sttURL,
		MaxConcurrent: cfg.maxConcurrent,
	})

	checker := health.NewChecker([]health.Target{
		{Name: "ollama", URL: cfg.ollamaURL + "/api/tags"},
		{Name: "stt", URL: cfg.sttHealthURL},
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		gateway:   gateway,
		ollama:    ollama,
		checker:   checker,
		wsHandler: wsHandler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Finalize live sessions first so their debriefs reach any
		// still-connected subscribers before the listener closes.
		proc.Shutdown(ctx)
		srv.Shutdown(ctx)
	}()

	slog.Info("orchestrator starting",
		"addr", addr, "engine", cfg.engine, "max_concurrent", cfg.maxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("orchestrator stopped")
}
