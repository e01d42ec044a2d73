package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightxstack/insightx-nlq/internal/api"
	"github.com/insightxstack/insightx-nlq/internal/cache"
	"github.com/insightxstack/insightx-nlq/internal/config"
	"github.com/insightxstack/insightx-nlq/internal/dataset"
	"github.com/insightxstack/insightx-nlq/internal/engine"
	"github.com/insightxstack/insightx-nlq/internal/explain"
	"github.com/insightxstack/insightx-nlq/internal/extract"
	"github.com/insightxstack/insightx-nlq/internal/llm"
	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/services"
	"github.com/insightxstack/insightx-nlq/internal/session"
	"github.com/insightxstack/insightx-nlq/internal/usage"
	"github.com/insightxstack/insightx-nlq/internal/utils"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting insightx-nlq",
		slog.String("address", cfg.Server.Address),
		slog.String("dataset", cfg.Dataset.Path))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	provider := buildSessionProvider(cfg, logger)
	defer provider.Close()

	client := buildModelClient(cfg)

	store, err := dataset.Open(context.Background(), cfg.Dataset.Path, cfg.Dataset.QueryTimeout, logger)
	if err != nil {
		logger.Error("failed to open dataset", slog.String("path", cfg.Dataset.Path), slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	extractor, err := extract.New(client, cfg.LLM.Timeout, cfg.LLM.MaxTokens, logger)
	if err != nil {
		logger.Error("failed to build intent extractor", slog.Any("error", err))
		os.Exit(1)
	}

	followups, err := explain.NewFollowupEngine(cfg.Followups.RulesPath, cfg.Followups.Max, logger)
	if err != nil {
		logger.Error("failed to load followup rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	synthesizer := explain.NewSynthesizer(client, followups, explain.SynthesizerOptions{
		Temperature: cfg.LLM.NarrativeTemperature,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)

	resolver := engine.NewResolver(store, provider, engine.Options{
		TopK:         cfg.Pipeline.TopK,
		CacheResults: cfg.Cache.ResultsEnabled,
		CacheTTL:     cfg.Cache.ResultsTTL,
	}, logger)

	sessions := session.NewManager(provider, clockwork.NewRealClock(), session.Options{
		TTL:           cfg.Session.TTL,
		MaxTurns:      cfg.Pipeline.MaxContextTurns,
		MaxSessions:   cfg.Session.MaxSessions,
		RatePerMinute: cfg.Pipeline.RateLimitPerMinute,
	}, logger)
	logger.Info("session manager ready", slog.String("limits", sessions.Describe()))

	miner := usage.NewMiner(logger, usage.NewCacheStore(provider, cfg.Session.TTL))

	chatService := services.NewChatService(logger, services.Deps{
		Sessions:    sessions,
		Extractor:   extractor,
		Resolver:    resolver,
		Synthesizer: synthesizer,
		Followups:   followups,
		Miner:       miner,
	}, services.Options{ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold})

	handler := api.NewHandler(chatService, cfg.Server.RequestTimeout, logger)

	server, err := api.NewServer(cfg.Server, handler, logger)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opsServer *http.Server
	if cfg.Server.OpsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		opsServer = &http.Server{
			Addr:         cfg.Server.OpsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", slog.String("address", cfg.Server.OpsAddress))
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("chat server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("chat server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if opsServer != nil {
		opsCtx, cancelOps := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(opsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ops server shutdown", slog.Any("error", err))
		}
		cancelOps()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("insightx-nlq stopped")
}

// buildSessionProvider returns the configured session store. A redis
// backend that cannot be reached degrades to the in-process store so a
// cache outage never blocks startup.
func buildSessionProvider(cfg *config.Config, logger *slog.Logger) cache.Provider {
	if cfg.Session.Backend == config.SessionBackendRedis {
		dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		provider, err := cache.NewRedisProvider(dialCtx, cache.RedisOptions{
			Addr:     cfg.Session.RedisAddr,
			Username: cfg.Session.RedisUsername,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err != nil {
			logger.Warn("redis session store unavailable, falling back to memory", slog.Any("error", err))
		} else {
			logger.Info("session store connected", slog.String("backend", "redis"), slog.String("addr", cfg.Session.RedisAddr))
			return provider
		}
	}
	return cache.NewMemoryProvider(cfg.Session.MaxSessions, cfg.Session.TTL)
}

// buildModelClient selects the language model client. Validate has
// already rejected unknown providers.
func buildModelClient(cfg *config.Config) llm.Client {
	if cfg.LLM.Provider == config.ProviderAnthropic {
		return llm.NewAnthropicClient(cfg.LLM.Model, cfg.LLM.APIKey)
	}
	return llm.NewGeminiClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout)
}
