package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/CityPulse/PulseGuard/pkg/config"
	handlers "github.com/CityPulse/PulseGuard/pkg/handlers/http"
	infraLogger "github.com/CityPulse/PulseGuard/pkg/infra/logger"
	"github.com/CityPulse/PulseGuard/pkg/infra/providers/factory"
	"github.com/CityPulse/PulseGuard/pkg/moderation"
	"github.com/CityPulse/PulseGuard/pkg/moderation/blocklist"
	"github.com/CityPulse/PulseGuard/pkg/moderation/lexical"
	"github.com/CityPulse/PulseGuard/pkg/moderation/resultcache"
	"github.com/CityPulse/PulseGuard/pkg/moderation/semantic"
	"github.com/CityPulse/PulseGuard/pkg/moderation/toxicity"
	"github.com/CityPulse/PulseGuard/pkg/server"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	if err := config.Load("./config"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	logger := infraLogger.NewLogger(cfg.Server.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid moderation configuration")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	providerClient, err := factory.NewProviderLocator().Get(cfg.Moderation.Semantic.Provider)
	if err != nil {
		logger.WithError(err).Fatal("failed to resolve semantic moderation provider")
	}

	lexicalStage := lexical.NewFilter(logger)
	blocklistStage := blocklist.NewChecker(rdb, logger)
	toxicityStage := toxicity.NewScorer(toxicity.Config{
		APIKey:          cfg.Moderation.Toxicity.APIKey,
		Endpoint:        cfg.Moderation.Toxicity.Endpoint,
		Timeout:         cfg.Moderation.Toxicity.Timeout(),
		Threshold:       cfg.Moderation.Toxicity.Threshold,
		SevereThreshold: cfg.Moderation.Toxicity.SevereThreshold,
	}, &http.Client{}, logger)
	semanticStage := semantic.NewClassifier(semantic.Config{
		Model:     cfg.Moderation.Semantic.Model,
		APIKey:    cfg.Moderation.Semantic.APIKey,
		MaxTokens: cfg.Moderation.Semantic.MaxTokens,
	}, providerClient, logger)

	cache := resultcache.New(cfg.Moderation.CacheTTL(), cfg.Moderation.CacheCapacity)

	pipeline := moderation.NewPipeline(
		moderation.PipelineConfig{
			Timeout: cfg.Moderation.Timeout(),
			Backoff: cfg.Moderation.Backoff(),
			Policy: moderation.FailurePolicy{
				Environment: cfg.Moderation.Environment,
				FailOpen:    cfg.Moderation.FailOpen,
			},
		},
		lexicalStage,
		blocklistStage,
		toxicityStage,
		semanticStage,
		cache,
		logger,
	)

	moderateHandler := handlers.NewModerateContentHandler(logger, pipeline)
	srv := server.New(cfg, logger, moderateHandler)

	go func() {
		if err := srv.Run(); err != nil {
			logger.WithError(err).Fatal("moderation server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down moderation server")
	if err := srv.Shutdown(); err != nil {
		logger.WithError(err).Error("failed to shut down server cleanly")
	}
}
