/**
 * @description
 * Entry point for the prize-service. It wires storage, the image library, the event
 * bus, the claim rate limiter, the Telegram bot, the round scheduler and the HTTP API,
 * then runs until SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/prizedrop/prize-service/internal/api"
	"github.com/prizedrop/prize-service/internal/app"
	"github.com/prizedrop/prize-service/internal/bot"
	"github.com/prizedrop/prize-service/internal/config"
	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
	"github.com/prizedrop/prize-service/pkg/artwork"
	prizerabbit "github.com/prizedrop/prize-service/pkg/rabbitmq"
)

func main() {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	repository, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Error("unable to open prize store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer repository.Close()
	logger.Info("prize store ready", "driver", cfg.StoreDriver)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := app.NewMetrics(registry)

	library := artwork.NewLibrary(cfg.AssetsDir, cfg.HiddenAssetsDir, cfg.PixelateBlocks)
	if err := library.EnsureDirs(); err != nil {
		logger.Error("unable to prepare asset directories", "error", err)
		os.Exit(1)
	}

	var publisher prizerabbit.Publisher = &prizerabbit.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := prizerabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	participants := app.NewParticipantService(repository, logger)
	leaderboard := app.NewLeaderboardService(repository)
	prizes := app.NewPrizeService(repository, library, logger)
	claims := app.NewClaimService(repository, publisher, cfg.EventsExchange, metrics, logger)

	if cfg.SeedAssetsOnStart {
		seeded, err := prizes.SeedFromLibrary(ctx)
		if err != nil {
			logger.Error("failed to seed prizes from asset directory", "error", err)
			os.Exit(1)
		}
		logger.Info("prize catalogue seeded", "new_prizes", seeded, "assets_dir", cfg.AssetsDir)
	}

	if cfg.RedisURL != "" && cfg.ClaimRateLimitPerMinute > 0 {
		if redisClient, err := connectRedis(ctx, cfg.RedisURL); err == nil {
			defer redisClient.Close()
			claims.SetRateLimiter(app.NewRedisClaimRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.ClaimRateLimitPerMinute))
			logger.Info("claim rate limiting enabled", "limit_per_minute", cfg.ClaimRateLimitPerMinute)
		} else {
			logger.Warn("redis unavailable, claim rate limiting disabled", "error", err)
		}
	}

	jobs := app.NewJobs(repository, library, nil, publisher, metrics, logger, cfg)

	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Error("failed to connect to Telegram", "error", err)
			os.Exit(1)
		}
		logger.Info("telegram bot authorized", "username", botAPI.Self.UserName)

		telegram := bot.New(botAPI, bot.Dependencies{
			Claims:          claims,
			Participants:    participants,
			Leaderboard:     leaderboard,
			Prizes:          prizes,
			Rounds:          jobs,
			IsAdmin:         cfg.IsAdmin,
			LeaderboardSize: cfg.LeaderboardSize,
		}, logger)
		jobs.SetBroadcaster(telegram)

		updateConfig := tgbotapi.NewUpdate(0)
		updateConfig.Timeout = 60
		updates := botAPI.GetUpdatesChan(updateConfig)
		go telegram.Run(ctx, updates)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, hidden prizes will not be pushed to participants")
	}

	if cfg.RabbitMQURL != "" {
		consumer, err := prizerabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("failed to start claim request consumer", "error", err)
		} else {
			defer consumer.Close()
			claimRequests := app.NewClaimRequestConsumer(claims, logger)
			err = consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.ClaimRequestQueue, map[string]func([]byte) bool{
				domain.RoutingKeyClaimRequested: claimRequests.HandleMessage,
			})
			if err != nil {
				logger.Warn("failed to bind claim request queue", "queue", cfg.ClaimRequestQueue, "error", err)
			} else {
				logger.Info("consuming claim requests", "queue", cfg.ClaimRequestQueue)
			}
		}
	}

	scheduler := app.NewScheduler(jobs, logger, cfg)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start round scheduler", "schedule", cfg.RoundSchedule, "error", err)
		os.Exit(1)
	}
	logger.Info("round scheduler started", "schedule", cfg.RoundSchedule)

	handler := api.NewHandler(api.Services{
		Claims:          claims,
		Leaderboard:     leaderboard,
		Participants:    participants,
		Prizes:          prizes,
		Rounds:          jobs,
		LeaderboardSize: cfg.LeaderboardSize,
	}, logger)
	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY not set, /internal admin routes will refuse every request")
	}
	router := api.NewRouter(handler, cfg.InternalAPIKey, registry)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	if botAPI != nil {
		botAPI.StopReceivingUpdates()
	}
	stopCtx := scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	select {
	case <-stopCtx.Done():
	case <-shutdownCtx.Done():
		logger.Warn("round still running at shutdown")
	}
	cancel()

	logger.Info("server stopped")
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		repo, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreDriverMemory:
		return store.NewMemoryRepository(), nil
	default:
		repo, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
