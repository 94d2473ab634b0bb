package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/esi-pager/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// config is read from the environment.
type config struct {
	redisURL  string
	port      string
	userAgent string
	baseURL   string
	endpoint  string
	query     url.Values
	pageSize  int
	cacheTTL  time.Duration
	warmPages int
}

func loadConfig() (config, error) {
	cfg := config{
		redisURL:  getEnv("REDIS_URL", "localhost:6379"),
		port:      getEnv("PORT", "8080"),
		userAgent: getEnv("USER_AGENT", "esi-pager/0.1.0"),
		baseURL:   getEnv("ESI_BASE_URL", "https://esi.evetech.net"),
		endpoint:  getEnv("ENDPOINT", "/v1/universe/types/"),
	}

	query, err := url.ParseQuery(getEnv("QUERY", ""))
	if err != nil {
		return config{}, errors.New("invalid QUERY: " + err.Error())
	}
	cfg.query = query

	if cfg.pageSize, err = strconv.Atoi(getEnv("PAGE_SIZE", "1000")); err != nil || cfg.pageSize <= 0 {
		return config{}, errors.New("PAGE_SIZE must be a positive integer")
	}
	if cfg.cacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", "5m")); err != nil {
		return config{}, errors.New("invalid CACHE_TTL: " + err.Error())
	}
	if cfg.warmPages, err = strconv.Atoi(getEnv("WARM_PAGES", "0")); err != nil || cfg.warmPages < 0 {
		return config{}, errors.New("WARM_PAGES must be a non-negative integer")
	}

	return cfg, nil
}

func main() {
	logging.Setup(logging.ConfigFromEnv())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.redisURL,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("redis", cfg.redisURL).Msg("Failed to connect to Redis")
	}
	log.Info().Str("redis", cfg.redisURL).Msg("Connected to Redis")

	svc, err := newService(ctx, cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pager service")
	}
	defer svc.Close()

	if cfg.warmPages > 0 {
		go svc.warm(ctx, cfg.warmPages)
	}

	server := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           svc.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", server.Addr).
		Str("endpoint", cfg.endpoint).
		Int("page_size", cfg.pageSize).
		Str("user_agent", cfg.userAgent).
		Msg("Starting esi-pager server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
