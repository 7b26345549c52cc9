package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/detailbook/libs/config"
	"github.com/md-rashed-zaman/detailbook/libs/httpx"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

func newRedisClient() *redis.Client {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
}

// asynq keeps its queues in their own database so FLUSHDB on the cache
// never drops pending syncs.
func asynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.String("REDIS_ADDR", ""),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("CALSYNC_REDIS_DB", 1),
	}
}

func rateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limit)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// newCalendarAdapter routes on the subject's provider. Providers without
// credentials configured report unavailable, which degrades availability.
func newCalendarAdapter(logger *slog.Logger) calendar.Adapter {
	adapters := map[model.CalendarProvider]calendar.Adapter{}
	if id := config.String("GOOGLE_CLIENT_ID", ""); id != "" {
		adapters[model.CalendarGoogle] = calendar.NewGoogle(calendar.GoogleConfig{
			ClientID:          id,
			ClientSecret:      config.String("GOOGLE_CLIENT_SECRET", ""),
			RequestsPerSecond: float64(config.Int("GOOGLE_REQUESTS_PER_SECOND", 5)),
			Burst:             config.Int("GOOGLE_BURST", 10),
		})
		logger.Info("google calendar adapter enabled")
	}
	if endpoint := config.String("CALDAV_ENDPOINT", ""); endpoint != "" {
		cd, err := calendar.NewCalDAV(calendar.CalDAVConfig{
			Endpoint: endpoint,
			Username: config.String("CALDAV_USERNAME", ""),
			Password: config.String("CALDAV_PASSWORD", ""),
		})
		if err != nil {
			logger.Error("caldav adapter init failed", "err", err)
		} else {
			adapters[model.CalendarCalDAV] = cd
			logger.Info("caldav adapter enabled", "endpoint", endpoint)
		}
	}
	return calendar.NewBounded(calendar.NewRouter(adapters), config.Duration("CALENDAR_TIMEOUT", 3*time.Second))
}
