package main

import (
	"context"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/detailbook/libs/config"
	"github.com/md-rashed-zaman/detailbook/libs/db"
	"github.com/md-rashed-zaman/detailbook/libs/grpcx"
	"github.com/md-rashed-zaman/detailbook/libs/httpx"
	"github.com/md-rashed-zaman/detailbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/detailbook/libs/otel"
	"github.com/md-rashed-zaman/detailbook/libs/retry"
	"github.com/md-rashed-zaman/detailbook/libs/runtime"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calsync"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/idempotency"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/suggest"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Load(config.String("CONFIG_FILE", "")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 1)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		MaxConnIdleTime: config.Duration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	repo := storage.NewBookingRepository(pool)
	normalizer := timeparse.New(timeparse.WithPolicy(timeparse.ParsePolicy(config.String("TIME_POLICY", "assume_am"))))
	adapter := newCalendarAdapter(logger)
	gatherer := busy.NewGatherer(repo, adapter, logger)
	detector := conflict.NewDetector(gatherer, suggest.Lookahead)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	var opts []booking.Option
	rdb := newRedisClient()
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		opts = append(opts, booking.WithCache(idempotency.NewRedisCache(rdb, config.String("IDEMPOTENCY_CACHE_PREFIX", idempotency.DefaultPrefix))))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		redisOpt := asynqRedisOpt()
		queue := config.String("CALSYNC_QUEUE", "calendar")
		client := asynq.NewClient(redisOpt)
		defer func() { _ = client.Close() }()
		opts = append(opts, booking.WithSyncDispatcher(calsync.NewDispatcher(client, queue, config.Int("CALSYNC_MAX_RETRY", 8))))

		if config.Bool("CALSYNC_WORKER_ENABLED", true) {
			worker := calsync.NewServer(redisOpt, queue, config.Int("CALSYNC_CONCURRENCY", 5), logger)
			if err := worker.Start(calsync.NewServeMux(calsync.NewHandler(repo, adapter, logger))); err != nil {
				logger.Error("calendar sync worker failed to start", "err", err)
			} else {
				defer worker.Shutdown()
			}
		}
	} else {
		logger.Warn("REDIS_ADDR not set; idempotency cache and calendar sync disabled")
	}

	coordinator := booking.NewCoordinator(repo, normalizer, detector, logger, booking.Config{
		IdempotencyTTL:  config.Duration("IDEMPOTENCY_TTL", 24*time.Hour),
		InitialStatus:   model.ReservationStatus(config.String("BOOKING_INITIAL_STATUS", string(model.StatusPending))),
		SuggestionCount: config.Int("SUGGESTION_COUNT", suggest.DefaultCount),
		Retry: retry.Policy{
			Base:        config.Duration("BOOKING_RETRY_BASE", time.Second),
			Factor:      2,
			MaxAttempts: config.Int("BOOKING_RETRY_ATTEMPTS", 3),
		},
	}, opts...)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			Retention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		})
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	sweeper := idempotency.NewSweeper(repo, logger,
		config.Duration("IDEMPOTENCY_SWEEP_EVERY", 10*time.Minute),
		config.Int("IDEMPOTENCY_SWEEP_BATCH", 500))
	go sweeper.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(coordinator, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(
		availability.NewComputer(repo, gatherer, normalizer), repo, normalizer, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", handlers.Routes(bookingHandler, availabilityHandler))

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
		rateLimit(rdb, logger),
	)
	handler = otelhttp.NewHandler(handler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger)
	health.SetServing(service, true)
	go func() {
		logger.Info("grpc health server starting", "addr", ":"+grpcPort)
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServing(service, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
