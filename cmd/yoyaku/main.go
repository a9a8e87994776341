package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yoyaku-app/yoyaku/internal/booking"
	"github.com/yoyaku-app/yoyaku/internal/handlers"
	"github.com/yoyaku-app/yoyaku/internal/idempotency"
	"github.com/yoyaku-app/yoyaku/internal/localtime"
	"github.com/yoyaku-app/yoyaku/internal/notify"
	"github.com/yoyaku-app/yoyaku/internal/slots"
	"github.com/yoyaku-app/yoyaku/internal/storage"
	"github.com/yoyaku-app/yoyaku/libs/config"
	"github.com/yoyaku-app/yoyaku/libs/db"
	"github.com/yoyaku-app/yoyaku/libs/httpx"
	"github.com/yoyaku-app/yoyaku/libs/kafkax"
	otelx "github.com/yoyaku-app/yoyaku/libs/otel"
	"github.com/yoyaku-app/yoyaku/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "yoyaku")
	port, err := config.Port("PORT", "8080")
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

	zone, err := localtime.Load(config.String("BUSINESS_TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		logger.Error("timezone load failed", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
	}

	notifier, notifierClose := newNotifier(logger)
	defer notifierClose()

	repo := storage.NewReservationRepository(pool)
	engine := booking.NewService(repo, notifier, logger, booking.Config{
		Zone: zone,
		Hours: slots.Hours{
			StartHour: config.Int("BUSINESS_OPEN_HOUR", 9),
			EndHour:   config.Int("BUSINESS_CLOSE_HOUR", 18),
		},
		SlotDuration: time.Duration(config.Int("SLOT_MINUTES", 15)) * time.Minute,
	})

	var idemStore handlers.IdempotencyStore
	if rdb != nil && config.Bool("IDEMPOTENCY_ENABLED", true) {
		ttl := time.Duration(config.Int("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour
		idemStore = idempotency.NewStore(rdb, ttl)
	}

	bookingHandler := handlers.NewBookingHandler(engine, idemStore, logger)
	resourceHandler := handlers.NewResourceHandler(repo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}
	if config.String("NOTIFY_PROVIDER", "none") == "kafka" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/availability", bookingHandler.Availability)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.Create)
	mux.HandleFunc("/api/v1/bookings/{id}", bookingHandler.ByID)
	mux.HandleFunc("/api/v1/resources", resourceHandler.List)

	if secret := config.String("ADMIN_TOKEN", ""); secret != "" {
		adminHandler, err := handlers.NewAdminHandler(repo, zone, secret, logger)
		if err != nil {
			logger.Error("admin handler init failed", "err", err)
			panic(err)
		}
		mux.HandleFunc("/api/v1/admin/bookings", adminHandler.Bookings)
	} else {
		logger.Warn("ADMIN_TOKEN not set; admin endpoints disabled")
	}

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
	}
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(limit, time.Minute).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "yoyaku")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", zone.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// newNotifier selects the single concrete notifier implementation for this
// process from configuration.
func newNotifier(logger *slog.Logger) (notify.Notifier, func()) {
	switch strings.ToLower(config.String("NOTIFY_PROVIDER", "none")) {
	case "email":
		n := notify.NewEmailNotifier(
			config.String("SMTP_HOST", "localhost"),
			config.String("SMTP_PORT", "1025"),
			config.String("MAIL_FROM", ""),
			config.String("ADMIN_EMAIL", ""),
		)
		return n, func() {}
	case "kafka":
		n := notify.NewKafkaNotifier(
			config.String("KAFKA_BROKERS", "localhost:9092"),
			config.String("KAFKA_TOPIC", ""),
		)
		return n, func() { _ = n.Close() }
	default:
		logger.Warn("no notify provider configured; confirmations disabled")
		return notify.Noop{}, func() {}
	}
}
