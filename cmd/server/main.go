package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/events"
	"storefront/internal/health"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/rest"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	version           = "1.0.0"
	localCacheEntries = 256
	shutdownTimeout   = 10 * time.Second
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database := initDBFunc(cfg)
	defer database.Close()

	handler := newServer(ctx, cfg, database)
	return startServerFunc(ctx, ":"+cfg.AppPort, handler)
}

// newServer wires repositories, services and optional integrations into the
// HTTP handler. Background work it starts stops with ctx.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) http.Handler {
	log := logger.L()
	healthHandler := health.NewHandler(version)
	healthHandler.RegisterChecker("database", health.DatabaseChecker(database))

	productRepo := product.NewRepository(database)
	listCache := newListCache(ctx, cfg, healthHandler)

	productSvc := product.NewService(productRepo, product.WithListCache(listCache))
	orderSvc := order.NewService(
		order.NewRepository(database),
		productRepo,
		order.WithPublisher(newPublisher(ctx, cfg)),
		order.WithMetrics(metrics.NewOrderMetrics()),
		order.WithStockInvalidator(listCache),
	)

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	go limiter.Cleanup(ctx, time.Minute)

	mux := setupRouter(rest.NewHandler(productSvc, orderSvc), healthHandler)

	log.Info("storefront API configured",
		zap.String("env", cfg.AppEnv),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("amqp", cfg.AMQPURL != ""),
	)

	return logger.RequestIDMiddleware(
		middleware.CORSFor(cfg.CORSOrigin)(
			middleware.Auth([]byte(cfg.JWTSecret))(
				middleware.Logging(
					limiter.Middleware(mux),
				),
			),
		),
	)
}

func setupRouter(api *rest.Handler, healthHandler *health.Handler) *http.ServeMux {
	mux := api.Routes()
	mux.Handle("GET /health", healthHandler)
	mux.HandleFunc("GET /health/live", health.LivenessHandler)
	mux.HandleFunc("GET /health/ready", healthHandler.ReadinessHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type listCache interface {
	product.ListCache
	order.StockInvalidator
}

// newListCache prefers Redis and falls back to an in-process cache when
// Redis is not configured or unreachable.
func newListCache(ctx context.Context, cfg *config.Config, h *health.Handler) listCache {
	if cfg.RedisAddr == "" {
		return cache.NewLocal(localCacheEntries, cfg.CatalogCacheTTL)
	}

	client, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.L().Warn("redis unavailable, using local catalog cache",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
		return cache.NewLocal(localCacheEntries, cfg.CatalogCacheTTL)
	}
	context.AfterFunc(ctx, func() { _ = client.Close() })

	h.RegisterChecker("redis", health.NewOptionalChecker("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	return cache.NewRedis(client, cfg.CatalogCacheTTL)
}

func newPublisher(ctx context.Context, cfg *config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}

	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.L().Warn("amqp unavailable, order events disabled", zap.Error(err))
		return events.Noop{}
	}
	context.AfterFunc(ctx, pub.Close)
	return pub
}

// startServer serves until ctx is cancelled, then drains in-flight requests.
func startServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info("storefront API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
