package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/notify"
	"github.com/safar/storefront/internal/observability"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/receipt"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	var cache cart.Cache = cart.NopCache{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = cart.NewRedisCache(client, cfg.Redis.CartTTL)
		logger.Info("cart cache enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	carts := cart.NewService(db, store.NewCatalog(db), cache, logger)

	dispatcher := notify.NewDispatcher(
		notify.NewLogNotifier(cfg.Notify.From, logger),
		notify.Policy{MaxAttempts: cfg.Notify.MaxAttempts, InitialDelay: cfg.Notify.InitialDelay},
		logger,
	)

	deps := checkout.Deps{
		DB:       db,
		Carts:    carts,
		Receipts: receipt.NewBuilder(cfg.Server.StoreName),
		Mailer:   dispatcher,
		Policy:   pricing.Policy{TaxRate: cfg.Pricing.TaxRate, Shipping: cfg.Pricing.Shipping},
		Logger:   logger,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.OrderTopic, cfg.Kafka.Brokers...)
		defer publisher.Close()
		deps.Events = publisher
		logger.Info("order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrderTopic))
	}
	orders := checkout.NewService(deps)

	var auth identity.Authenticator
	if cfg.Auth.JWTSecret != "" {
		auth = identity.NewJWTAuthenticator(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, every request is treated as a guest")
	}
	resolver := identity.NewResolver(auth, carts, identity.CookieConfig{
		Name:   cfg.Auth.GuestCookieName,
		MaxAge: cfg.Auth.GuestCookieMaxAge,
		Secure: cfg.Auth.GuestCookieSecure,
	}, logger)

	srv := &server{
		db:       db,
		carts:    carts,
		checkout: orders,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(resolver.Middleware)
		srv.mountStorefront(r)
	})

	if cfg.Server.AdminEnabled {
		r.Route("/admin", srv.mountAdmin)
		logger.Warn("admin routes enabled")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	orders.Wait()
	dispatcher.Wait()
	logger.Info("server exited")
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
