package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"saheli/internal/app"
	"saheli/internal/config"
	"saheli/internal/logger"
	"saheli/internal/middleware"
	"saheli/internal/modules/booking"
	"saheli/internal/modules/catalog"
	"saheli/internal/modules/payment"
	"saheli/internal/notification"
	jwtsvc "saheli/internal/pkg/jwt"
	"saheli/internal/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("bootstrap failed", zap.Error(err))
	}
	defer a.Close()

	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	var createLimiter ratelimit.Limiter
	if a.Redis != nil {
		createLimiter = ratelimit.NewRedisLimiter(a.Redis, "booking-create", cfg.Booking.CreateRatePerMinute, time.Minute)
	} else {
		createLimiter = ratelimit.NewLocalLimiter(cfg.Booking.CreateRatePerMinute, time.Minute)
	}

	hub := notification.NewHub()
	defer hub.Close()
	relay := notification.NewRelay(a.PubSub.Subscriber, hub, cfg.EventsTopic, zlog)
	if err := relay.Start(ctx); err != nil {
		zlog.Fatal("event relay failed to start", zap.Error(err))
	}
	ws := notification.NewWSHandler(hub, tokens, cfg.CORSOrigins, zlog)

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(tokens))

	bookingPublic := v1.Group("/booking")
	bookingProtected := protected.Group("/booking")
	booking.NewHandler(a.Booking).RegisterRoutes(bookingPublic, bookingProtected,
		middleware.RateLimit(createLimiter, "booking-create", zlog))
	payment.NewHandler(a.Payment).RegisterRoutes(bookingPublic, bookingProtected)
	catalog.NewHandler(a.Catalog).RegisterRoutes(v1, protected)
	bookingPublic.GET("/ws", ws.Handle)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("api listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("forced shutdown", zap.Error(err))
	}
}
