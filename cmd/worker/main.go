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

	"github.com/hibiken/asynqmon"
	"go.uber.org/zap"

	"saheli/internal/app"
	"saheli/internal/config"
	"saheli/internal/logger"
	"saheli/internal/scheduler"
)

// The worker runs the periodic lifecycle sweeps and, when redis is
// configured, the per-booking expiry queue and its monitoring UI.
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

	sweeper := scheduler.NewSweeper(a.Locker, cfg.Sweeps.LeaderTTL, zlog,
		scheduler.BookingJobs(a.Booking,
			cfg.Sweeps.Expire,
			cfg.Sweeps.AutoStart,
			cfg.Sweeps.AutoComplete,
			cfg.Sweeps.Reminder,
		)...,
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if a.Redis == nil {
		zlog.Info("worker running sweeps only")
		<-ctx.Done()
		return
	}

	tasks := scheduler.NewServer(a.RedisConnOpt(), 0, zlog)
	if err := tasks.Start(scheduler.NewMux(scheduler.NewExpiryHandler(a.Booking, zlog))); err != nil {
		zlog.Fatal("task server failed to start", zap.Error(err))
	}
	defer tasks.Shutdown()

	mon := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: a.RedisConnOpt(),
	})
	defer func() { _ = mon.Close() }()

	mux := http.NewServeMux()
	mux.Handle(mon.RootPath()+"/", mon)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.WorkerAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		zlog.Info("worker monitoring listening", zap.String("addr", cfg.WorkerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("monitoring server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
