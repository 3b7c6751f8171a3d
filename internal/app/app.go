// Package app wires the shared components used by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"saheli/internal/config"
	"saheli/internal/database"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/modules/booking"
	"saheli/internal/modules/catalog"
	"saheli/internal/modules/payment"
	"saheli/internal/notification"
	"saheli/internal/pkg/cooldown"
	"saheli/internal/pkg/lock"
	"saheli/internal/repository"
	"saheli/internal/scheduler"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	PubSub *notification.PubSub
	Locker lock.Locker

	Users    *repository.UserRepository
	Services *repository.ServiceRepository
	Bookings *repository.BookingRepository
	Payments *repository.PaymentRepository

	Booking *booking.Service
	Payment *payment.Service
	Catalog *catalog.Service

	asynqClient *asynq.Client
}

// New connects storage and messaging and builds the domain services.
// Redis is optional outside prod: without it locks, cooldowns and the
// expiry queue fall back to in-process implementations and sweeps alone
// expire unpaid bookings.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Users:    repository.NewUserRepository(db),
		Services: repository.NewServiceRepository(db),
		Bookings: repository.NewBookingRepository(db),
		Payments: repository.NewPaymentRepository(db),
	}

	var (
		cooldowns cooldown.Store
		expiry    booking.ExpiryScheduler
	)
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.Locker = lock.NewRedisLocker(a.Redis)
		cooldowns = cooldown.NewRedisStore(a.Redis, "saheli:cooldown")
		a.asynqClient = asynq.NewClient(a.RedisConnOpt())
		expiry = scheduler.NewExpiryQueue(a.asynqClient, log)
	} else {
		log.Warn("redis not configured, using in-process locks and cooldowns")
		a.Locker = lock.NewLocalLocker()
		cooldowns = cooldown.NewMemoryStore()
	}

	hostname, _ := os.Hostname()
	a.PubSub, err = notification.NewPubSub(cfg.AMQPURL, hostname, log)
	if err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	notifier := notification.NewPublisher(a.PubSub.Publisher, cfg.EventsTopic, log)

	gw := razorpay.NewClient(razorpay.Config{
		KeyID:         cfg.Gateway.KeyID,
		KeySecret:     cfg.Gateway.KeySecret,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		BaseURL:       cfg.Gateway.BaseURL,
		Timeout:       cfg.Gateway.Timeout,
	}, log)

	a.Booking = booking.NewService(booking.Deps{
		Bookings: a.Bookings,
		Catalog:  a.Services,
		Payments: a.Payments,
		Gateway:  gw,
		Locker:   a.Locker,
		Expiry:   expiry,
		Notifier: notifier,
		Logger:   log,
	}, booking.Config{
		Location:          cfg.Location(),
		Currency:          cfg.Gateway.Currency,
		PaymentWindow:     cfg.Booking.PaymentWindow,
		ManualStartLead:   cfg.Booking.ManualStartLead,
		AutoStartGrace:    cfg.Booking.AutoStartGrace,
		AutoCompleteGrace: cfg.Booking.AutoCompleteGrace,
		ReminderLead:      cfg.Booking.ReminderLead,
		SlotLockTTL:       cfg.Booking.SlotLockTTL,
	})

	a.Payment = payment.NewService(payment.Deps{
		Bookings: a.Bookings,
		Payments: a.Payments,
		Gateway:  gw,
		Cooldown: cooldowns,
		Notifier: notifier,
		Logger:   log,
	}, payment.Config{
		Currency:          cfg.Gateway.Currency,
		RemainingCooldown: cfg.Booking.RemainingOrderCooldown,
	})

	a.Catalog = catalog.NewService(a.Services, a.Users, log)
	return a, nil
}

// RedisConnOpt is the asynq connection for the configured redis.
func (a *App) RedisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}
}

func (a *App) Close() {
	if a.asynqClient != nil {
		if err := a.asynqClient.Close(); err != nil {
			a.Log.Warn("close asynq client", zap.Error(err))
		}
	}
	if a.PubSub != nil {
		if err := a.PubSub.Close(); err != nil {
			a.Log.Warn("close pubsub", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
