package main

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"saheli/internal/config"
	"saheli/internal/database"
	"saheli/internal/domain"
	"saheli/internal/logger"
	"saheli/internal/modules/catalog"
	jwtsvc "saheli/internal/pkg/jwt"
	"saheli/internal/repository"
)

// seed creates a demo provider, a customer and one bookable service, then
// prints access tokens for both users.
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

	db, err := database.Connect(cfg.DatabaseURL, zlog)
	if err != nil {
		zlog.Fatal("db connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("migrate failed", zap.Error(err))
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	services := repository.NewServiceRepository(db)

	seedUsers := []domain.User{
		{Name: "Asha Provider", Email: "provider@saheli.local", Role: domain.RoleProvider},
		{Name: "Meera Customer", Email: "customer@saheli.local", Role: domain.RoleCustomer},
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&seedUsers).Error; err != nil {
		zlog.Fatal("create users failed", zap.Error(err))
	}

	provider, err := users.GetByEmail(ctx, "provider@saheli.local")
	if err != nil {
		zlog.Fatal("load provider", zap.Error(err))
	}
	customer, err := users.GetByEmail(ctx, "customer@saheli.local")
	if err != nil {
		zlog.Fatal("load customer", zap.Error(err))
	}

	existing, err := services.ListByProvider(ctx, provider.ID)
	if err != nil {
		zlog.Fatal("list services", zap.Error(err))
	}
	var serviceID int64
	if len(existing) > 0 {
		serviceID = existing[0].ID
	} else {
		week := make([]catalog.DayInput, 0, 7)
		for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"} {
			week = append(week, catalog.DayInput{Day: day, Slots: []catalog.SlotInput{
				{Start: "09:00", End: "13:00"},
				{Start: "14:00", End: "19:00"},
			}})
		}
		svc, err := catalog.NewService(services, users, zlog).CreateService(ctx, provider.ID, catalog.CreateServiceRequest{
			Title:               "Bridal makeup",
			PricingType:         string(domain.PricingHourly),
			BasePrice:           decimal.NewFromInt(800),
			AdvancePercentage:   20,
			TravelFee:           decimal.NewFromInt(150),
			WeekendPremium:      10,
			Mode:                string(domain.ModeOnsite),
			WeeklySchedule:      week,
			AdvanceBookingLimit: 60,
			CancellationPolicy:  "Flexible",
		})
		if err != nil {
			zlog.Fatal("create service", zap.Error(err))
		}
		serviceID = svc.ID
	}

	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)
	providerToken, err := tokens.GenerateToken(provider.ID, provider.Role)
	if err != nil {
		zlog.Fatal("sign provider token", zap.Error(err))
	}
	customerToken, err := tokens.GenerateToken(customer.ID, customer.Role)
	if err != nil {
		zlog.Fatal("sign customer token", zap.Error(err))
	}

	fmt.Printf("service_id=%d\n", serviceID)
	fmt.Printf("provider_id=%d token=%s\n", provider.ID, providerToken)
	fmt.Printf("customer_id=%d token=%s\n", customer.ID, customerToken)
}
