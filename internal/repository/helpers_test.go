package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"saheli/internal/domain"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:repo_test_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Service{}, &domain.Booking{}, &domain.PaymentRecord{}))
	return db
}

func seedService(t *testing.T, db *gorm.DB) (*domain.User, *domain.Service) {
	t.Helper()
	provider := &domain.User{Name: "Asha", Email: fmt.Sprintf("asha-%d@example.com", time.Now().UnixNano()), Role: domain.RoleProvider}
	require.NoError(t, db.Create(provider).Error)

	svc := &domain.Service{
		ProviderID:        provider.ID,
		Title:             "Mehendi",
		PricingType:       domain.PricingHourly,
		BasePrice:         decimal.NewFromInt(500),
		AdvancePercentage: 20,
		Mode:              domain.ModeOnsite,
		IsActive:          true,
	}
	require.NoError(t, db.Create(svc).Error)
	return provider, svc
}

func newBooking(svc *domain.Service, date, start, end string, status domain.BookingStatus, expiresAt *time.Time) *domain.Booking {
	return &domain.Booking{
		ServiceID:     svc.ID,
		ProviderID:    svc.ProviderID,
		CustomerID:    99,
		BookingDate:   date,
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		ExpiresAt:     expiresAt,
		AdvancePaid:   decimal.NewFromInt(350),
		TotalAmount:   decimal.NewFromInt(1750),
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func mustReserve(t *testing.T, r *BookingRepository, b *domain.Booking, now time.Time) {
	t.Helper()
	require.NoError(t, r.ReserveSlot(context.Background(), b, now))
}
