package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"saheli/internal/database"
	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/notification"
	"saheli/internal/repository"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

// Monday 2 June 2025, 09:00 in India.
var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, ist)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) KeyID() string { return "rzp_test_key" }

func (m *mockGateway) CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	args := m.Called(ctx, req)
	o, _ := args.Get(0).(*razorpay.Order)
	return o, args.Error(1)
}

func (m *mockGateway) RefundPayment(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*razorpay.Refund, error) {
	args := m.Called(ctx, paymentID, amount)
	r, _ := args.Get(0).(*razorpay.Refund)
	return r, args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingExpiry struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingExpiry) ScheduleExpiry(_ context.Context, id int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	store    *repository.BookingRepository
	ledger   *repository.PaymentRepository
	gateway  *mockGateway
	notifier *recordingNotifier
	expiry   *recordingExpiry
	provider *domain.User
	customer *domain.User
	service  *domain.Service
	clock    *time.Time
}

func (e *testEnv) setNow(t time.Time) { *e.clock = t }

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:booking_test_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func workingWeek() []domain.DaySchedule {
	days := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	out := make([]domain.DaySchedule, 0, len(days))
	for _, d := range days {
		out = append(out, domain.DaySchedule{
			Day:   d,
			Slots: []domain.TimeRange{{Start: "08:00", End: "13:00"}, {Start: "14:00", End: "20:00"}},
		})
	}
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupDB(t)

	provider := &domain.User{Name: "Asha", Email: "asha@example.com", Role: domain.RoleProvider}
	customer := &domain.User{Name: "Meera", Email: "meera@example.com", Role: domain.RoleCustomer}
	require.NoError(t, db.Create(provider).Error)
	require.NoError(t, db.Create(customer).Error)

	service := &domain.Service{
		ProviderID:        provider.ID,
		Title:             "Bridal mehendi",
		PricingType:       domain.PricingHourly,
		BasePrice:         decimal.NewFromInt(500),
		AdvancePercentage: 20,
		TravelFee:         decimal.NewFromInt(100),
		WeekendPremium:    10,
		Mode:              domain.ModeOnsite,
		WeeklySchedule:    workingWeek(),
		UnavailableDates:  []string{"2025-06-10"},
		IsActive:          true,
	}
	require.NoError(t, db.Create(service).Error)

	env := &testEnv{
		db:       db,
		store:    repository.NewBookingRepository(db),
		ledger:   repository.NewPaymentRepository(db),
		gateway:  new(mockGateway),
		notifier: &recordingNotifier{},
		expiry:   &recordingExpiry{},
		provider: provider,
		customer: customer,
		service:  service,
	}
	now := testNow
	env.clock = &now

	env.svc = NewService(Deps{
		Bookings: env.store,
		Catalog:  repository.NewServiceRepository(db),
		Payments: env.ledger,
		Gateway:  env.gateway,
		Expiry:   env.expiry,
		Notifier: env.notifier,
		Logger:   zap.NewNop(),
	}, Config{Location: ist, Currency: "INR"})
	env.svc.SetClock(func() time.Time { return *env.clock })
	return env
}

// insertBooking stores a booking directly, bypassing reservation rules.
func (e *testEnv) insertBooking(t *testing.T, date, start, end string, status domain.BookingStatus, mutate ...func(*domain.Booking)) *domain.Booking {
	t.Helper()
	day, err := domain.ParseDate(date)
	require.NoError(t, err)
	startAt, err := domain.At(day, start, ist)
	require.NoError(t, err)
	endAt, err := domain.At(day, end, ist)
	require.NoError(t, err)

	b := &domain.Booking{
		ServiceID:         e.service.ID,
		ProviderID:        e.provider.ID,
		CustomerID:        e.customer.ID,
		BookingDate:       date,
		StartTime:         start,
		EndTime:           end,
		ScheduledStartAt:  startAt.UTC(),
		ScheduledEndAt:    endAt.UTC(),
		ServiceType:       domain.ModeOnsite,
		PricingType:       domain.PricingHourly,
		BaseAmount:        decimal.NewFromInt(1500),
		WeekendPremium:    decimal.NewFromInt(150),
		TravelFee:         decimal.NewFromInt(100),
		TotalAmount:       decimal.NewFromInt(1750),
		AdvancePercentage: 20,
		AdvancePaid:       decimal.NewFromInt(350),
		RemainingAmount:   decimal.NewFromInt(1400),
		Status:            status,
		PaymentStatus:     domain.PaymentPending,
	}
	if status != domain.BookingPending {
		b.PaymentStatus = domain.PaymentAdvancePaid
		b.AdvanceOrderID = fmt.Sprintf("order_%s_%s", date, start)
		b.AdvancePaymentID = fmt.Sprintf("pay_%s_%s", date, start)
	} else {
		exp := testNow.Add(15 * time.Minute).UTC()
		b.ExpiresAt = &exp
	}
	for _, m := range mutate {
		m(b)
	}
	require.NoError(t, e.db.Create(b).Error)
	return b
}

func (e *testEnv) reload(t *testing.T, id int64) *domain.Booking {
	t.Helper()
	b, err := e.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func intPtr(v int) *int { return &v }
