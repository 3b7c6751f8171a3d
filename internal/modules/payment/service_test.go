package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"saheli/internal/database"
	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/modules/booking"
	"saheli/internal/notification"
	"saheli/internal/repository"
)

const (
	keySecret     = "key_secret"
	webhookSecret = "whsec"
)

var testNow = time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC)

type fakeGateway struct {
	mu     sync.Mutex
	orders []razorpay.CreateOrderRequest
	fail   error
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	g.orders = append(g.orders, req)
	return &razorpay.Order{ID: fmt.Sprintf("order_rem_%d", len(g.orders)), Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return razorpay.VerifyPaymentSignature(keySecret, orderID, paymentID, signature)
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return razorpay.VerifyWebhookSignature(webhookSecret, body, signature)
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingNotifier) Notify(_ context.Context, ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.Type)
}

func (r *recordingNotifier) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	bookings *repository.BookingRepository
	ledger   *repository.PaymentRepository
	gateway  *fakeGateway
	notifier *recordingNotifier
	customer *domain.User
	provider *domain.User
	service  *domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: fmt.Sprintf("file:payment_%s?mode=memory&cache=shared", name)}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:       db,
		bookings: repository.NewBookingRepository(db),
		ledger:   repository.NewPaymentRepository(db),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		customer: &domain.User{Name: "Meera", Email: "meera@example.com", Role: domain.RoleCustomer},
		provider: &domain.User{Name: "Asha", Email: "asha@example.com", Role: domain.RoleProvider},
	}
	require.NoError(t, db.Create(f.customer).Error)
	require.NoError(t, db.Create(f.provider).Error)
	f.service = &domain.Service{
		ProviderID: f.provider.ID, Title: "Makeup", PricingType: domain.PricingFixed,
		BasePrice: decimal.NewFromInt(1750), Mode: domain.ModeOnline, IsActive: true,
	}
	require.NoError(t, db.Create(f.service).Error)

	f.svc = NewService(Deps{
		Bookings: f.bookings,
		Payments: f.ledger,
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Logger:   zap.NewNop(),
	}, Config{Currency: "INR"})
	f.svc.SetClock(func() time.Time { return testNow })
	return f
}

// pending stores an unpaid booking with an open advance order and its ledger row.
func (f *fixture) pending(t *testing.T, orderID string, expiresIn time.Duration) *domain.Booking {
	t.Helper()
	exp := testNow.Add(expiresIn)
	b := &domain.Booking{
		ServiceID: f.service.ID, ProviderID: f.provider.ID, CustomerID: f.customer.ID,
		BookingDate: "2025-06-05", StartTime: "10:00", EndTime: "11:00",
		ScheduledStartAt: time.Date(2025, 6, 5, 4, 30, 0, 0, time.UTC),
		ScheduledEndAt:   time.Date(2025, 6, 5, 5, 30, 0, 0, time.UTC),
		TotalAmount:      decimal.NewFromInt(1750),
		AdvancePaid:      decimal.NewFromInt(350),
		RemainingAmount:  decimal.NewFromInt(1400),
		Status:           domain.BookingPending,
		PaymentStatus:    domain.PaymentPending,
		AdvanceOrderID:   orderID,
		ExpiresAt:        &exp,
	}
	require.NoError(t, f.db.Create(b).Error)
	require.NoError(t, f.ledger.Create(context.Background(), &domain.PaymentRecord{
		BookingID: b.ID, Leg: domain.LegAdvance, OrderID: orderID,
		Amount: b.AdvancePaid, Currency: "INR", Status: domain.PaymentRecordCreated,
	}))
	return b
}

func (f *fixture) completed(t *testing.T) *domain.Booking {
	t.Helper()
	b := f.pending(t, "order_adv_done", time.Hour)
	require.NoError(t, f.db.Model(b).Updates(map[string]interface{}{
		"status":             domain.BookingCompleted,
		"payment_status":     domain.PaymentAdvancePaid,
		"advance_payment_id": "pay_adv_done",
	}).Error)
	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	return got
}

func verifyReq(b *domain.Booking, orderID, paymentID string) VerifyRequest {
	return VerifyRequest{
		BookingID: b.ID,
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: razorpay.PaymentSignature(keySecret, orderID, paymentID),
	}
}

func webhookBody(t *testing.T, event, orderID, paymentID string, amount int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id": paymentID, "order_id": orderID, "amount": amount,
					"currency": "INR", "method": "upi", "error_description": "card declined",
				},
			},
		},
	})
	require.NoError(t, err)
	return body, razorpay.Sign(webhookSecret, body)
}

func TestVerifyAdvance_Confirms(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_a", 10*time.Minute)

	res, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_a", "pay_a"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyApplied)
	assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, domain.PaymentAdvancePaid, res.Booking.PaymentStatus)
	assert.Equal(t, "pay_a", res.Booking.AdvancePaymentID)
	require.NotNil(t, res.Booking.PaidAt)

	rec, err := f.ledger.GetByOrderID(context.Background(), "order_a")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordCaptured, rec.Status)
	assert.Equal(t, 1, f.notifier.count(notification.TypeBookingConfirmed))

	// the same checkout payload again is accepted without side effects
	res, err = f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_a", "pay_a"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Equal(t, 1, f.notifier.count(notification.TypeBookingConfirmed))
}

func TestVerifyAdvance_Rejects(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_b", 10*time.Minute)

	bad := verifyReq(b, "order_b", "pay_b")
	bad.Signature = strings.Repeat("0", 64)
	_, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, bad)
	assert.ErrorIs(t, err, booking.ErrPaymentVerification)

	_, err = f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_other", "pay_b"))
	assert.ErrorIs(t, err, booking.ErrPaymentVerification)

	_, err = f.svc.VerifyAdvance(context.Background(), f.provider.ID, verifyReq(b, "order_b", "pay_b"))
	assert.ErrorIs(t, err, booking.ErrForbidden)

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
}

func TestVerifyAdvance_ExpiredWindow(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_late", -time.Minute)

	_, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_late", "pay_late"))
	assert.ErrorIs(t, err, booking.ErrPaymentWindowExpired)
	status, code := booking.HTTPStatus(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "PAYMENT_WINDOW_EXPIRED", code)
}

func TestVerifyAdvance_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_c", 10*time.Minute)
	require.NoError(t, f.db.Model(b).Update("status", domain.BookingCancelled).Error)

	_, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_c", "pay_c"))
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestWebhook_AfterSyncConfirmIsNoop(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_w", 10*time.Minute)

	_, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_w", "pay_w"))
	require.NoError(t, err)

	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, "order_w", "pay_w", 35000)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, 1, f.notifier.count(notification.TypeBookingConfirmed))
}

func TestWebhook_ConfirmsFirstThenSyncIsNoop(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_x", 10*time.Minute)

	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, "order_x", "pay_x", 35000)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, "upi", got.PaymentMethod)

	rec, err := f.ledger.GetByOrderID(context.Background(), "order_x")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordCaptured, rec.Status)
	assert.Equal(t, "upi", rec.Method)

	res, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_x", "pay_x"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Equal(t, 1, f.notifier.count(notification.TypeBookingConfirmed))
}

func TestWebhook_ConcurrentWithSync(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_race", 10*time.Minute)
	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, "order_race", "pay_race", 35000)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_race", "pay_race"))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))
	}()
	wg.Wait()

	assert.Equal(t, 1, f.notifier.count(notification.TypeBookingConfirmed))
}

func TestWebhook_Rejections(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_r", 10*time.Minute)

	body, _ := webhookBody(t, razorpay.EventPaymentCaptured, "order_r", "pay_r", 35000)
	err := f.svc.HandleWebhook(context.Background(), body, "bogus")
	assert.ErrorIs(t, err, booking.ErrPaymentVerification)

	// amount tampering leaves the booking pending and fails the ledger row
	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, "order_r", "pay_r", 100)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))
	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
	rec, err := f.ledger.GetByOrderID(context.Background(), "order_r")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordFailed, rec.Status)

	body, sig = webhookBody(t, razorpay.EventPaymentCaptured, "order_unknown", "pay_u", 100)
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	body, sig = webhookBody(t, "subscription.charged", "order_r", "pay_r", 1)
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))
}

func TestWebhook_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "order_f", 10*time.Minute)

	body, sig := webhookBody(t, razorpay.EventPaymentFailed, "order_f", "pay_f", 35000)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	rec, err := f.ledger.GetByOrderID(context.Background(), "order_f")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordFailed, rec.Status)
	assert.Equal(t, "card declined", rec.FailureReason)
}

func signedEvent(t *testing.T, payload map[string]interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body, razorpay.Sign(webhookSecret, body)
}

func TestWebhook_OrderPaidWithoutPaymentIsIgnored(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_op", 10*time.Minute)

	body, sig := signedEvent(t, map[string]interface{}{
		"event": razorpay.EventOrderPaid,
		"payload": map[string]interface{}{
			"order": map[string]interface{}{
				"entity": map[string]interface{}{"id": "order_op", "amount_paid": 35000},
			},
		},
	})
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)

	res, err := f.svc.VerifyAdvance(context.Background(), f.customer.ID, verifyReq(b, "order_op", "pay_real"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyApplied)
	assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, "pay_real", res.Booking.AdvancePaymentID)
}

func TestWebhook_OrderPaidUsesOrderAmount(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_op2", 10*time.Minute)

	body, sig := signedEvent(t, map[string]interface{}{
		"event": razorpay.EventOrderPaid,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{"id": "pay_op2", "order_id": "order_op2", "method": "card"},
			},
			"order": map[string]interface{}{
				"entity": map[string]interface{}{"id": "order_op2", "amount_paid": 35000},
			},
		},
	})
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, "pay_op2", got.AdvancePaymentID)
}

func TestWebhook_MissingAmountIsMismatch(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_na", 10*time.Minute)

	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, "order_na", "pay_na", 0)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
	rec, err := f.ledger.GetByOrderID(context.Background(), "order_na")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordFailed, rec.Status)
}

func TestRemainingLeg(t *testing.T) {
	f := newFixture(t)
	b := f.completed(t)

	res, err := f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, int64(140000), res.GatewayOrder.AmountMinor)
	orderID := res.GatewayOrder.ID

	// a second request within the cooldown reuses the order
	again, err := f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, orderID, again.GatewayOrder.ID)
	assert.Len(t, f.gateway.orders, 1)

	// an advance-leg signature cannot settle the balance
	_, err = f.svc.VerifyRemaining(context.Background(), f.customer.ID, verifyReq(b, "order_adv_done", "pay_adv_done"))
	assert.ErrorIs(t, err, booking.ErrPaymentVerification)
	cross := verifyReq(b, orderID, "pay_rem")
	cross.Signature = razorpay.PaymentSignature(keySecret, "order_adv_done", "pay_rem")
	_, err = f.svc.VerifyRemaining(context.Background(), f.customer.ID, cross)
	assert.ErrorIs(t, err, booking.ErrPaymentVerification)

	paid, err := f.svc.VerifyRemaining(context.Background(), f.customer.ID, verifyReq(b, orderID, "pay_rem"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFullyPaid, paid.Booking.PaymentStatus)
	require.NotNil(t, paid.Booking.RemainingPaidAt)
	assert.Equal(t, 1, f.notifier.count(notification.TypeRemainingPaid))

	// the matching webhook afterwards changes nothing
	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, orderID, "pay_rem", 140000)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))
	assert.Equal(t, 1, f.notifier.count(notification.TypeRemainingPaid))

	_, err = f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, b.ID)
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestRemainingOrder_Preconditions(t *testing.T) {
	f := newFixture(t)
	b := f.pending(t, "order_p", 10*time.Minute)

	_, err := f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, b.ID)
	assert.ErrorIs(t, err, booking.ErrValidation)

	done := f.completed(t)
	_, err = f.svc.CreateRemainingOrder(context.Background(), f.provider.ID, done.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	f.gateway.fail = errors.New("boom")
	_, err = f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, done.ID)
	assert.ErrorIs(t, err, booking.ErrExternalService)

	// the failed attempt released the cooldown
	f.gateway.fail = nil
	res, err := f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, done.ID)
	require.NoError(t, err)
	assert.False(t, res.Reused)
}

func TestWebhook_RemainingCapture(t *testing.T) {
	f := newFixture(t)
	b := f.completed(t)
	res, err := f.svc.CreateRemainingOrder(context.Background(), f.customer.ID, b.ID)
	require.NoError(t, err)

	body, sig := webhookBody(t, razorpay.EventPaymentCaptured, res.GatewayOrder.ID, "pay_hook", 140000)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, sig))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFullyPaid, got.PaymentStatus)
	assert.Equal(t, "pay_hook", got.RemainingPaymentID)
}
