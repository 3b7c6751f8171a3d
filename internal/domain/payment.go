package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentLeg string

const (
	LegAdvance   PaymentLeg = "Advance"
	LegRemaining PaymentLeg = "Remaining"
)

type PaymentRecordStatus string

const (
	PaymentRecordCreated  PaymentRecordStatus = "Created"
	PaymentRecordCaptured PaymentRecordStatus = "Captured"
	PaymentRecordFailed   PaymentRecordStatus = "Failed"
	PaymentRecordRefunded PaymentRecordStatus = "Refunded"
)

// PaymentRecord is the ledger row for one gateway order.
type PaymentRecord struct {
	ID            int64               `gorm:"primaryKey" json:"id"`
	BookingID     int64               `gorm:"index;not null" json:"booking_id"`
	Leg           PaymentLeg          `gorm:"type:varchar(20);not null" json:"leg"`
	OrderID       string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	PaymentID     string              `gorm:"type:varchar(64)" json:"payment_id,omitempty"`
	Amount        decimal.Decimal     `gorm:"type:decimal(12,2)" json:"amount"`
	Currency      string              `gorm:"type:varchar(8)" json:"currency"`
	Status        PaymentRecordStatus `gorm:"type:varchar(20);index" json:"status"`
	Method        string              `gorm:"type:varchar(32)" json:"method,omitempty"`
	FailureReason string              `gorm:"type:text" json:"failure_reason,omitempty"`
	CapturedAt    *time.Time          `json:"captured_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }
