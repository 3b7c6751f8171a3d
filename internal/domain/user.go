package domain

import "time"

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleProvider UserRole = "saheli"
)

// VerifiedBadgeThreshold is the number of completed bookings that earns a
// provider the verified badge.
const VerifiedBadgeThreshold = 3

type User struct {
	ID                     int64     `json:"id" gorm:"primaryKey"`
	Name                   string    `json:"name"`
	Email                  string    `json:"email" gorm:"uniqueIndex" validate:"required,email"`
	Phone                  string    `json:"phone,omitempty"`
	Role                   UserRole  `json:"role" gorm:"type:varchar(20);index"`
	CompletedBookingsCount int       `json:"completed_bookings_count"`
	IsVerified             bool      `json:"is_verified"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (u *User) HasVerifiedBadge() bool {
	return u.IsVerified || u.CompletedBookingsCount >= VerifiedBadgeThreshold
}
