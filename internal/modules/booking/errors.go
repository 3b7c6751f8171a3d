package booking

import (
	"errors"
	"fmt"
	"net/http"

	"saheli/internal/domain"
	"saheli/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Error kinds. Concrete errors wrap one of these with a user-facing message.
var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrInvalidTransition    = domain.ErrInvalidTransition
	ErrPaymentVerification  = errors.New("payment verification failed")
	ErrPaymentWindowExpired = errors.New("payment window expired")
	ErrExternalService      = errors.New("external service error")
	ErrRateLimited          = errors.New("rate limited")
)

// Error is a kind plus the message shown to the caller.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func Errorf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause for logging while keeping message for the caller.
func Wrap(kind error, cause error, message string) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrSlotUnavailable, http.StatusConflict, "SLOT_UNAVAILABLE"},
	{ErrInvalidTransition, http.StatusBadRequest, "INVALID_TRANSITION"},
	{ErrPaymentVerification, http.StatusBadRequest, "PAYMENT_VERIFICATION_FAILED"},
	{ErrPaymentWindowExpired, http.StatusBadRequest, "PAYMENT_WINDOW_EXPIRED"},
	{ErrExternalService, http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR"},
	{ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
}

// HTTPStatus maps err to a status and error code.
func HTTPStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// RenderError writes err in the standard envelope. Unknown errors are hidden.
func RenderError(c *gin.Context, err error) {
	status, code := HTTPStatus(err)
	msg := "internal server error"
	if status != http.StatusInternalServerError {
		msg = publicMessage(err)
	}
	_ = c.Error(err)
	response.Error(c, status, code, msg)
}

func publicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return te.Error()
	}
	return err.Error()
}

func transitionErr(from, to domain.BookingStatus) error {
	return &domain.TransitionError{From: from, To: to}
}
