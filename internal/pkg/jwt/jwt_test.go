package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saheli/internal/domain"
)

func TestGenerateAndValidate(t *testing.T) {
	s := New("secret", time.Hour)

	tok, err := s.GenerateToken(42, domain.RoleProvider)
	require.NoError(t, err)

	claims, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, domain.RoleProvider, claims.Role)
}

func TestValidate_Rejects(t *testing.T) {
	s := New("secret", time.Hour)
	tok, err := s.GenerateToken(42, domain.RoleCustomer)
	require.NoError(t, err)

	_, err = New("other-secret", time.Hour).ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := New("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(42, domain.RoleCustomer)
	require.NoError(t, err)
	_, err = s.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	admin, err := s.GenerateToken(42, domain.UserRole("admin"))
	require.NoError(t, err)
	_, err = s.ValidateToken(admin)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
