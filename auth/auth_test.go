package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/signspeak/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.InitDB(context.Background(), filepath.Join(t.TempDir(), "auth-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(store.NewUserRepo(db), "test-secret", 0)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "  Ana@Example.COM ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acct.Email)
	assert.NotEmpty(t, acct.UserID)
	assert.NotEmpty(t, acct.Token)

	claims, err := svc.Verify(acct.Token)
	require.NoError(t, err)
	assert.Equal(t, acct.UserID, claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)

	login, err := svc.Login(ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, acct.UserID, login.UserID)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing email", "", "secret1", ErrMissingFields},
		{"missing password", "a@example.com", "", ErrMissingFields},
		{"bad email", "not-an-email", "secret1", ErrInvalidEmail},
		{"display name", "Ana <a@example.com>", "secret1", ErrInvalidEmail},
		{"short password", "a@example.com", "12345", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dup@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "DUP@example.com", "another")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc := NewService(nil, "secret-a", time.Hour)
	other := NewService(nil, "secret-b", time.Hour)

	token, err := svc.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenLifetime(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(nil, "secret", 0)
	svc.now = func() time.Time { return fixed }

	token, err := svc.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Equal(fixed.Add(7*24*time.Hour)))
}
