package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func TestVerifyCredentials(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	guard := newGuard(s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	got, err := guard.VerifyCredentials(ctx, "testuser", testPassword)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	got, err = guard.VerifyCredentials(ctx, "testuser@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = guard.VerifyCredentials(ctx, "testuser", "wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = guard.VerifyCredentials(ctx, "nobody", testPassword)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestVerifyCredentialsInactiveAccount(t *testing.T) {
	s := newServiceStore(t)
	guard := newGuard(s, newTestClock())

	seedUser(t, s, func(u *domain.User) { u.IsActive = false })

	_, err := guard.VerifyCredentials(context.Background(), "testuser", testPassword)
	require.ErrorIs(t, err, service.ErrAccountInactive)
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	guard := newGuard(s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	for i := 0; i < 4; i++ {
		_, err := guard.VerifyCredentials(ctx, "testuser", "wrong-password")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	// The counter survives each failed request.
	persisted, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 4, persisted.FailedLogins)
	require.Nil(t, persisted.LockedUntil)

	// Fifth failure trips the lock.
	_, err = guard.VerifyCredentials(ctx, "testuser", "wrong-password")
	require.ErrorIs(t, err, service.ErrAccountLocked)

	persisted, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 5, persisted.FailedLogins)
	require.NotNil(t, persisted.LockedUntil)

	// Even the correct password is rejected while locked.
	_, err = guard.VerifyCredentials(ctx, "testuser", testPassword)
	require.ErrorIs(t, err, service.ErrAccountLocked)

	// After the lockout window the correct password works and the
	// counter resets.
	clock.Advance(15*time.Minute + time.Second)

	got, err := guard.VerifyCredentials(ctx, "testuser", testPassword)
	require.NoError(t, err)
	require.Equal(t, 0, got.FailedLogins)
	require.Nil(t, got.LockedUntil)

	persisted, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, persisted.FailedLogins)
	require.Nil(t, persisted.LockedUntil)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	s := newServiceStore(t)
	guard := newGuard(s, newTestClock())
	ctx := context.Background()

	u := seedUser(t, s)

	for i := 0; i < 3; i++ {
		_, err := guard.VerifyCredentials(ctx, "testuser", "wrong-password")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	_, err := guard.VerifyCredentials(ctx, "testuser", testPassword)
	require.NoError(t, err)

	persisted, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, persisted.FailedLogins)
}
