package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/internal/auth/store/drivers/sqlite"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

const testPassword = "SecurePass123!"

func TestMain(m *testing.M) {
	// Use a throwaway pepper file so tests never touch a real one.
	pepperPath := filepath.Join(os.TempDir(), "assetauth-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

// testClock is a movable fixed clock shared by the services under test.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newServiceStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s store.Store, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:             idx.New().String(),
		Username:       "testuser",
		Email:          "testuser@example.com",
		DisplayName:    "Test User",
		PasswordHash:   hash,
		IsActive:       true,
		TwoFactorState: domain.TwoFactorDisabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, fn := range mutate {
		fn(&u)
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func newGuard(s store.Store, clock *testClock) *service.AccountGuard {
	return &service.AccountGuard{Store: s, Now: clock.Now}
}
