package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/pkg/cryptox"
)

const (
	// maxFailedLogins is the consecutive failure threshold before lockout.
	maxFailedLogins = 5

	// lockoutDuration is how long an account stays locked once tripped.
	lockoutDuration = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAccountInactive    = errors.New("account_inactive")
)

// AccountGuard verifies passwords and enforces the failed-login lockout
// policy. All token issuing happens elsewhere; this only answers "is
// this the right password for a usable account".
type AccountGuard struct {
	Store store.Store

	// Now is the clock. Tests swap it for a fixed time.
	Now func() time.Time
}

func (g *AccountGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

// VerifyCredentials checks identity (username or email) and password.
// The failure counter is persisted even on the error path so lockout
// survives across requests.
func (g *AccountGuard) VerifyCredentials(ctx context.Context, identity, password string) (domain.User, error) {
	user, err := g.lookup(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash to keep timing comparable with the found path.
			_, _ = cryptox.HashPassword(password)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	now := g.now()

	if user.IsLocked(now) {
		// A locked account rejects even the correct password.
		return domain.User{}, ErrAccountLocked
	}

	if !user.IsActive {
		return domain.User{}, ErrAccountInactive
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, fmt.Errorf("verify password: %w", err)
		}
		return domain.User{}, g.recordFailure(ctx, user, now)
	}

	// Success clears the counter and any stale lock.
	if user.FailedLogins > 0 || user.LockedUntil != nil {
		if err := g.Store.Users().UpdateLoginAttempts(ctx, user.ID, 0, nil); err != nil {
			return domain.User{}, fmt.Errorf("reset login attempts: %w", err)
		}
		user.FailedLogins = 0
		user.LockedUntil = nil
	}

	return user, nil
}

// recordFailure bumps the counter, arms the lockout at the threshold,
// and always returns a client-facing error.
func (g *AccountGuard) recordFailure(ctx context.Context, user domain.User, now time.Time) error {
	failures := user.FailedLogins + 1

	var lockedUntil *time.Time
	if failures >= maxFailedLogins {
		until := now.Add(lockoutDuration)
		lockedUntil = &until
	}

	if err := g.Store.Users().UpdateLoginAttempts(ctx, user.ID, failures, lockedUntil); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	if lockedUntil != nil {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// lookup resolves identity as a username first, then as an email.
func (g *AccountGuard) lookup(ctx context.Context, identity string) (domain.User, error) {
	identity = strings.TrimSpace(identity)

	if strings.Contains(identity, "@") {
		user, err := g.Store.Users().GetUserByEmail(ctx, identity)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
	}

	return g.Store.Users().GetUserByUsername(ctx, identity)
}
