package app

import (
	"context"
	"fmt"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/idx"
)

// bootstrapAdmin creates the initial admin account when the user table
// is empty and an admin password is configured. Without a configured
// password a fresh deployment starts with no accounts at all.
func bootstrapAdmin(ctx context.Context, cfg Config, st store.Store) (bool, error) {
	if cfg.AdminPassword == "" {
		return false, nil
	}

	empty, err := st.Users().IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("check user table: %w", err)
	}
	if !empty {
		return false, nil
	}

	hash, err := cryptox.HashPassword(cfg.AdminPassword)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := domain.User{
		ID:             idx.New().String(),
		Username:       cfg.AdminUsername,
		Email:          cfg.AdminEmail,
		DisplayName:    "Administrator",
		PasswordHash:   hash,
		IsActive:       true,
		TwoFactorState: domain.TwoFactorDisabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := st.Users().CreateUser(ctx, admin); err != nil {
		return false, fmt.Errorf("create admin user: %w", err)
	}
	return true, nil
}
