package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/jwtx"
)

// InitAuthKeys makes sure an active signing key exists, then loads the
// verification KeySet from the stored keys. Keys are persistent: they
// are generated once, encrypted at rest, and survive restarts, so
// issued tokens keep verifying after a redeploy.
func InitAuthKeys(ctx context.Context, cfg Config, manager *service.SigningKeyManager, logger *slog.Logger) (*jwtx.KeySet, error) {
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
		logger.Info("master key path configured", "path", cfg.MasterKeyPath)
	}

	active, err := manager.GetOrCreateActiveKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure active signing key: %w", err)
	}

	keys := jwtx.NewKeySet()
	if err := ReloadKeySet(ctx, manager, keys); err != nil {
		return nil, err
	}

	logger.Info("signing keys loaded",
		"active_kid", active.Kid,
		"algorithm", active.Algorithm,
		"issuer", cfg.Issuer,
	)

	return keys, nil
}

// ReloadKeySet replaces the KeySet contents from the stored keys. The
// admin key endpoints call this after every mutation so verification
// and the JWKS document track the database.
func ReloadKeySet(ctx context.Context, manager *service.SigningKeyManager, keys *jwtx.KeySet) error {
	jwks, err := manager.JWKS(ctx)
	if err != nil {
		return fmt.Errorf("build jwks: %w", err)
	}
	if err := keys.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("reload keyset: %w", err)
	}
	return nil
}
