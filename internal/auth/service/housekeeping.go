package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/assetworks/assetauth/internal/auth/store"
)

// DefaultHousekeepingInterval is how often expired rows get swept.
const DefaultHousekeepingInterval = time.Hour

// Housekeeper periodically clears rows that only exist to expire:
// stale device sessions, unconfirmed 2FA secrets, and revoked signing
// keys past their expiry.
type Housekeeper struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	Now func() time.Time
}

func (h *Housekeeper) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// Run sweeps on a ticker until the context is cancelled. Call it in its
// own goroutine.
func (h *Housekeeper) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Each cleanup is independent; one failing does
// not stop the others.
func (h *Housekeeper) Sweep(ctx context.Context) {
	now := h.now()

	if err := h.Store.Devices().DeleteExpiredDevices(ctx, now); err != nil {
		h.Logger.Error("housekeeping: expired devices", "error", err)
	}
	if err := h.Store.Users().DeleteExpiredPendingTwoFactor(ctx, now); err != nil {
		h.Logger.Error("housekeeping: expired pending 2fa", "error", err)
	}
	if err := h.Store.SigningKeys().DeleteExpiredRevokedSigningKeys(ctx, now); err != nil {
		h.Logger.Error("housekeeping: expired revoked keys", "error", err)
	}
}
