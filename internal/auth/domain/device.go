package domain

import "time"

// UserDevice is a per-device refresh session. The device_id is supplied
// by the client (an installation identifier); the service keys refresh
// token rotation off the stored fingerprint, never the raw token.
type UserDevice struct {
	ID           string // ULID
	UserID       string
	DeviceID     string // client-supplied installation identifier
	DeviceName   string // human label, e.g. "Pixel 9"
	RefreshHash  string // base64url SHA-256 fingerprint of the refresh token
	IsActive     bool
	RememberMe   bool
	ExpiresAt    time.Time // refresh token expiry
	LastSeenIP   string
	LastSeenUA   string
	LastLocation string // resolved from IP for audit display
	LastSeenAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the device's refresh token has expired.
func (d *UserDevice) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// CanRefresh reports whether this device may rotate its refresh token.
func (d *UserDevice) CanRefresh(now time.Time) bool {
	return d.IsActive && !d.IsExpired(now)
}
