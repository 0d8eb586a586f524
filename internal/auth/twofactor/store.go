// Package twofactor holds the ephemeral bridge sessions between a
// successful password check and the second-factor verification. Sessions
// live in a TTL store (memory or redis), never in the database.
package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

const (
	// DefaultSessionTTL bounds how long a user has to complete the
	// second factor after the password check.
	DefaultSessionTTL = 5 * time.Minute

	// MaxAttempts is the number of failed verification attempts allowed
	// before the session is invalidated.
	MaxAttempts = 5
)

var (
	ErrSessionNotFound = errors.New("twofactor: session not found")
	ErrSessionExpired  = errors.New("twofactor: session expired")
)

// Session is one pending 2FA challenge. The opaque token handed to the
// client is the lookup key and is never derivable from the contents.
type Session struct {
	Token      string                  `json:"token"`
	UserID     string                  `json:"user_id"`
	RememberMe bool                    `json:"remember_me"`
	Device     domain.DeviceDescriptor `json:"device"`
	Method     string                  `json:"method"` // currently selected verification method
	Attempts   int                     `json:"attempts"`
	CreatedAt  time.Time               `json:"created_at"`
	ExpiresAt  time.Time               `json:"expires_at"`
}

// SessionStore is the TTL-backed broker. Implementations must make
// Consume single-use: two concurrent consumers of the same token must
// not both succeed.
type SessionStore interface {
	// Put stores a session under its token until its ExpiresAt.
	Put(ctx context.Context, s Session) error

	// Get returns the session without consuming it.
	Get(ctx context.Context, token string) (Session, error)

	// Update overwrites an existing session (attempt counter, method
	// switch) keeping the original expiry.
	Update(ctx context.Context, s Session) error

	// Consume atomically fetches and deletes the session.
	Consume(ctx context.Context, token string) (Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, token string) error

	// Close releases backend resources.
	Close() error
}
