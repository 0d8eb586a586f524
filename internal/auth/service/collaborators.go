package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EmailOTPSender delivers one-time codes for the email_otp verification
// method. Production wires a real mailer; dev runs the log sender.
type EmailOTPSender interface {
	// Send delivers a fresh code to the address.
	Send(ctx context.Context, email, code string) error

	// Verify checks a previously sent code for the user.
	Verify(ctx context.Context, userID, email, code string) (bool, error)
}

// GeoResolver turns a client IP into a human-readable location for the
// device audit trail. Best effort; empty string is acceptable.
type GeoResolver interface {
	Resolve(ip string) string
}

// DefaultEmailOTPTTL is how long a logged code stays verifiable.
const DefaultEmailOTPTTL = 10 * time.Minute

// LogEmailOTPSender writes codes to the log instead of sending mail.
// Dev use only, but it still sees concurrent requests.
type LogEmailOTPSender struct {
	Logger *slog.Logger

	Now func() time.Time

	mu    sync.Mutex
	codes map[string]emailOTP
}

type emailOTP struct {
	code      string
	expiresAt time.Time
}

func NewLogEmailOTPSender(logger *slog.Logger) *LogEmailOTPSender {
	return &LogEmailOTPSender{
		Logger: logger,
		codes:  make(map[string]emailOTP),
	}
}

func (s *LogEmailOTPSender) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *LogEmailOTPSender) Send(ctx context.Context, email, code string) error {
	s.mu.Lock()
	s.codes[email] = emailOTP{code: code, expiresAt: s.now().Add(DefaultEmailOTPTTL)}
	s.mu.Unlock()

	s.Logger.Info("email otp issued", "email", email, "code", code)
	return nil
}

func (s *LogEmailOTPSender) Verify(ctx context.Context, userID, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.codes[email]
	if !ok || want.code != code || s.now().After(want.expiresAt) {
		return false, nil
	}
	delete(s.codes, email)
	return true, nil
}

// StaticGeoResolver returns a fixed location for every IP. Dev use only.
type StaticGeoResolver struct {
	Location string
}

func (r StaticGeoResolver) Resolve(ip string) string { return r.Location }
