package http

import "time"

// Request and response bodies for the auth endpoints. Kept in one place
// so the wire shapes are easy to review.

type LoginRequest struct {
	Identity   string `json:"identity"` // username or email
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

type TwoFactorVerifyRequest struct {
	SessionToken string `json:"session_token"`
	Method       string `json:"method"` // totp, backup_code, email_otp
	Code         string `json:"code"`
}

type TwoFactorMethodRequest struct {
	SessionToken string `json:"session_token"`
	Method       string `json:"method"`
}

type TwoFactorMethodResponse struct {
	SessionToken string `json:"session_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id,omitempty"`
}

type LogoutRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

type LogoutAllRequest struct {
	KeepCurrent bool `json:"keep_current,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type EnableTwoFactorRequest struct {
	Password string `json:"password"`
}

type EnrollmentResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURI string `json:"otpauth_uri"`
	Issuer     string `json:"issuer"`
	Account    string `json:"account"`
}

type ConfirmTwoFactorRequest struct {
	Code string `json:"code"`
}

type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password"`
}

type RecoveryDisableRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type GenerateKeyRequest struct {
	Algorithm   string     `json:"algorithm,omitempty"` // RS256 default
	KeySize     int        `json:"key_size,omitempty"`  // 2048 default
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Activate    bool       `json:"activate"`
}

type RotateKeyRequest struct {
	Algorithm    string     `json:"algorithm,omitempty"`
	KeySize      int        `json:"key_size,omitempty"`
	Description  string     `json:"description,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokeOld    bool       `json:"revoke_old"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

type RevokeKeyRequest struct {
	Reason string `json:"reason"`
}

type SigningKeyResponse struct {
	Kid           string     `json:"kid"`
	Algorithm     string     `json:"algorithm"`
	KeySize       int        `json:"key_size"`
	IsActive      bool       `json:"is_active"`
	IsRevoked     bool       `json:"is_revoked"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	Description   string     `json:"description,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type DeviceResponse struct {
	DeviceID     string    `json:"device_id"`
	DeviceName   string    `json:"device_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	RememberMe   bool      `json:"remember_me"`
	LastSeenIP   string    `json:"last_seen_ip,omitempty"`
	LastLocation string    `json:"last_location,omitempty"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Signer   string `json:"signer,omitempty"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
