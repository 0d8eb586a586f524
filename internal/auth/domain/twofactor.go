package domain

// Available 2FA verification methods.
const (
	TwoFactorMethodTOTP     = "totp"
	TwoFactorMethodBackup   = "backup_code"
	TwoFactorMethodEmailOTP = "email_otp"
)

// TwoFactorChallenge is returned from login when the account has 2FA
// enabled. The client holds the session token and calls the verify
// endpoint with a code.
type TwoFactorChallenge struct {
	TwoFactorRequired bool     `json:"two_factor_required"` // always true
	SessionToken      string   `json:"session_token"`       // opaque bridge token
	Methods           []string `json:"methods"`             // e.g. ["totp", "backup_code"]
}

// TwoFactorEnrollment is returned from Enable so the user can add the
// secret to an authenticator app. The secret is shown exactly once.
type TwoFactorEnrollment struct {
	Secret     string `json:"secret"`      // base32 TOTP secret
	OTPAuthURI string `json:"otpauth_uri"` // otpauth:// URL for QR rendering
	Issuer     string `json:"issuer"`
	Account    string `json:"account"`
}
