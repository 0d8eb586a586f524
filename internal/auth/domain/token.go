package domain

import "time"

// TokenPair is what a successful login or refresh returns: the short
// lived access JWT and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until access expiry
}

// DeviceDescriptor carries the request metadata recorded against a
// device session on login and refresh.
type DeviceDescriptor struct {
	DeviceID   string
	DeviceName string
	IP         string
	UserAgent  string
}
