package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/pkg/httpx"
)

// Error codes used in JSON error bodies. Login-adjacent ones follow the
// RFC 6749 naming so clients can share handling with OAuth2 services.
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeInvalidGrant      = "invalid_grant"
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeServerError       = "server_error"
	ErrorCodeAccountLocked     = "account_locked"
	ErrorCodeAccountInactive   = "account_inactive"
	ErrorCodeTwoFactorRequired = "two_factor_required"
	ErrorCodeInvalidCode       = "invalid_code"
	ErrorCodeTooManyAttempts   = "too_many_attempts"
	ErrorCodeSessionInvalid    = "session_invalid"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeConflict          = "conflict"
)

// APIError is the JSON error envelope every handler writes:
// {"error": code, "error_description": text}.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error to the response with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	ErrAccountLocked = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeAccountLocked,
		Description: "account temporarily locked after repeated failures",
	}

	ErrAccountInactive = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeAccountInactive,
		Description: "account is deactivated",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is invalid or expired",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "invalid verification code",
	}

	ErrTooManyAttempts = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed attempts, start the login over",
	}

	ErrSessionInvalid = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeSessionInvalid,
		Description: "the verification session is invalid or expired",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "resource not found",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// writeTwoFactorChallenge renders the 409 login interrupt that tells
// the client to finish the second factor.
func writeTwoFactorChallenge(w http.ResponseWriter, challenge *domain.TwoFactorChallenge) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusConflict, map[string]any{
		"error":             ErrorCodeTwoFactorRequired,
		"error_description": "a second factor is required to complete this login",
		"session_token":     challenge.SessionToken,
		"methods":           challenge.Methods,
	})
}

// conflictError builds a 409 for business-rule violations like revoking
// an already-revoked key.
func conflictError(description string) *APIError {
	return &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: description,
	}
}
