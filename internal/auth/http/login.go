package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/slogx"
)

// LoginHandler handles POST /v1/auth/login.
type LoginHandler struct {
	Sessions *service.SessionManager
}

// ServeHTTP handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Verifies credentials and returns a token pair, or a 409 two-factor challenge when 2FA is enabled.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials and device info"
//	@Success		200		{object}	TokenResponse	"Access and refresh tokens"
//	@Failure		400		{object}	APIError		"Malformed request"
//	@Failure		401		{object}	APIError		"Invalid credentials, locked, or inactive account"
//	@Failure		409		{object}	map[string]any	"Second factor required"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Identity == "" || req.Password == "" || req.DeviceID == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Sessions.Login(ctx, service.LoginParams{
		Identity:   req.Identity,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Device:     deviceFromRequest(r, req.DeviceID, req.DeviceName),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			log.Warn("login rejected", "reason", "invalid_credentials")
			ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrAccountLocked):
			log.Warn("login rejected", "reason", "account_locked")
			ErrAccountLocked.WriteError(w)
		case errors.Is(err, service.ErrAccountInactive):
			log.Warn("login rejected", "reason", "account_inactive")
			ErrAccountInactive.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	if res.Challenge != nil {
		writeTwoFactorChallenge(w, res.Challenge)
		return
	}

	writeTokenPair(w, *res.Tokens)
}

func writeTokenPair(w http.ResponseWriter, pair domain.TokenPair) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}

// deviceFromRequest combines the client-supplied device identity with
// the request metadata we record for the audit trail.
func deviceFromRequest(r *http.Request, deviceID, deviceName string) domain.DeviceDescriptor {
	return domain.DeviceDescriptor{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		IP:         httpx.IPKeyExtractor(r),
		UserAgent:  r.UserAgent(),
	}
}
