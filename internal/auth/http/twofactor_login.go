package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/slogx"
)

// TwoFactorLoginHandler completes or redirects the 2FA login bridge.
type TwoFactorLoginHandler struct {
	Sessions *service.SessionManager
}

// HandleVerify handles POST /v1/auth/2fa/verify
//
//	@Summary		Complete a two-factor login
//	@Description	Verifies the second-factor code for an open login session and returns the token pair.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TwoFactorVerifyRequest	true	"Session token, method, and code"
//	@Success		200		{object}	TokenResponse			"Access and refresh tokens"
//	@Failure		400		{object}	APIError				"Malformed request or bad code"
//	@Failure		401		{object}	APIError				"Session invalid or expired"
//	@Failure		429		{object}	APIError				"Attempt cap reached"
//	@Router			/v1/auth/2fa/verify [post].
func (h *TwoFactorLoginHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req TwoFactorVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionToken == "" || req.Method == "" || req.Code == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	pair, _, err := h.Sessions.CompleteTwoFactor(ctx, req.SessionToken, req.Method, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			log.Warn("2fa verify rejected", "reason", "invalid_code", "method", req.Method)
			ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTooManyAttempts):
			log.Warn("2fa verify rejected", "reason", "too_many_attempts")
			ErrTooManyAttempts.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorSessionInvalid):
			log.Warn("2fa verify rejected", "reason", "session_invalid")
			ErrSessionInvalid.WriteError(w)
		default:
			log.Error("2fa verify failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenPair(w, pair)
}

// HandleMethod handles POST /v1/auth/2fa/method
//
//	@Summary		Switch two-factor method
//	@Description	Switches the verification method mid-login. The old session token is invalidated and a new one returned. Choosing email_otp sends the code.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TwoFactorMethodRequest	true	"Session token and new method"
//	@Success		200		{object}	TwoFactorMethodResponse	"Replacement session token"
//	@Failure		400		{object}	APIError				"Malformed request or unsupported method"
//	@Failure		401		{object}	APIError				"Session invalid or expired"
//	@Router			/v1/auth/2fa/method [post].
func (h *TwoFactorLoginHandler) HandleMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req TwoFactorMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionToken == "" || req.Method == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	newToken, err := h.Sessions.SwitchTwoFactorMethod(ctx, req.SessionToken, req.Method)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorSessionInvalid):
			ErrSessionInvalid.WriteError(w)
		default:
			log.Error("2fa method switch failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, TwoFactorMethodResponse{SessionToken: newToken})
}
