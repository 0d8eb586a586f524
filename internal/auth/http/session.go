package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/assetworks/assetauth/pkg/slogx"
)

// SessionHandler covers refresh, logout, device listing, and password
// changes for an authenticated user.
type SessionHandler struct {
	Sessions *service.SessionManager
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Refresh tokens
//	@Description	Rotates the refresh token and returns a fresh pair. The presented token is invalidated.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenResponse	"New access and refresh tokens"
//	@Failure		400		{object}	APIError		"Malformed request"
//	@Failure		401		{object}	APIError		"Unknown, expired, or revoked refresh token"
//	@Router			/v1/auth/refresh [post].
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Sessions.Refresh(ctx, req.RefreshToken, deviceFromRequest(r, req.DeviceID, ""))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			log.Warn("refresh rejected")
			ErrInvalidGrant.WriteError(w)
			return
		}
		log.Error("refresh failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	writeTokenPair(w, pair)
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Ends the session for one device. Defaults to the device in the access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LogoutRequest		false	"Optional device override"
//	@Success		200		{object}	map[string]string	"Confirmation"
//	@Failure		401		{object}	APIError			"Invalid or missing access token"
//	@Router			/v1/auth/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, claims, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = claims.DeviceID
	}
	if deviceID == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Sessions.Logout(ctx, userID, deviceID); err != nil {
		log.Error("logout failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleLogoutAll handles POST /v1/auth/logout-all
//
//	@Summary		Log out everywhere
//	@Description	Ends every device session the user has. Set keep_current to spare the device in the access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LogoutAllRequest	false	"Optional keep_current flag"
//	@Success		200		{object}	map[string]string	"Confirmation"
//	@Failure		401		{object}	APIError			"Invalid or missing access token"
//	@Router			/v1/auth/logout-all [post].
func (h *SessionHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, claims, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req LogoutAllRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	exceptDeviceID := ""
	if req.KeepCurrent {
		exceptDeviceID = claims.DeviceID
	}

	if err := h.Sessions.LogoutAll(ctx, userID, exceptDeviceID); err != nil {
		log.Error("logout-all failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out everywhere"})
}

// HandleListDevices handles GET /v1/auth/devices
//
//	@Summary		List device sessions
//	@Description	Returns the user's device sessions with last-seen audit metadata.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		DeviceResponse	"Device sessions, newest first"
//	@Failure		401	{object}	APIError		"Invalid or missing access token"
//	@Router			/v1/auth/devices [get].
func (h *SessionHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	devices, err := h.Sessions.ListDevices(ctx, userID)
	if err != nil {
		log.Error("list devices failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceResponse{
			DeviceID:     d.DeviceID,
			DeviceName:   d.DeviceName,
			IsActive:     d.IsActive,
			RememberMe:   d.RememberMe,
			LastSeenIP:   d.LastSeenIP,
			LastLocation: d.LastLocation,
			LastSeenAt:   d.LastSeenAt,
			ExpiresAt:    d.ExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleChangePassword handles POST /v1/auth/password
//
//	@Summary		Change password
//	@Description	Re-verifies the current password, stores the new one, and signs out every other device.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	map[string]string		"Confirmation"
//	@Failure		400		{object}	APIError				"Malformed request"
//	@Failure		401		{object}	APIError				"Wrong current password or invalid token"
//	@Router			/v1/auth/password [post].
func (h *SessionHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, claims, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.Sessions.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword, claims.DeviceID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			ErrInvalidGrant.WriteError(w)
			return
		}
		log.Error("change password failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// authedUser pulls the identity the authn middleware stashed in context.
func authedUser(ctx context.Context) (string, jwtx.Claims, bool) {
	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		return "", jwtx.Claims{}, false
	}
	claims, _ := ctx.Value(httpx.CtxKeyClaims).(jwtx.Claims)
	return userID, claims, true
}
