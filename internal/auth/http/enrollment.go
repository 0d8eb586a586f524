package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/slogx"
)

// EnrollmentHandler drives the 2FA enrollment endpoints for an
// authenticated user, plus the unauthenticated backup-code recovery.
type EnrollmentHandler struct {
	TwoFA *service.TwoFactorService
}

// HandleEnable handles POST /v1/2fa/enable
//
//	@Summary		Start TOTP enrollment
//	@Description	Re-verifies the password and returns a fresh TOTP secret with its otpauth URI. Repeat calls replace the pending secret.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		EnableTwoFactorRequest	true	"Current password"
//	@Success		200		{object}	EnrollmentResponse		"Secret and otpauth URI"
//	@Failure		400		{object}	APIError				"Already enabled or malformed request"
//	@Failure		401		{object}	APIError				"Wrong password or invalid token"
//	@Router			/v1/2fa/enable [post].
func (h *EnrollmentHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req EnableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	enrollment, err := h.TwoFA.Enable(ctx, userID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorAlreadyEnabled):
			conflictError("two-factor authentication is already enabled").WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials):
			ErrInvalidGrant.WriteError(w)
		default:
			log.Error("2fa enable failed", "user_id", userID, "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:     enrollment.Secret,
		OTPAuthURI: enrollment.OTPAuthURI,
		Issuer:     enrollment.Issuer,
		Account:    enrollment.Account,
	})
}

// HandleConfirm handles POST /v1/2fa/confirm
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Validates the first TOTP code and enables 2FA. Returns the 16 backup codes, shown exactly once.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ConfirmTwoFactorRequest	true	"TOTP code"
//	@Success		200		{object}	BackupCodesResponse		"Backup codes (shown once)"
//	@Failure		400		{object}	APIError				"Invalid code or no pending enrollment"
//	@Failure		401		{object}	APIError				"Invalid or missing access token"
//	@Router			/v1/2fa/confirm [post].
func (h *EnrollmentHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req ConfirmTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.TwoFA.Confirm(ctx, userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			log.Warn("2fa confirm rejected", "user_id", userID)
			ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorNotPending):
			conflictError("no pending enrollment to confirm").WriteError(w)
		default:
			log.Error("2fa confirm failed", "user_id", userID, "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, BackupCodesResponse{Codes: codes})
}

// HandleDisable handles DELETE /v1/2fa
//
//	@Summary		Disable two-factor authentication
//	@Description	Turns 2FA off after re-verifying the password. Idempotent.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		DisableTwoFactorRequest	true	"Current password"
//	@Success		200		{object}	map[string]string		"Confirmation"
//	@Failure		401		{object}	APIError				"Wrong password or invalid token"
//	@Router			/v1/2fa [delete].
func (h *EnrollmentHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFA.Disable(ctx, userID, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			ErrInvalidGrant.WriteError(w)
			return
		}
		log.Error("2fa disable failed", "user_id", userID, "err", err)
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

// HandleRegenerate handles POST /v1/2fa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces all backup codes after a valid TOTP code. Unused old codes stop working.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ConfirmTwoFactorRequest	true	"TOTP code"
//	@Success		200		{object}	BackupCodesResponse		"New backup codes (shown once)"
//	@Failure		400		{object}	APIError				"Invalid code or 2FA not enabled"
//	@Failure		401		{object}	APIError				"Invalid or missing access token"
//	@Router			/v1/2fa/backup-codes [post].
func (h *EnrollmentHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := authedUser(ctx)
	if !ok {
		ErrInvalidToken.WriteError(w)
		return
	}

	var req ConfirmTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.TwoFA.RegenerateBackupCodes(ctx, userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			conflictError("two-factor authentication is not enabled").WriteError(w)
		default:
			log.Error("backup code regenerate failed", "user_id", userID, "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, BackupCodesResponse{Codes: codes})
}

// HandleRecoveryDisable handles POST /v1/2fa/disable-with-backup
//
//	@Summary		Recover a locked-out account
//	@Description	Unauthenticated recovery for a user who lost their authenticator. Requires the password and one unused backup code; disables 2FA entirely.
//	@Tags			TwoFactor
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RecoveryDisableRequest	true	"Identity, password, and backup code"
//	@Success		200		{object}	map[string]string		"Confirmation"
//	@Failure		400		{object}	APIError				"Invalid backup code"
//	@Failure		401		{object}	APIError				"Invalid credentials"
//	@Router			/v1/2fa/disable-with-backup [post].
func (h *EnrollmentHandler) HandleRecoveryDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RecoveryDisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Identity == "" || req.Password == "" || req.Code == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.TwoFA.DisableWithBackupCode(ctx, req.Identity, req.Password, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials),
			errors.Is(err, service.ErrAccountLocked),
			errors.Is(err, service.ErrAccountInactive):
			log.Warn("2fa recovery rejected", "reason", "credentials")
			ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			log.Warn("2fa recovery rejected", "reason", "invalid_code")
			ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			conflictError("two-factor authentication is not enabled").WriteError(w)
		default:
			log.Error("2fa recovery failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}
