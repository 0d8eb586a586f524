package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/slogx"
)

// KeysHandler is the admin surface for the signing key lifecycle.
// OnKeysChanged runs after any mutation so the in-memory KeySet serving
// verification and JWKS picks up the change.
type KeysHandler struct {
	Keys          *service.SigningKeyManager
	OnKeysChanged func(ctx context.Context) error
}

func (h *KeysHandler) keysChanged(ctx context.Context) {
	if h.OnKeysChanged == nil {
		return
	}
	if err := h.OnKeysChanged(ctx); err != nil {
		slogx.FromContext(ctx).Error("keyset reload failed", "err", err)
	}
}

// HandleList handles GET /v1/keys
//
//	@Summary		List signing keys
//	@Description	Returns every signing key including revoked and expired ones. Private material is never included.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		SigningKeyResponse	"Keys, newest first"
//	@Failure		401	{object}	APIError			"Invalid or missing access token"
//	@Failure		403	{object}	APIError			"Missing admin:keys scope"
//	@Router			/v1/keys [get].
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	keys, err := h.Keys.ListKeys(ctx)
	if err != nil {
		log.Error("list keys failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	out := make([]SigningKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, signingKeyResponse(k))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGenerate handles POST /v1/keys
//
//	@Summary		Generate a signing key
//	@Description	Mints a new RSA keypair. With activate set it atomically becomes the only active key.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		GenerateKeyRequest	true	"Key parameters"
//	@Success		201		{object}	SigningKeyResponse	"The new key"
//	@Failure		400		{object}	APIError			"Unsupported algorithm or key size"
//	@Failure		401		{object}	APIError			"Invalid or missing access token"
//	@Router			/v1/keys [post].
func (h *KeysHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	key, err := h.Keys.GenerateKey(ctx, service.GenerateKeyParams{
		Algorithm:   req.Algorithm,
		KeySize:     req.KeySize,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		Activate:    req.Activate,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedAlgorithm) || errors.Is(err, service.ErrUnsupportedKeySize) {
			ErrInvalidRequest.WriteError(w)
			return
		}
		log.Error("generate key failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusCreated, signingKeyResponse(key))
}

// HandleRotate handles POST /v1/keys/rotate
//
//	@Summary		Rotate the active key
//	@Description	Mints and activates a replacement key in one transaction. The outgoing key stays verifiable unless revoke_old is set.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RotateKeyRequest	true	"Rotation parameters"
//	@Success		201		{object}	SigningKeyResponse	"The new active key"
//	@Failure		400		{object}	APIError			"Unsupported algorithm or key size"
//	@Failure		401		{object}	APIError			"Invalid or missing access token"
//	@Router			/v1/keys/rotate [post].
func (h *KeysHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrInvalidRequest.WriteError(w)
		return
	}

	key, err := h.Keys.RotateKey(ctx, service.RotateKeyParams{
		Algorithm:    req.Algorithm,
		KeySize:      req.KeySize,
		Description:  req.Description,
		ExpiresAt:    req.ExpiresAt,
		RevokeOld:    req.RevokeOld,
		RevokeReason: req.RevokeReason,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedAlgorithm) || errors.Is(err, service.ErrUnsupportedKeySize) {
			ErrInvalidRequest.WriteError(w)
			return
		}
		log.Error("rotate key failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusCreated, signingKeyResponse(key))
}

// HandleActivate handles POST /v1/keys/{kid}/activate
//
//	@Summary		Activate a key
//	@Description	Makes the named key the single active signing key.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Produce		json
//	@Param			kid	path		string				true	"Key identifier"
//	@Success		200	{object}	map[string]string	"Confirmation"
//	@Failure		404	{object}	APIError			"Unknown kid"
//	@Failure		409	{object}	APIError			"Key revoked, expired, or already active"
//	@Router			/v1/keys/{kid}/activate [post].
func (h *KeysHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kid := r.PathValue("kid")

	if err := h.Keys.ActivateKey(ctx, kid); err != nil {
		h.writeKeyError(ctx, w, err, "activate")
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "key activated"})
}

// HandleDeactivate handles POST /v1/keys/{kid}/deactivate
//
//	@Summary		Deactivate a key
//	@Description	Parks the key. It stops signing but stays in the JWKS for verification.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Produce		json
//	@Param			kid	path		string				true	"Key identifier"
//	@Success		200	{object}	map[string]string	"Confirmation"
//	@Failure		404	{object}	APIError			"Unknown kid"
//	@Failure		409	{object}	APIError			"Key already inactive"
//	@Router			/v1/keys/{kid}/deactivate [post].
func (h *KeysHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kid := r.PathValue("kid")

	if err := h.Keys.DeactivateKey(ctx, kid); err != nil {
		h.writeKeyError(ctx, w, err, "deactivate")
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "key deactivated"})
}

// HandleRevoke handles POST /v1/keys/{kid}/revoke
//
//	@Summary		Revoke a key
//	@Description	Permanently bars the key from signing and verification. It drops out of the JWKS immediately. Irreversible.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			kid		path		string				true	"Key identifier"
//	@Param			request	body		RevokeKeyRequest	true	"Revocation reason"
//	@Success		200		{object}	map[string]string	"Confirmation"
//	@Failure		404		{object}	APIError			"Unknown kid"
//	@Failure		409		{object}	APIError			"Key already revoked"
//	@Router			/v1/keys/{kid}/revoke [post].
func (h *KeysHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kid := r.PathValue("kid")

	var req RevokeKeyRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Keys.RevokeKey(ctx, kid, req.Reason); err != nil {
		h.writeKeyError(ctx, w, err, "revoke")
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "key revoked"})
}

// HandleDelete handles DELETE /v1/keys/{kid}
//
//	@Summary		Delete a key
//	@Description	Removes a key row. Only revoked keys can be deleted.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Produce		json
//	@Param			kid	path		string				true	"Key identifier"
//	@Success		200	{object}	map[string]string	"Confirmation"
//	@Failure		404	{object}	APIError			"Unknown kid"
//	@Failure		409	{object}	APIError			"Key not revoked yet"
//	@Router			/v1/keys/{kid} [delete].
func (h *KeysHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kid := r.PathValue("kid")

	if err := h.Keys.DeleteKey(ctx, kid); err != nil {
		h.writeKeyError(ctx, w, err, "delete")
		return
	}

	h.keysChanged(ctx)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "key deleted"})
}

func (h *KeysHandler) writeKeyError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrKeyAlreadyActive):
		conflictError("key is already active").WriteError(w)
	case errors.Is(err, service.ErrKeyAlreadyInactive):
		conflictError("key is already inactive").WriteError(w)
	case errors.Is(err, service.ErrKeyAlreadyRevoked):
		conflictError("key is revoked").WriteError(w)
	case errors.Is(err, service.ErrKeyExpired):
		conflictError("key has expired").WriteError(w)
	case errors.Is(err, service.ErrKeyMustBeRevokedFirst):
		conflictError("key must be revoked before deletion").WriteError(w)
	default:
		slogx.FromContext(ctx).Error("key operation failed", "op", op, "err", err)
		ErrServerError.WriteError(w)
	}
}

func signingKeyResponse(k domain.SigningKey) SigningKeyResponse {
	return SigningKeyResponse{
		Kid:           k.Kid,
		Algorithm:     k.Algorithm,
		KeySize:       k.KeySize,
		IsActive:      k.IsActive,
		IsRevoked:     k.IsRevoked,
		RevokedReason: k.RevokedReason,
		Description:   k.Description,
		ExpiresAt:     k.ExpiresAt,
		CreatedAt:     k.CreatedAt,
	}
}
