package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/keys"
	"compass/internal/pkg/errors"
	"compass/internal/platform/auth"
	"compass/internal/platform/models"
)

type APIKeyHandler struct {
	issuer *keys.Issuer
}

func NewAPIKeyHandler(issuer *keys.Issuer) *APIKeyHandler {
	return &APIKeyHandler{issuer: issuer}
}

type CreateKeyRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Permissions   []string          `json:"permissions"`
	ExpiresInDays *int              `json:"expires_in_days"`
	RateLimit     *models.RateLimit `json:"rate_limit"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	created, err := h.issuer.Create(r.Context(), claims.UserID, keys.CreateParams{
		Name:          req.Name,
		Description:   req.Description,
		Permissions:   req.Permissions,
		ExpiresInDays: req.ExpiresInDays,
		RateLimit:     req.RateLimit,
	})
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	// The plaintext secret appears in this response and nowhere else.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	list, err := h.issuer.List(claims.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

type RevokeKeyRequest struct {
	Reason string `json:"reason"`
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	keyID := params.ByName("key_id")

	var req RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	// Owners revoke their own keys; admins may revoke anyone's. Checked
	// before any state changes.
	existing, err := h.issuer.Get(keyID)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	if existing.UserID != claims.UserID && claims.Role != models.RoleAdmin {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
		return
	}

	key, err := h.issuer.Revoke(r.Context(), keyID, claims.UserID, req.Reason)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(key)
}
