package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/access"
	"compass/internal/pkg/errors"
	"compass/internal/platform/audit"
	"compass/internal/platform/models"
	"compass/internal/platform/repositories"
)

// AdminHandler hosts the privileged operations. Every write goes through
// guard.RequireAdmin before touching state; CheckIsAdmin backs only the
// read-side UI probe.
type AdminHandler struct {
	guard    *access.Guard
	settings *repositories.SettingsRepository
	users    *repositories.UserRepository
	audit    *audit.Logger
}

func NewAdminHandler(guard *access.Guard, settings *repositories.SettingsRepository, users *repositories.UserRepository, auditLog *audit.Logger) *AdminHandler {
	return &AdminHandler{guard: guard, settings: settings, users: users, audit: auditLog}
}

// CheckAccess is the soft probe for UI gating: 200 with admin flag,
// never an error for non-admins.
func (h *AdminHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	principal := h.guard.CheckIsAdmin(r.Context())

	response := struct {
		IsAdmin bool `json:"is_admin"`
	}{IsAdmin: principal != nil}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// TwoFactorStatus backs the admin-console warning banner. The status is
// advisory; it does not gate access unless require_two_factor is set.
func (h *AdminHandler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := h.guard.RequireAdmin(r.Context())
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	status, err := h.guard.TwoFactorStatus(r.Context(), principal.ExternalID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Identity provider unavailable", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *AdminHandler) GetDefaultModel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.RequireAdmin(r.Context()); err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	setting, err := h.settings.Get(models.SettingDefaultModel)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if setting == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Default model not configured", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(setting)
}

type SetDefaultModelRequest struct {
	Model string `json:"model"`
}

func (h *AdminHandler) SetDefaultModel(w http.ResponseWriter, r *http.Request) {
	principal, err := h.guard.RequireAdmin(r.Context())
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	var req SetDefaultModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Model must not be empty", map[string]string{"model": "must not be empty"})
		return
	}

	setting := &models.Setting{
		Key:       models.SettingDefaultModel,
		Value:     req.Model,
		UpdatedBy: principal.ID,
		UpdatedAt: time.Now().Unix(),
	}
	if err := h.settings.Set(setting); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	h.audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionModelSetDefault,
		PerformedBy:  principal.ID,
		Severity:     audit.SeverityInfo,
		ResourceType: "setting",
		ResourceID:   models.SettingDefaultModel,
		Description:  "Default assessment model changed to " + req.Model,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(setting)
}

type SetUserRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	principal, err := h.guard.RequireAdmin(r.Context())
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	userID := params.ByName("user_id")

	var req SetUserRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleMember {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown role", map[string]string{"role": "must be admin or member"})
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if user == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "User not found", nil)
		return
	}

	previous := user.Role
	if previous != req.Role {
		if err := h.users.UpdateRole(userID, req.Role); err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
			return
		}
		user.Role = req.Role

		h.audit.Record(r.Context(), audit.Event{
			Action:       audit.ActionUserRoleChanged,
			PerformedBy:  principal.ID,
			TargetUserID: userID,
			Severity:     audit.SeverityCritical,
			ResourceType: "user",
			ResourceID:   userID,
			Description:  "Role changed from " + previous + " to " + req.Role,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
