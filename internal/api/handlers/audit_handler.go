package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"compass/internal/engine/access"
	"compass/internal/pkg/errors"
	"compass/internal/platform/audit"
)

type AuditHandler struct {
	guard *access.Guard
	audit *audit.Logger
}

func NewAuditHandler(guard *access.Guard, auditLog *audit.Logger) *AuditHandler {
	return &AuditHandler{guard: guard, audit: auditLog}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.RequireAdmin(r.Context()); err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	q := r.URL.Query()
	filters := audit.Filters{
		Action:       audit.Action(q.Get("action")),
		PerformedBy:  q.Get("performed_by"),
		TargetUserID: q.Get("target_user_id"),
		Severity:     audit.Severity(q.Get("severity")),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		From:         parseInt64(q.Get("from")),
		To:           parseInt64(q.Get("to")),
		Page:         int(parseInt64(q.Get("page"))),
		Limit:        int(parseInt64(q.Get("limit"))),
	}

	page, err := h.audit.Query(filters)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.RequireAdmin(r.Context()); err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	q := r.URL.Query()
	stats, err := h.audit.Stats(parseInt64(q.Get("from")), parseInt64(q.Get("to")))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
