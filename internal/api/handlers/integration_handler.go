package handlers

import (
	"encoding/json"
	"net/http"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/keys"
)

// IntegrationHandler is the programmatic surface reached with an API key
// instead of a session.
type IntegrationHandler struct{}

func NewIntegrationHandler() *IntegrationHandler {
	return &IntegrationHandler{}
}

// Whoami echoes the claims the presented credential resolved to.
func (h *IntegrationHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.KeyClaims).(*keys.Claims)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(claims)
}
