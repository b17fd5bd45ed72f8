package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "compass/internal/api/context"
	"compass/internal/api/handlers"
	"compass/internal/api/middleware"
)

type Dependencies struct {
	AuthHandler        *handlers.AuthHandler
	APIKeyHandler      *handlers.APIKeyHandler
	AdminHandler       *handlers.AdminHandler
	AuditHandler       *handlers.AuditHandler
	IntegrationHandler *handlers.IntegrationHandler
	HealthHandler      *handlers.HealthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	APIKeyMiddleware   *middleware.APIKeyMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	// Authentication
	router.POST("/api/v1/auth/signup", wrap(deps.AuthHandler.Signup))
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))
	router.GET("/api/v1/auth/me", chain(deps.AuthHandler.Me, deps.AuthMiddleware.Handle))

	authMid := deps.AuthMiddleware
	keyMid := deps.APIKeyMiddleware

	// API key lifecycle (session-authed)
	router.POST("/api/v1/keys", chain(deps.APIKeyHandler.Create, authMid.Handle))
	router.GET("/api/v1/keys", chain(deps.APIKeyHandler.List, authMid.Handle))
	router.DELETE("/api/v1/keys/:key_id", chain(deps.APIKeyHandler.Revoke, authMid.Handle))

	// Programmatic surface (API-key-authed)
	router.GET("/api/v1/integration/whoami", chain(deps.IntegrationHandler.Whoami, keyMid.Handle))

	// Admin console. Handlers enforce RequireAdmin themselves so the
	// guard, not routing, is the source of truth.
	router.GET("/api/v1/admin/access", chain(deps.AdminHandler.CheckAccess, authMid.Handle))
	router.GET("/api/v1/admin/2fa", chain(deps.AdminHandler.TwoFactorStatus, authMid.Handle))
	router.GET("/api/v1/admin/settings/default-model", chain(deps.AdminHandler.GetDefaultModel, authMid.Handle))
	router.PUT("/api/v1/admin/settings/default-model", chain(deps.AdminHandler.SetDefaultModel, authMid.Handle))
	router.PUT("/api/v1/admin/users/:user_id/role", chain(deps.AdminHandler.SetUserRole, authMid.Handle))

	// Audit trail
	router.GET("/api/v1/admin/audit", chain(deps.AuditHandler.List, authMid.Handle))
	router.GET("/api/v1/admin/audit/stats", chain(deps.AuditHandler.Stats, authMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
