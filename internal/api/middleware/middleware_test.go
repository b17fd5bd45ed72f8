package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/keys"
	"compass/internal/engine/ratelimit"
	"compass/internal/platform/audit"
	"compass/internal/platform/auth"
	"compass/internal/platform/config"
	"compass/internal/platform/models"
	"compass/internal/platform/repositories"
)

func setupKeyDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		key_prefix TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		permissions TEXT NOT NULL DEFAULT '[]',
		requests_per_minute INTEGER NOT NULL DEFAULT 60,
		requests_per_day INTEGER NOT NULL DEFAULT 10000,
		is_active INTEGER NOT NULL DEFAULT 1,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used_at INTEGER,
		last_used_ip TEXT,
		expires_at INTEGER,
		created_at INTEGER NOT NULL,
		revoked_at INTEGER,
		revoked_reason TEXT
	);
	CREATE TABLE audit_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		action TEXT NOT NULL,
		performed_by TEXT NOT NULL,
		target_user_id TEXT,
		severity TEXT NOT NULL DEFAULT 'INFO',
		resource_type TEXT,
		resource_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func TestAPIKeyMiddleware(t *testing.T) {
	db := setupKeyDB(t)
	repo := repositories.NewAPIKeyRepository(db)
	auditLog := audit.NewLogger(audit.NewRepository(db), 16)
	t.Cleanup(auditLog.Close)

	issuer := keys.NewIssuer(repo, auditLog, config.APIKeysConfig{})
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	validator := keys.NewValidator(repo, limiter)
	mid := NewAPIKeyMiddleware(validator, auditLog)

	created, err := issuer.Create(context.Background(), "user_1", keys.CreateParams{
		Name:      "integration",
		RateLimit: &models.RateLimit{RequestsPerMinute: 2, RequestsPerDay: 100},
	})
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(apiContext.KeyClaims).(*keys.Claims)
		if claims.UserID != "user_1" {
			t.Errorf("Expected user_1, got %s", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", created.PlainSecret)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "ck_live_definitelywrong")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		// One slot left after the valid-key subtest; the second
		// request here overflows the per-minute budget of 2.
		var last *httptest.ResponseRecorder
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("X-API-Key", created.PlainSecret)
			last = httptest.NewRecorder()
			handler.ServeHTTP(last, req)
		}
		if last.Code != http.StatusTooManyRequests {
			t.Fatalf("Expected 429, got %d", last.Code)
		}
		if last.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After header on denial")
		}
		var resp map[string]interface{}
		if err := json.Unmarshal(last.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if resp["code"] != "RATE_LIMIT_EXCEEDED" {
			t.Errorf("Unexpected error code %v", resp["code"])
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	tokenSvc := auth.NewTokenService(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Minute,
	})
	mid := NewAuthMiddleware(tokenSvc)

	handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if claims.UserID != "user_1" {
			t.Errorf("Expected user_1, got %s", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := tokenSvc.GenerateAccessToken("user_1", models.RoleMember, "a@b.com")
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})
}
