package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/access"
	"compass/internal/platform/audit"
	"compass/internal/platform/auth"
	"compass/internal/platform/config"
	"compass/internal/platform/directory"
	"compass/internal/platform/models"
	"compass/internal/platform/repositories"
)

type stubIdentity struct {
	enabled bool
}

func (s *stubIdentity) TwoFactorStatus(ctx context.Context, externalID string) (*directory.TwoFactorStatus, error) {
	return &directory.TwoFactorStatus{Enabled: s.enabled}, nil
}

type adminFixture struct {
	handler  *AdminHandler
	settings *repositories.SettingsRepository
	users    *repositories.UserRepository
	audit    *audit.Logger
}

func setupAdminHandler(t *testing.T) *adminFixture {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		last_login_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		updated_at INTEGER NOT NULL
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

	users := repositories.NewUserRepository(db)
	now := time.Now().Unix()
	seed := []*models.User{
		{ID: "user_admin", ExternalID: "ext_admin", Email: "admin@example.com", PasswordHash: "x", Role: models.RoleAdmin, CreatedAt: now, UpdatedAt: now},
		{ID: "user_member", ExternalID: "ext_member", Email: "member@example.com", PasswordHash: "x", Role: models.RoleMember, CreatedAt: now, UpdatedAt: now},
	}
	for _, u := range seed {
		if err := users.Create(u); err != nil {
			t.Fatalf("Failed to seed user: %v", err)
		}
	}

	auditLog := audit.NewLogger(audit.NewRepository(db), 16)
	t.Cleanup(auditLog.Close)

	guard := access.NewGuard(directory.New(users), &stubIdentity{enabled: true}, config.AccessConfig{})
	settings := repositories.NewSettingsRepository(db)

	return &adminFixture{
		handler:  NewAdminHandler(guard, settings, users, auditLog),
		settings: settings,
		users:    users,
		audit:    auditLog,
	}
}

func adminReq(method, path, body, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{UserID: userID})
	return req.WithContext(ctx)
}

func withParams(req *http.Request, ps httprouter.Params) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), apiContext.Params, ps))
}

func TestAdminHandler_SetDefaultModel(t *testing.T) {
	f := setupAdminHandler(t)

	t.Run("admin sets the default", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.SetDefaultModel(rr, adminReq("PUT", "/api/v1/admin/models/default", `{"model":"pathfinder-v2"}`, "user_admin"))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		setting, err := f.settings.Get(models.SettingDefaultModel)
		if err != nil {
			t.Fatalf("Failed to read setting: %v", err)
		}
		if setting == nil || setting.Value != "pathfinder-v2" {
			t.Errorf("Expected persisted setting, got %+v", setting)
		}
		if setting.UpdatedBy != "user_admin" {
			t.Errorf("Expected updated_by user_admin, got %s", setting.UpdatedBy)
		}
	})

	t.Run("non-admin gets 403 and no write happens", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.SetDefaultModel(rr, adminReq("PUT", "/api/v1/admin/models/default", `{"model":"sneaky"}`, "user_member"))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("Expected 403, got %d", rr.Code)
		}

		setting, err := f.settings.Get(models.SettingDefaultModel)
		if err != nil {
			t.Fatalf("Failed to read setting: %v", err)
		}
		if setting == nil || setting.Value != "pathfinder-v2" {
			t.Errorf("Denied request must not change state, got %+v", setting)
		}
	})

	t.Run("empty model rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.SetDefaultModel(rr, adminReq("PUT", "/api/v1/admin/models/default", `{"model":"  "}`, "user_admin"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("change is audited", func(t *testing.T) {
		// Close drains the background writer so the entry is visible.
		f.audit.Close()

		page, err := f.audit.Query(audit.Filters{Action: audit.ActionModelSetDefault})
		if err != nil {
			t.Fatalf("Failed to query audit log: %v", err)
		}
		if len(page.Entries) != 1 {
			t.Fatalf("Expected exactly one audit entry, got %d", len(page.Entries))
		}
		if page.Entries[0].PerformedBy != "user_admin" {
			t.Errorf("Unexpected actor %s", page.Entries[0].PerformedBy)
		}
	})
}

func TestAdminHandler_SetUserRole(t *testing.T) {
	f := setupAdminHandler(t)
	target := httprouter.Params{{Key: "user_id", Value: "user_member"}}

	t.Run("admin promotes a member", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withParams(adminReq("PUT", "/api/v1/admin/users/user_member/role", `{"role":"admin"}`, "user_admin"), target)
		f.handler.SetUserRole(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		user, err := f.users.GetByID("user_member")
		if err != nil {
			t.Fatalf("Failed to reload user: %v", err)
		}
		if user.Role != models.RoleAdmin {
			t.Errorf("Expected role admin, got %s", user.Role)
		}

		f.audit.Close()
		page, err := f.audit.Query(audit.Filters{Action: audit.ActionUserRoleChanged})
		if err != nil {
			t.Fatalf("Failed to query audit log: %v", err)
		}
		if page.Total != 1 {
			t.Fatalf("Expected one audit entry, got %d", page.Total)
		}
		entry := page.Entries[0]
		if entry.TargetUserID != "user_member" || entry.Severity != audit.SeverityCritical {
			t.Errorf("Unexpected audit entry %+v", entry)
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withParams(adminReq("PUT", "/api/v1/admin/users/user_member/role", `{"role":"owner"}`, "user_admin"), target)
		f.handler.SetUserRole(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ghost := httprouter.Params{{Key: "user_id", Value: "user_ghost"}}
		req := withParams(adminReq("PUT", "/api/v1/admin/users/user_ghost/role", `{"role":"member"}`, "user_admin"), ghost)
		f.handler.SetUserRole(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})
}

func TestAdminHandler_CheckAccess(t *testing.T) {
	f := setupAdminHandler(t)

	probe := func(userID string) bool {
		rr := httptest.NewRecorder()
		f.handler.CheckAccess(rr, adminReq("GET", "/api/v1/admin/access", "", userID))
		if rr.Code != http.StatusOK {
			t.Fatalf("Probe must always return 200, got %d", rr.Code)
		}
		var resp struct {
			IsAdmin bool `json:"is_admin"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return resp.IsAdmin
	}

	if !probe("user_admin") {
		t.Error("Expected is_admin true for admin")
	}
	if probe("user_member") {
		t.Error("Expected is_admin false for member")
	}
}

func TestAdminHandler_GetDefaultModel(t *testing.T) {
	f := setupAdminHandler(t)

	t.Run("not configured", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.GetDefaultModel(rr, adminReq("GET", "/api/v1/admin/models/default", "", "user_admin"))
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.SetDefaultModel(rr, adminReq("PUT", "/api/v1/admin/models/default", `{"model":"pathfinder-v2"}`, "user_admin"))
		if rr.Code != http.StatusOK {
			t.Fatalf("Set failed: %d", rr.Code)
		}

		rr = httptest.NewRecorder()
		f.handler.GetDefaultModel(rr, adminReq("GET", "/api/v1/admin/models/default", "", "user_admin"))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var setting models.Setting
		if err := json.NewDecoder(rr.Body).Decode(&setting); err != nil {
			t.Fatalf("Failed to decode setting: %v", err)
		}
		if setting.Value != "pathfinder-v2" {
			t.Errorf("Unexpected value %s", setting.Value)
		}
	})
}
