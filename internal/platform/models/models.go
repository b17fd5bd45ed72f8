package models

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	ID           string `json:"id"`
	ExternalID   string `json:"external_id"` // identity provider subject
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Setting is a single admin-managed configuration row, e.g. the default
// assessment model.
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedBy string `json:"updated_by"`
	UpdatedAt int64  `json:"updated_at"`
}

const SettingDefaultModel = "default_model"
