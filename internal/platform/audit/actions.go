package audit

// Action is the closed set of security-relevant events the trail records.
type Action string

const (
	ActionKeyCreated      Action = "KEY_CREATED"
	ActionKeyRevoked      Action = "KEY_REVOKED"
	ActionKeyAuthFailed   Action = "KEY_AUTH_FAILED"
	ActionAdminLogin      Action = "ADMIN_LOGIN"
	ActionModelSetDefault Action = "MODEL_SET_DEFAULT"
	ActionUserRoleChanged Action = "USER_ROLE_CHANGED"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

// Entry is an immutable audit record. No update or delete path exists.
type Entry struct {
	ID           string                 `json:"id"`
	Action       Action                 `json:"action"`
	PerformedBy  string                 `json:"performed_by"`
	TargetUserID string                 `json:"target_user_id,omitempty"`
	Severity     Severity               `json:"severity"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    int64                  `json:"created_at"`

	// seq is the insertion-order tie-break for entries sharing a
	// created_at second. Assigned by the database, not exposed.
	seq int64
}

// Event is the caller-facing payload for Record.
type Event struct {
	Action       Action
	PerformedBy  string
	TargetUserID string
	Severity     Severity
	ResourceType string
	ResourceID   string
	Description  string
	Metadata     map[string]interface{}
}
