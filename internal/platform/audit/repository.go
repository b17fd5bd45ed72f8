package audit

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// Repository is the append-only store for audit entries. It deliberately
// exposes no update or delete operations.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(entry *Entry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO audit_logs (id, action, performed_by, target_user_id, severity, resource_type, resource_id, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Action), entry.PerformedBy, entry.TargetUserID, string(entry.Severity),
		entry.ResourceType, entry.ResourceID, entry.Description, string(metaJSON), entry.CreatedAt)
	return err
}

// Filters narrows a query; zero values mean "no constraint".
type Filters struct {
	Action       Action
	PerformedBy  string
	TargetUserID string
	Severity     Severity
	ResourceType string
	ResourceID   string
	From         int64
	To           int64
	Page         int
	Limit        int
}

type Page struct {
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}

func (f *Filters) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.PerformedBy != "" {
		add("performed_by = ?", f.PerformedBy)
	}
	if f.TargetUserID != "" {
		add("target_user_id = ?", f.TargetUserID)
	}
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if f.ResourceType != "" {
		add("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = ?", f.ResourceID)
	}
	if f.From > 0 {
		add("created_at >= ?", f.From)
	}
	if f.To > 0 {
		add("created_at <= ?", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns entries most-recent first. Ties on created_at are broken
// by seq, so display order matches insertion order.
func (r *Repository) Query(filters Filters) (*Page, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}

	where, args := filters.whereClause()

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT seq, id, action, performed_by, target_user_id, severity, resource_type, resource_id, description, metadata, created_at
		FROM audit_logs` + where + ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		var action, severity, metaStr string
		var targetUserID, resourceType, resourceID sql.NullString

		if err := rows.Scan(&e.seq, &e.ID, &action, &e.PerformedBy, &targetUserID, &severity,
			&resourceType, &resourceID, &e.Description, &metaStr, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.Action = Action(action)
		e.Severity = Severity(severity)
		e.TargetUserID = targetUserID.String
		e.ResourceType = resourceType.String
		e.ResourceID = resourceID.String
		json.Unmarshal([]byte(metaStr), &e.Metadata)

		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Page{Entries: entries, Total: total, Page: filters.Page, Limit: filters.Limit}, nil
}

type Stats struct {
	ByAction   map[string]int `json:"by_action"`
	BySeverity map[string]int `json:"by_severity"`
	Total      int            `json:"total"`
}

func (r *Repository) Stats(from, to int64) (*Stats, error) {
	where := ""
	var args []interface{}
	if from > 0 && to > 0 {
		where = " WHERE created_at >= ? AND created_at <= ?"
		args = []interface{}{from, to}
	} else if from > 0 {
		where = " WHERE created_at >= ?"
		args = []interface{}{from}
	} else if to > 0 {
		where = " WHERE created_at <= ?"
		args = []interface{}{to}
	}

	stats := &Stats{
		ByAction:   make(map[string]int),
		BySeverity: make(map[string]int),
	}

	rows, err := r.db.Query(`SELECT action, COUNT(*) FROM audit_logs`+where+` GROUP BY action`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ByAction[action] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sevRows, err := r.db.Query(`SELECT severity, COUNT(*) FROM audit_logs`+where+` GROUP BY severity`, args...)
	if err != nil {
		return nil, err
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var count int
		if err := sevRows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		stats.BySeverity[severity] = count
	}
	return stats, sevRows.Err()
}
