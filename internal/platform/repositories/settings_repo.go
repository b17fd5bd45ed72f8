package repositories

import (
	"database/sql"

	"compass/internal/platform/models"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(key string) (*models.Setting, error) {
	s := &models.Setting{}
	err := r.db.QueryRow(`
		SELECT key, value, updated_by, updated_at FROM settings WHERE key = ?
	`, key).Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SettingsRepository) Set(setting *models.Setting) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at
	`, setting.Key, setting.Value, setting.UpdatedBy, setting.UpdatedAt)
	return err
}
