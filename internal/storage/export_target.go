package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canlog/internal/domain"
)

// ExportTargetStore manages export target records in SQLite.
type ExportTargetStore struct {
	db *DB
}

// NewExportTargetStore creates a new ExportTargetStore.
func NewExportTargetStore(db *DB) *ExportTargetStore {
	return &ExportTargetStore{db: db}
}

func (s *ExportTargetStore) CreateTarget(t *domain.ExportTarget) error {
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.ExtraJSON == "" {
		t.ExtraJSON = "{}"
	}

	_, err := s.db.Conn().Exec(
		`INSERT INTO export_targets (id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Driver, t.Host, t.Port, t.Database, t.Username, t.SSLMode, t.ExtraJSON, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *ExportTargetStore) GetTarget(id string) (*domain.ExportTarget, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at
		 FROM export_targets WHERE id = ?`, id,
	)

	t := &domain.ExportTarget{}
	err := row.Scan(&t.ID, &t.Name, &t.Driver, &t.Host, &t.Port, &t.Database, &t.Username, &t.SSLMode, &t.ExtraJSON, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("export target %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *ExportTargetStore) ListTargets() ([]domain.ExportTarget, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at
		 FROM export_targets ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []domain.ExportTarget
	for rows.Next() {
		var t domain.ExportTarget
		if err := rows.Scan(&t.ID, &t.Name, &t.Driver, &t.Host, &t.Port, &t.Database, &t.Username, &t.SSLMode, &t.ExtraJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *ExportTargetStore) UpdateTarget(t *domain.ExportTarget) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.Conn().Exec(
		`UPDATE export_targets SET name=?, driver=?, host=?, port=?, database_name=?, username=?, ssl_mode=?, extra_json=?, updated_at=?
		 WHERE id=?`,
		t.Name, t.Driver, t.Host, t.Port, t.Database, t.Username, t.SSLMode, t.ExtraJSON, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "export target", t.ID)
}

func (s *ExportTargetStore) DeleteTarget(id string) error {
	res, err := s.db.Conn().Exec(`DELETE FROM export_targets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "export target", id)
}
