package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canlog/internal/domain"
)

// ErrNotFound is returned when a catalog record does not exist.
var ErrNotFound = errors.New("not found")

// ConversionStore implements persistence for conversion jobs and run logs.
type ConversionStore struct {
	db *DB
}

// NewConversionStore creates a new ConversionStore.
func NewConversionStore(db *DB) *ConversionStore {
	return &ConversionStore{db: db}
}

// ── Job CRUD ───────────────────────────────────────────────

const jobColumns = `id, name, log_path, format, channel_prefix, columns_json, placeholder,
	reorder_window, target_id, table_name, sync_mode, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.ConversionJob, error) {
	job := &domain.ConversionJob{}
	var columns string
	var lastRun sql.NullTime
	err := r.Scan(
		&job.ID, &job.Name, &job.LogPath, &job.Format, &job.ChannelPrefix, &columns, &job.Placeholder,
		&job.ReorderWindow, &job.TargetID, &job.Table, &job.SyncMode, &job.TriggerType, &job.TriggerConfig,
		&job.Enabled, &lastRun, &job.LastStatus, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if err := json.Unmarshal([]byte(columns), &job.Columns); err != nil {
		return nil, fmt.Errorf("job %s: parse columns: %w", job.ID, err)
	}
	return job, nil
}

func (s *ConversionStore) CreateJob(job *domain.ConversionJob) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	columns, err := json.Marshal(nonNil(job.Columns))
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO conversion_jobs (id, name, log_path, format, channel_prefix, columns_json, placeholder,
		 reorder_window, target_id, table_name, sync_mode, trigger_type, trigger_config, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.LogPath, job.Format, job.ChannelPrefix, string(columns), job.Placeholder,
		job.ReorderWindow, job.TargetID, job.Table, job.SyncMode, job.TriggerType, job.TriggerConfig,
		job.Enabled, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *ConversionStore) GetJob(id string) (*domain.ConversionJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM conversion_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversion job %s: %w", id, ErrNotFound)
	}
	return job, err
}

func (s *ConversionStore) UpdateJob(job *domain.ConversionJob) error {
	job.UpdatedAt = time.Now()
	columns, err := json.Marshal(nonNil(job.Columns))
	if err != nil {
		return err
	}
	res, err := s.db.conn.Exec(
		`UPDATE conversion_jobs SET name=?, log_path=?, format=?, channel_prefix=?, columns_json=?,
		 placeholder=?, reorder_window=?, target_id=?, table_name=?, sync_mode=?, trigger_type=?,
		 trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.LogPath, job.Format, job.ChannelPrefix, string(columns),
		job.Placeholder, job.ReorderWindow, job.TargetID, job.Table, job.SyncMode, job.TriggerType,
		job.TriggerConfig, job.Enabled, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "conversion job", job.ID)
}

func (s *ConversionStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now()
	_, err := s.db.conn.Exec(
		`UPDATE conversion_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *ConversionStore) DeleteJob(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM conversion_runs WHERE job_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM conversion_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "conversion job", id)
}

func (s *ConversionStore) ListJobs() ([]domain.ConversionJob, error) {
	return s.listJobs(`SELECT ` + jobColumns + ` FROM conversion_jobs ORDER BY created_at ASC`)
}

// ListTriggeredJobs returns enabled jobs with a schedule or file_watch trigger.
func (s *ConversionStore) ListTriggeredJobs() ([]domain.ConversionJob, error) {
	return s.listJobs(`SELECT ` + jobColumns + ` FROM conversion_jobs
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

func (s *ConversionStore) listJobs(query string) ([]domain.ConversionJob, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ConversionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ── Run Logs ───────────────────────────────────────────────

func (s *ConversionStore) CreateRunLog(l *domain.RunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO conversion_runs (id, job_id, started_at, finished_at, status, messages_read, rows_written, columns, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.JobID, l.StartedAt, l.FinishedAt, l.Status, l.MessagesRead, l.RowsWritten, l.Columns, l.Error,
	)
	return err
}

// ListRunLogs returns the most recent run logs of a job, newest first.
func (s *ConversionStore) ListRunLogs(jobID string, limit int) ([]domain.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, messages_read, rows_written, columns, error
		 FROM conversion_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.MessagesRead, &l.RowsWritten, &l.Columns, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
