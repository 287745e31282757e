package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type Store interface {
	StartRun(ctx context.Context, tenantID, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
	ListRuns(ctx context.Context, tenantID string, limit int) ([]Run, error)
	ListTenants(ctx context.Context) ([]string, error)
}

type PGStore struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) StartRun(ctx context.Context, tenantID, jobType string) (string, error) {
	var runID string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantID, jobType, StatusRunning).Scan(&runID)
	return runID, err
}

func (s *PGStore) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}

func (s *PGStore) ListRuns(ctx context.Context, tenantID string, limit int) ([]Run, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
    WHERE tenant_id = $1
    ORDER BY started_at DESC
    LIMIT $2
  `, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var details []byte
		if err := rows.Scan(&r.ID, &r.JobType, &r.Status, &details, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Details = details
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
