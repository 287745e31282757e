package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/workflow"
)

const (
	bonusTable = "kpi_bonus_records"
	meritTable = "kpi_merit_records"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CountByStatus(ctx context.Context, tenantID, table, period string) (map[string]int, error) {
	query := fmt.Sprintf("SELECT status, COUNT(1) FROM %s WHERE tenant_id = $1", table)
	args := []any{tenantID}
	if period != "" {
		args = append(args, period)
		query += " AND period = $2"
	}
	query += " GROUP BY status"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PendingFor counts records waiting on employeeID: their own drafts and rejections, and
// records sitting at a review step they own.
func (s *Store) PendingFor(ctx context.Context, tenantID, table, employeeID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, fmt.Sprintf(`
    SELECT COUNT(1)
    FROM %s
    WHERE tenant_id = $1 AND (
      (employee_id = $2 AND status IN ($3, $4))
      OR (checker_id = $2 AND status = $5)
      OR (approver_id = $2 AND status = $6)
    )
  `, table), tenantID, employeeID, workflow.StatusDraft.String(), workflow.StatusRejected.String(),
		workflow.StatusPendingChecker.String(), workflow.StatusPendingApprover.String()).Scan(&n)
	return n, err
}

func (s *Store) MeritTotals(ctx context.Context, tenantID, period string) ([]float64, error) {
	query := "SELECT total_score FROM kpi_merit_records WHERE tenant_id = $1"
	args := []any{tenantID}
	if period != "" {
		args = append(args, period)
		query += " AND period = $2"
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		totals = append(totals, v)
	}
	return totals, rows.Err()
}

func (s *Store) ActiveCycles(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM appraisal_cycles WHERE tenant_id = $1 AND status = 'active'", tenantID).Scan(&n)
	return n, err
}
