package appraisal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/scoring"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const cycleColumns = `id, name, start_date, end_date, status, evaluation_method,
    calculate_final_score_based_on_formula, final_score_formula, created_at`

func scanCycle(row pgx.Row) (Cycle, error) {
	var c Cycle
	err := row.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.Status, &c.EvaluationMethod, &c.UseFormula, &c.Formula, &c.CreatedAt)
	return c, err
}

func (s *Store) CreateCycle(ctx context.Context, tenantID string, c Cycle) (Cycle, error) {
	return scanCycle(s.DB.QueryRow(ctx, `
    INSERT INTO appraisal_cycles (tenant_id, name, start_date, end_date, status, evaluation_method,
      calculate_final_score_based_on_formula, final_score_formula)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING `+cycleColumns,
		tenantID, c.Name, c.StartDate, c.EndDate, c.Status, c.EvaluationMethod, c.UseFormula, c.Formula))
}

func (s *Store) GetCycle(ctx context.Context, tenantID, cycleID string) (Cycle, error) {
	c, err := scanCycle(s.DB.QueryRow(ctx, `
    SELECT `+cycleColumns+`
    FROM appraisal_cycles
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, cycleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrCycleNotFound
	}
	return c, err
}

func (s *Store) ListCycles(ctx context.Context, tenantID, status string) ([]Cycle, error) {
	query := `
    SELECT ` + cycleColumns + `
    FROM appraisal_cycles
    WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += " AND status = $2"
	}
	query += " ORDER BY start_date DESC, created_at DESC"
	return s.queryCycles(ctx, query, args...)
}

func (s *Store) ListExpiredCycles(ctx context.Context, tenantID string, asOf time.Time) ([]Cycle, error) {
	return s.queryCycles(ctx, `
    SELECT `+cycleColumns+`
    FROM appraisal_cycles
    WHERE tenant_id = $1 AND status = $2 AND end_date < $3
    ORDER BY end_date
  `, tenantID, CycleStatusActive, asOf)
}

func (s *Store) queryCycles(ctx context.Context, query string, args ...any) ([]Cycle, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCycleStatus only succeeds while the cycle is still in status from.
func (s *Store) UpdateCycleStatus(ctx context.Context, tenantID, cycleID, from, to string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE appraisal_cycles
    SET status = $1
    WHERE tenant_id = $2 AND id = $3 AND status = $4
  `, to, tenantID, cycleID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleTransition
	}
	return nil
}

const appraisalColumns = `id, cycle_id, employee_id, COALESCE(manager_id::text, ''), status, goal_score, self_score,
    feedback_score, final_score, final_score_method, computed_at, created_at`

func scanAppraisal(row pgx.Row) (Appraisal, error) {
	var a Appraisal
	err := row.Scan(&a.ID, &a.CycleID, &a.EmployeeID, &a.ManagerID, &a.Status, &a.GoalScore, &a.SelfScore,
		&a.FeedbackScore, &a.FinalScore, &a.FinalScoreMethod, &a.ComputedAt, &a.CreatedAt)
	return a, err
}

func (s *Store) CreateAppraisal(ctx context.Context, tenantID string, a Appraisal) (Appraisal, error) {
	var managerID any
	if a.ManagerID != "" {
		managerID = a.ManagerID
	}
	created, err := scanAppraisal(s.DB.QueryRow(ctx, `
    INSERT INTO appraisals (tenant_id, cycle_id, employee_id, manager_id, status)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING `+appraisalColumns,
		tenantID, a.CycleID, a.EmployeeID, managerID, a.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Appraisal{}, ErrDuplicateAppraisal
		}
		return Appraisal{}, err
	}
	return created, nil
}

func (s *Store) GetAppraisal(ctx context.Context, tenantID, appraisalID string) (Appraisal, error) {
	a, err := scanAppraisal(s.DB.QueryRow(ctx, `
    SELECT `+appraisalColumns+`
    FROM appraisals
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, appraisalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appraisal{}, ErrNotFound
	}
	return a, err
}

func (s *Store) ListAppraisals(ctx context.Context, tenantID string, filter Filter) ([]Appraisal, error) {
	query := `
    SELECT ` + appraisalColumns + `
    FROM appraisals
    WHERE tenant_id = $1`
	args := []any{tenantID}
	add := func(clause, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	add("cycle_id", filter.CycleID)
	add("employee_id", filter.EmployeeID)
	add("manager_id", filter.ManagerID)
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appraisal
	for rows.Next() {
		a, err := scanAppraisal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveScores(ctx context.Context, tenantID string, a Appraisal) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE appraisals
    SET status = $1, goal_score = $2, self_score = $3, feedback_score = $4, final_score = $5,
        final_score_method = $6, computed_at = $7
    WHERE tenant_id = $8 AND id = $9
  `, a.Status, a.GoalScore, a.SelfScore, a.FeedbackScore, a.FinalScore, a.FinalScoreMethod, a.ComputedAt, tenantID, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceKRAs swaps the full KRA list of an appraisal in one transaction.
func (s *Store) ReplaceKRAs(ctx context.Context, tenantID, appraisalID string, kras []scoring.KRA) ([]scoring.KRA, error) {
	tx, err := s.beginForAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM appraisal_kras WHERE appraisal_id = $1`, appraisalID); err != nil {
		return nil, err
	}
	out := make([]scoring.KRA, 0, len(kras))
	for i, kra := range kras {
		if err := tx.QueryRow(ctx, `
      INSERT INTO appraisal_kras (appraisal_id, name, weightage, achievement, score, position)
      VALUES ($1,$2,$3,$4,$5,$6)
      RETURNING id
    `, appraisalID, kra.Name, kra.Weightage, kra.Achievement, kra.Score, i).Scan(&kra.ID); err != nil {
			return nil, err
		}
		out = append(out, kra)
	}
	return out, tx.Commit(ctx)
}

func (s *Store) ListKRAs(ctx context.Context, tenantID, appraisalID string) ([]scoring.KRA, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT k.id, k.name, k.weightage, k.achievement, k.score
    FROM appraisal_kras k
    JOIN appraisals a ON a.id = k.appraisal_id
    WHERE a.tenant_id = $1 AND k.appraisal_id = $2
    ORDER BY k.position
  `, tenantID, appraisalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoring.KRA
	for rows.Next() {
		var k scoring.KRA
		if err := rows.Scan(&k.ID, &k.Name, &k.Weightage, &k.Achievement, &k.Score); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceSelfRatings(ctx context.Context, tenantID, appraisalID string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error) {
	tx, err := s.beginForAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM appraisal_self_ratings WHERE appraisal_id = $1`, appraisalID); err != nil {
		return nil, err
	}
	out := make([]scoring.SelfRating, 0, len(ratings))
	for i, r := range ratings {
		if err := tx.QueryRow(ctx, `
      INSERT INTO appraisal_self_ratings (appraisal_id, criterion, rating, max_rating, weightage, position)
      VALUES ($1,$2,$3,$4,$5,$6)
      RETURNING id
    `, appraisalID, r.Criterion, r.Rating, r.MaxRating, r.Weightage, i).Scan(&r.ID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, tx.Commit(ctx)
}

func (s *Store) ListSelfRatings(ctx context.Context, tenantID, appraisalID string) ([]scoring.SelfRating, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT r.id, r.criterion, r.rating, r.max_rating, r.weightage
    FROM appraisal_self_ratings r
    JOIN appraisals a ON a.id = r.appraisal_id
    WHERE a.tenant_id = $1 AND r.appraisal_id = $2
    ORDER BY r.position
  `, tenantID, appraisalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoring.SelfRating
	for rows.Next() {
		var r scoring.SelfRating
		if err := rows.Scan(&r.ID, &r.Criterion, &r.Rating, &r.MaxRating, &r.Weightage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const feedbackColumns = `f.id, f.appraisal_id, f.reviewer_id, f.reviewer_role, f.status, f.total_score, f.comments,
    f.submitted_at, f.created_at`

func scanFeedback(row pgx.Row) (Feedback, error) {
	var fb Feedback
	err := row.Scan(&fb.ID, &fb.AppraisalID, &fb.ReviewerID, &fb.ReviewerRole, &fb.Status, &fb.TotalScore, &fb.Comments, &fb.SubmittedAt, &fb.CreatedAt)
	return fb, err
}

func (s *Store) CreateFeedback(ctx context.Context, tenantID string, fb Feedback) (Feedback, error) {
	created, err := scanFeedback(s.DB.QueryRow(ctx, `
    INSERT INTO appraisal_feedback AS f (appraisal_id, reviewer_id, reviewer_role, status, total_score, comments)
    SELECT a.id, $3, $4, $5, $6, $7
    FROM appraisals a
    WHERE a.tenant_id = $1 AND a.id = $2
    RETURNING `+feedbackColumns,
		tenantID, fb.AppraisalID, fb.ReviewerID, fb.ReviewerRole, fb.Status, fb.TotalScore, fb.Comments))
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, ErrNotFound
	}
	return created, err
}

func (s *Store) GetFeedback(ctx context.Context, tenantID, appraisalID, feedbackID string) (Feedback, error) {
	fb, err := scanFeedback(s.DB.QueryRow(ctx, `
    SELECT `+feedbackColumns+`
    FROM appraisal_feedback f
    JOIN appraisals a ON a.id = f.appraisal_id
    WHERE a.tenant_id = $1 AND f.appraisal_id = $2 AND f.id = $3
  `, tenantID, appraisalID, feedbackID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, ErrFeedbackNotFound
	}
	return fb, err
}

func (s *Store) ListFeedback(ctx context.Context, tenantID, appraisalID string) ([]Feedback, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+feedbackColumns+`
    FROM appraisal_feedback f
    JOIN appraisals a ON a.id = f.appraisal_id
    WHERE a.tenant_id = $1 AND f.appraisal_id = $2
    ORDER BY f.created_at
  `, tenantID, appraisalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// SubmitFeedback finalizes a draft; a second submit of the same feedback changes nothing.
func (s *Store) SubmitFeedback(ctx context.Context, tenantID string, fb Feedback) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE appraisal_feedback f
    SET status = $1, total_score = $2, comments = $3, submitted_at = $4
    FROM appraisals a
    WHERE a.id = f.appraisal_id AND a.tenant_id = $5 AND f.id = $6 AND f.status <> $1
  `, scoring.FeedbackStatusSubmitted, fb.TotalScore, fb.Comments, fb.SubmittedAt, tenantID, fb.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackSubmitted
	}
	return nil
}

func (s *Store) beginForAppraisal(ctx context.Context, tenantID, appraisalID string) (pgx.Tx, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM appraisals WHERE tenant_id = $1 AND id = $2)
  `, tenantID, appraisalID).Scan(&exists); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if !exists {
		_ = tx.Rollback(ctx)
		return nil, ErrNotFound
	}
	return tx, nil
}
