package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

const (
	bonusTable = "kpi_bonus_records"
	meritTable = "kpi_merit_records"
)

// workflowColumns are selected first for both record tables, in this order.
func workflowColumns(recordType workflow.RecordType) string {
	return fmt.Sprintf(`
    r.id, r.employee_id::text, COALESCE(r.checker_id::text, ''), COALESCE(r.approver_id::text, ''),
    r.period, r.status, r.submitted_at, r.checked_date, r.checker_feedback, r.approved_date,
    r.approver_feedback, r.rejected_date, r.rejection_reason, r.version, r.created_at, r.updated_at,
    COALESCE((SELECT max(h.created_at) FROM kpi_history h WHERE h.record_type = '%s' AND h.record_id = r.id), r.created_at)`,
		recordType)
}

type workflowRow struct {
	rec       workflow.Record
	period    string
	status    string
	version   int
	createdAt time.Time
	updatedAt time.Time
}

func (w *workflowRow) dest() []any {
	return []any{
		&w.rec.ID, &w.rec.EmployeeID, &w.rec.CheckerID, &w.rec.ApproverID,
		&w.period, &w.status, &w.rec.SubmittedAt, &w.rec.CheckedAt, &w.rec.CheckerFeedback, &w.rec.ApprovedAt,
		&w.rec.ApproverFeedback, &w.rec.RejectedAt, &w.rec.RejectionReason, &w.version, &w.createdAt, &w.updatedAt,
		&w.rec.LastHistoryAt,
	}
}

func (w *workflowRow) record(recordType workflow.RecordType) (workflow.Record, error) {
	status, err := workflow.ParseStatus(w.status)
	if err != nil {
		return workflow.Record{}, fmt.Errorf("record %s: %w", w.rec.ID, err)
	}
	rec := w.rec
	rec.Type = recordType
	rec.Status = status
	rec.Sync()
	return rec, nil
}

func recordFilterClause(filter RecordFilter, args []any) (string, []any) {
	clause := ""
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		clause += fmt.Sprintf(" AND r.employee_id = $%d", len(args))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		n := len(args)
		clause += fmt.Sprintf(" AND (r.employee_id = $%d OR r.checker_id = $%d OR r.approver_id = $%d)", n, n, n)
	}
	if filter.Period != "" {
		args = append(args, filter.Period)
		clause += fmt.Sprintf(" AND r.period = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, filter.Status.String())
		clause += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	clause += fmt.Sprintf(" ORDER BY r.created_at DESC, r.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return clause, args
}

func (s *Store) CreateBonusRecord(ctx context.Context, tenantID string, rec BonusRecord, entry workflow.HistoryEntry) (BonusRecord, error) {
	evaluations, err := json.Marshal(rec.Evaluations)
	if err != nil {
		return BonusRecord{}, err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return BonusRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
    INSERT INTO kpi_bonus_records (tenant_id, employee_id, checker_id, approver_id, period, status, workflow_step, evaluations_json)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING id, version, created_at, updated_at
  `, tenantID, rec.EmployeeID, nullIfEmpty(rec.CheckerID), nullIfEmpty(rec.ApproverID), rec.Period,
		rec.Status.String(), string(rec.Step), evaluations).Scan(&rec.ID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return BonusRecord{}, ErrDuplicateRecord
		}
		return BonusRecord{}, err
	}
	entry.RecordID = rec.ID
	if err := insertHistory(ctx, tx, tenantID, entry); err != nil {
		return BonusRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BonusRecord{}, err
	}
	rec.LastHistoryAt = entry.CreatedAt
	return rec, nil
}

func (s *Store) scanBonus(row pgx.Row) (BonusRecord, error) {
	var w workflowRow
	var evaluations, score []byte
	var out BonusRecord
	dest := append(w.dest(), &evaluations, &out.Score.TotalScore, &out.Score.TotalWeight, &out.Score.IsWeightValid, &score)
	if err := row.Scan(dest...); err != nil {
		return BonusRecord{}, err
	}
	rec, err := w.record(workflow.RecordKPIBonus)
	if err != nil {
		return BonusRecord{}, err
	}
	out.Record = rec
	out.Period = w.period
	out.Version = w.version
	out.CreatedAt = w.createdAt
	out.UpdatedAt = w.updatedAt
	out.Evaluations = map[string]scoring.Achievement{}
	if len(evaluations) > 0 {
		if err := json.Unmarshal(evaluations, &out.Evaluations); err != nil {
			return BonusRecord{}, err
		}
	}
	if hasSnapshot(score) {
		if err := json.Unmarshal(score, &out.Score); err != nil {
			return BonusRecord{}, err
		}
	}
	return out, nil
}

const bonusExtraColumns = ", r.evaluations_json, r.total_score, r.total_weight, r.is_weight_valid, r.score_json"

// hasSnapshot is false for rows written before score_json existed; those keep the scalar totals.
func hasSnapshot(raw []byte) bool {
	return len(raw) > 0 && string(raw) != "{}"
}

func bonusScoreColumns(rec BonusRecord) (scoreColumns, error) {
	raw, err := json.Marshal(rec.Score)
	if err != nil {
		return scoreColumns{}, err
	}
	return scoreColumns{
		{"score_json", raw},
		{"total_score", rec.Score.TotalScore},
		{"total_weight", rec.Score.TotalWeight},
		{"is_weight_valid", rec.Score.IsWeightValid},
	}, nil
}

func (s *Store) GetBonusRecord(ctx context.Context, tenantID, recordID string) (BonusRecord, error) {
	rec, err := s.scanBonus(s.DB.QueryRow(ctx, `
    SELECT `+workflowColumns(workflow.RecordKPIBonus)+bonusExtraColumns+`
    FROM kpi_bonus_records r
    WHERE r.tenant_id = $1 AND r.id = $2
  `, tenantID, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return BonusRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) ListBonusRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]BonusRecord, error) {
	clause, args := recordFilterClause(filter, []any{tenantID})
	rows, err := s.DB.Query(ctx, `
    SELECT `+workflowColumns(workflow.RecordKPIBonus)+bonusExtraColumns+`
    FROM kpi_bonus_records r
    WHERE r.tenant_id = $1`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BonusRecord
	for rows.Next() {
		rec, err := s.scanBonus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveBonusEvaluations(ctx context.Context, tenantID string, rec BonusRecord) (int, error) {
	evaluations, err := json.Marshal(rec.Evaluations)
	if err != nil {
		return 0, err
	}
	score, err := json.Marshal(rec.Score)
	if err != nil {
		return 0, err
	}
	var version int
	err = s.DB.QueryRow(ctx, `
    UPDATE kpi_bonus_records
    SET evaluations_json = $1, total_score = $2, total_weight = $3, is_weight_valid = $4, score_json = $5,
        version = version + 1, updated_at = now()
    WHERE tenant_id = $6 AND id = $7 AND version = $8
    RETURNING version
  `, evaluations, rec.Score.TotalScore, rec.Score.TotalWeight, rec.Score.IsWeightValid, score, tenantID, rec.ID, rec.Version).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConcurrentUpdate
	}
	return version, err
}

func (s *Store) TransitionBonusRecord(ctx context.Context, tenantID string, rec BonusRecord, entry workflow.HistoryEntry) (int, error) {
	scores, err := bonusScoreColumns(rec)
	if err != nil {
		return 0, err
	}
	return s.transition(ctx, bonusTable, tenantID, rec.Record, rec.Version, entry, scores)
}

func (s *Store) CreateMeritRecord(ctx context.Context, tenantID string, rec MeritRecord, entry workflow.HistoryEntry) (MeritRecord, error) {
	kpiJSON, competencyJSON, cultureJSON, err := marshalMerit(rec)
	if err != nil {
		return MeritRecord{}, err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return MeritRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
    INSERT INTO kpi_merit_records (tenant_id, employee_id, checker_id, approver_id, period, status, workflow_step,
      kpi_evaluations_json, competency_evaluations_json, culture_evaluations_json)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    RETURNING id, version, created_at, updated_at
  `, tenantID, rec.EmployeeID, nullIfEmpty(rec.CheckerID), nullIfEmpty(rec.ApproverID), rec.Period,
		rec.Status.String(), string(rec.Step), kpiJSON, competencyJSON, cultureJSON).Scan(&rec.ID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return MeritRecord{}, ErrDuplicateRecord
		}
		return MeritRecord{}, err
	}
	entry.RecordID = rec.ID
	if err := insertHistory(ctx, tx, tenantID, entry); err != nil {
		return MeritRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return MeritRecord{}, err
	}
	rec.LastHistoryAt = entry.CreatedAt
	return rec, nil
}

const meritExtraColumns = `, r.kpi_evaluations_json, r.competency_evaluations_json, r.culture_evaluations_json,
    r.kpi_bonus_score, r.competency_score, r.culture_score, r.kpi_achievement_score,
    r.weighted_competency_score, r.weighted_culture_score, r.total_score, r.is_weight_valid, r.score_json`

// meritSnapshot is the score_json shape of a merit record.
type meritSnapshot struct {
	KPIScore        scoring.KPIBonusScore `json:"kpiScore"`
	CompetencyScore scoring.RatingScore   `json:"competencyScore"`
	CultureScore    scoring.RatingScore   `json:"cultureScore"`
	Merit           scoring.MeritScore    `json:"merit"`
	IsWeightValid   bool                  `json:"isWeightValid"`
}

func meritScoreColumns(rec MeritRecord) (scoreColumns, error) {
	raw, err := json.Marshal(meritSnapshot{
		KPIScore:        rec.KPIScore,
		CompetencyScore: rec.CompetencyScore,
		CultureScore:    rec.CultureScore,
		Merit:           rec.Merit,
		IsWeightValid:   rec.IsWeightValid,
	})
	if err != nil {
		return scoreColumns{}, err
	}
	return scoreColumns{
		{"score_json", raw},
		{"kpi_bonus_score", rec.KPIScore.TotalScore},
		{"competency_score", rec.CompetencyScore.TotalScore},
		{"culture_score", rec.CultureScore.TotalScore},
		{"kpi_achievement_score", rec.Merit.KPIAchievementScore},
		{"weighted_competency_score", rec.Merit.CompetencyScore},
		{"weighted_culture_score", rec.Merit.CultureScore},
		{"total_score", rec.Merit.TotalScore},
		{"is_weight_valid", rec.IsWeightValid},
	}, nil
}

func (s *Store) scanMerit(row pgx.Row) (MeritRecord, error) {
	var w workflowRow
	var kpiJSON, competencyJSON, cultureJSON, score []byte
	var out MeritRecord
	dest := append(w.dest(), &kpiJSON, &competencyJSON, &cultureJSON,
		&out.KPIScore.TotalScore, &out.CompetencyScore.TotalScore, &out.CultureScore.TotalScore,
		&out.Merit.KPIAchievementScore, &out.Merit.CompetencyScore, &out.Merit.CultureScore, &out.Merit.TotalScore,
		&out.IsWeightValid, &score)
	if err := row.Scan(dest...); err != nil {
		return MeritRecord{}, err
	}
	rec, err := w.record(workflow.RecordKPIMerit)
	if err != nil {
		return MeritRecord{}, err
	}
	out.Record = rec
	out.Period = w.period
	out.Version = w.version
	out.CreatedAt = w.createdAt
	out.UpdatedAt = w.updatedAt
	out.KPIEvaluations = map[string]scoring.Achievement{}
	out.CompetencyEvaluations = map[string]scoring.LevelRating{}
	out.CultureEvaluations = map[string]scoring.LevelRating{}
	for _, part := range []struct {
		raw  []byte
		dest any
	}{
		{kpiJSON, &out.KPIEvaluations},
		{competencyJSON, &out.CompetencyEvaluations},
		{cultureJSON, &out.CultureEvaluations},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return MeritRecord{}, err
		}
	}
	if hasSnapshot(score) {
		var snap meritSnapshot
		if err := json.Unmarshal(score, &snap); err != nil {
			return MeritRecord{}, err
		}
		out.KPIScore = snap.KPIScore
		out.CompetencyScore = snap.CompetencyScore
		out.CultureScore = snap.CultureScore
		out.Merit = snap.Merit
		out.IsWeightValid = snap.IsWeightValid
	}
	return out, nil
}

func (s *Store) GetMeritRecord(ctx context.Context, tenantID, recordID string) (MeritRecord, error) {
	rec, err := s.scanMerit(s.DB.QueryRow(ctx, `
    SELECT `+workflowColumns(workflow.RecordKPIMerit)+meritExtraColumns+`
    FROM kpi_merit_records r
    WHERE r.tenant_id = $1 AND r.id = $2
  `, tenantID, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return MeritRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) ListMeritRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]MeritRecord, error) {
	clause, args := recordFilterClause(filter, []any{tenantID})
	rows, err := s.DB.Query(ctx, `
    SELECT `+workflowColumns(workflow.RecordKPIMerit)+meritExtraColumns+`
    FROM kpi_merit_records r
    WHERE r.tenant_id = $1`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeritRecord
	for rows.Next() {
		rec, err := s.scanMerit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveMeritEvaluations(ctx context.Context, tenantID string, rec MeritRecord) (int, error) {
	kpiJSON, competencyJSON, cultureJSON, err := marshalMerit(rec)
	if err != nil {
		return 0, err
	}
	scores, err := meritScoreColumns(rec)
	if err != nil {
		return 0, err
	}
	set, args := scores.set("kpi_evaluations_json = $1, competency_evaluations_json = $2, culture_evaluations_json = $3",
		[]any{kpiJSON, competencyJSON, cultureJSON})
	args = append(args, tenantID, rec.ID, rec.Version)
	var version int
	err = s.DB.QueryRow(ctx, fmt.Sprintf(`
    UPDATE kpi_merit_records
    SET %s, version = version + 1, updated_at = now()
    WHERE tenant_id = $%d AND id = $%d AND version = $%d
    RETURNING version
  `, set, len(args)-2, len(args)-1, len(args)), args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConcurrentUpdate
	}
	return version, err
}

func (s *Store) TransitionMeritRecord(ctx context.Context, tenantID string, rec MeritRecord, entry workflow.HistoryEntry) (int, error) {
	scores, err := meritScoreColumns(rec)
	if err != nil {
		return 0, err
	}
	return s.transition(ctx, meritTable, tenantID, rec.Record, rec.Version, entry, scores)
}

// scoreColumns are the persisted score fields written alongside evaluations and transitions.
type scoreColumns []struct {
	column string
	value  any
}

// set appends the score assignments to a SET list whose placeholders end at len(args).
func (c scoreColumns) set(base string, args []any) (string, []any) {
	for _, col := range c {
		args = append(args, col.value)
		base += fmt.Sprintf(", %s = $%d", col.column, len(args))
	}
	return base, args
}

// transition writes the new workflow state and the score it was decided on, guarded by version,
// and appends the history entry in the same transaction, so a record never changes status
// without its history row.
func (s *Store) transition(ctx context.Context, table, tenantID string, rec workflow.Record, version int, entry workflow.HistoryEntry, scores scoreColumns) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	set, args := scores.set(`status = $1, workflow_step = $2, submitted_at = $3, checked_date = $4, checker_feedback = $5,
        approved_date = $6, approver_feedback = $7, rejected_date = $8, rejection_reason = $9`,
		[]any{rec.Status.String(), string(rec.Step), rec.SubmittedAt, rec.CheckedAt, rec.CheckerFeedback,
			rec.ApprovedAt, rec.ApproverFeedback, rec.RejectedAt, rec.RejectionReason})
	args = append(args, tenantID, rec.ID, version)

	var next int
	err = tx.QueryRow(ctx, fmt.Sprintf(`
    UPDATE %s
    SET %s, version = version + 1, updated_at = now()
    WHERE tenant_id = $%d AND id = $%d AND version = $%d
    RETURNING version
  `, table, set, len(args)-2, len(args)-1, len(args)), args...).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConcurrentUpdate
	}
	if err != nil {
		return 0, err
	}
	if err := insertHistory(ctx, tx, tenantID, entry); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return next, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, tenantID string, entry workflow.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO kpi_history (tenant_id, record_type, record_id, action, from_status, to_status,
      actor_id, actor_name, actor_role, comment, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, tenantID, string(entry.RecordType), entry.RecordID, string(entry.Action), entry.FromStatus.String(),
		entry.ToStatus.String(), entry.ActorID, entry.ActorName, string(entry.ActorRole), entry.Comment, entry.CreatedAt)
	return err
}

func (s *Store) ListHistory(ctx context.Context, tenantID string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, record_type, record_id::text, action, from_status, to_status, actor_id, actor_name, actor_role, comment, created_at
    FROM kpi_history
    WHERE tenant_id = $1 AND record_type = $2 AND record_id = $3
    ORDER BY created_at, seq
  `, tenantID, string(recordType), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.HistoryEntry
	for rows.Next() {
		var entry workflow.HistoryEntry
		var rtype, action, from, to, role string
		if err := rows.Scan(&entry.ID, &rtype, &entry.RecordID, &action, &from, &to, &entry.ActorID, &entry.ActorName, &role, &entry.Comment, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.RecordType = workflow.RecordType(rtype)
		entry.Action = workflow.Action(action)
		entry.ActorRole = workflow.Step(role)
		if entry.FromStatus, err = workflow.ParseStatus(from); err != nil {
			return nil, err
		}
		if entry.ToStatus, err = workflow.ParseStatus(to); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func marshalMerit(rec MeritRecord) ([]byte, []byte, []byte, error) {
	kpiJSON, err := json.Marshal(rec.KPIEvaluations)
	if err != nil {
		return nil, nil, nil, err
	}
	competencyJSON, err := json.Marshal(rec.CompetencyEvaluations)
	if err != nil {
		return nil, nil, nil, err
	}
	cultureJSON, err := json.Marshal(rec.CultureEvaluations)
	if err != nil {
		return nil, nil, nil, err
	}
	return kpiJSON, competencyJSON, cultureJSON, nil
}
