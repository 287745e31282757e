package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EntityKPIItem         = "kpi_item"
	EntityMeritCriterion  = "merit_criterion"
	EntityKPIBonusRecord  = "kpi_bonus_record"
	EntityKPIMeritRecord  = "kpi_merit_record"
	EntityAppraisalCycle  = "appraisal_cycle"
	EntityAppraisal       = "appraisal"
	EntityAppraisalReview = "appraisal_feedback"
	EntityEmployee        = "employee"
	EntityUser            = "user"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorUser  string
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error {
	beforeJSON, err := marshalState(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalState(after)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, tenantID, actorID, action, entityType, entityID, beforeJSON, afterJSON, requestID, ip)
	return err
}

func (s *Service) Count(ctx context.Context, tenantID string, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", tenantID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	selectCols := "id, actor_user_id, action, entity_type, entity_id, request_id, ip, created_at"
	if includeDetails {
		selectCols += ", before_json, after_json"
	}
	query, args := buildBaseQuery("SELECT "+selectCols, tenantID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.Before, &evt.After)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func marshalState(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func buildBaseQuery(prefix, tenantID string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE tenant_id = $1"
	args := []any{tenantID}
	add := func(clause, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	add(" AND action = $%d", filter.Action)
	add(" AND entity_type = $%d", filter.EntityType)
	add(" AND entity_id = $%d", filter.EntityID)
	add(" AND actor_user_id = $%d", filter.ActorUser)
	return query, args
}
