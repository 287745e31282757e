package kpi

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const itemColumns = `
    id,
    COALESCE(employee_id::text, ''),
    COALESCE(department_id::text, ''),
    COALESCE(parent_id::text, ''),
    level, period, category, name, weight::float8, target, measurement, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.EmployeeID, &item.DepartmentID, &item.ParentID, &item.Level, &item.Period,
		&item.Category, &item.Name, &item.Weight, &item.Target, &item.Measurement, &item.CreatedAt)
	return item, err
}

func (s *Store) ListItems(ctx context.Context, tenantID string, filter ItemFilter) ([]Item, error) {
	query := "SELECT " + itemColumns + " FROM kpi_items WHERE tenant_id = $1"
	args := []any{tenantID}
	add := func(clause, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	add(" AND employee_id = $%d", filter.EmployeeID)
	add(" AND period = $%d", filter.Period)
	add(" AND level = $%d", filter.Level)
	add(" AND parent_id = $%d", filter.ParentID)
	query += " ORDER BY created_at, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, tenantID, itemID string) (Item, error) {
	item, err := scanItem(s.DB.QueryRow(ctx, "SELECT "+itemColumns+" FROM kpi_items WHERE tenant_id = $1 AND id = $2", tenantID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// CreateItems inserts all items in one transaction; cascades either fully apply or not at all.
func (s *Store) CreateItems(ctx context.Context, tenantID string, items []Item) ([]Item, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if err := tx.QueryRow(ctx, `
      INSERT INTO kpi_items (tenant_id, employee_id, department_id, parent_id, level, period, category, name, weight, target, measurement)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
      RETURNING id, created_at
    `, tenantID, nullIfEmpty(item.EmployeeID), nullIfEmpty(item.DepartmentID), nullIfEmpty(item.ParentID), item.Level,
			item.Period, item.Category, item.Name, item.Weight, item.Target, item.Measurement).Scan(&item.ID, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateItem(ctx context.Context, tenantID string, item Item) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpi_items
    SET category = $1, name = $2, weight = $3, target = $4, measurement = $5
    WHERE tenant_id = $6 AND id = $7
  `, item.Category, item.Name, item.Weight, item.Target, item.Measurement, tenantID, item.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *Store) ListCriteria(ctx context.Context, tenantID, kind string, activeOnly bool) ([]Criterion, error) {
	query := `
    SELECT id, kind, name, description, weight::float8, active, created_at
    FROM merit_criteria
    WHERE tenant_id = $1`
	args := []any{tenantID}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY kind, created_at, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Criterion
	for rows.Next() {
		var c Criterion
		if err := rows.Scan(&c.ID, &c.Kind, &c.Name, &c.Description, &c.Weight, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCriterion(ctx context.Context, tenantID string, c Criterion) (Criterion, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO merit_criteria (tenant_id, kind, name, description, weight, active)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at
  `, tenantID, c.Kind, c.Name, c.Description, c.Weight, c.Active).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
