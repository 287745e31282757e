package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const employeeColumns = `
    id,
    COALESCE(user_id::text, ''),
    COALESCE(employee_number, ''),
    first_name, last_name, email,
    COALESCE(job_title, ''),
    COALESCE(department_id::text, ''),
    COALESCE(manager_id::text, ''),
    status, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(
		&emp.ID, &emp.UserID, &emp.EmployeeNumber, &emp.FirstName, &emp.LastName, &emp.Email,
		&emp.JobTitle, &emp.DepartmentID, &emp.ManagerID, &emp.Status, &emp.CreatedAt, &emp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return emp, err
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID))
}

func (s *Store) GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID))
}

func (s *Store) ListEmployees(ctx context.Context, tenantID, managerID string, limit, offset int) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE tenant_id = $1`
	args := []any{tenantID}
	if managerID != "" {
		args = append(args, managerID)
		query += fmt.Sprintf(" AND manager_id = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, tenantID string, emp Employee) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, user_id, employee_number, first_name, last_name, email, job_title, department_id, manager_id, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    RETURNING id
  `, tenantID, nullIfEmpty(emp.UserID), nullIfEmpty(emp.EmployeeNumber), emp.FirstName, emp.LastName, emp.Email,
		nullIfEmpty(emp.JobTitle), nullIfEmpty(emp.DepartmentID), nullIfEmpty(emp.ManagerID), emp.Status).Scan(&id)
	return id, err
}

func (s *Store) ManagerIDByEmployeeID(ctx context.Context, tenantID, employeeID string) (string, error) {
	var managerID string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(manager_id::text, '')
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&managerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return managerID, err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
