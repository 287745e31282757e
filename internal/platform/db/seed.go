package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/auth"
	"pms/internal/platform/config"
)

type defaultCriterion struct {
	Kind   string
	Name   string
	Weight float64
}

// Merit criteria every new tenant starts with; weights per kind sum to 100.
var defaultCriteria = []defaultCriterion{
	{Kind: "competency", Name: "Job Knowledge", Weight: 40},
	{Kind: "competency", Name: "Problem Solving", Weight: 30},
	{Kind: "competency", Name: "Communication", Weight: 30},
	{Kind: "culture", Name: "Integrity", Weight: 50},
	{Kind: "culture", Name: "Collaboration", Weight: 50},
}

func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	tenantID, err := ensureTenant(ctx, pool, cfg.SeedTenantName)
	if err != nil {
		return err
	}

	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool, tenantID)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if err := ensureTenantSettings(ctx, pool, tenantID, cfg); err != nil {
		return err
	}

	if err := ensureMeritCriteria(ctx, pool, tenantID); err != nil {
		return err
	}

	return ensureAdminUser(ctx, pool, tenantID, roleIDs[auth.RoleHR], cfg.SeedAdminEmail, cfg.SeedAdminPassword)
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return "", err
	}
	slog.Info("seeded tenant", "tenantId", id, "name", name)
	return id, nil
}

func ensurePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *pgxpool.Pool, tenantID string) (map[string]string, error) {
	roleIDs := map[string]string{}
	for roleName := range auth.RolePermissions {
		var id string
		err := pool.QueryRow(ctx, `
      INSERT INTO roles (tenant_id, name) VALUES ($1, $2)
      ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
      RETURNING id
    `, tenantID, roleName).Scan(&id)
		if err != nil {
			return nil, err
		}
		roleIDs[roleName] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool, roleIDs map[string]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id, key FROM permissions")
	if err != nil {
		return err
	}
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			rows.Close()
			return err
		}
		permMap[key] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for roleName, perms := range auth.RolePermissions {
		roleID := roleIDs[roleName]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return errors.New("permission not found: " + permKey)
			}
			_, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleID, permID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureTenantSettings(ctx context.Context, pool *pgxpool.Pool, tenantID string, cfg config.Config) error {
	_, err := pool.Exec(ctx, `
    INSERT INTO tenant_settings (tenant_id, email_notifications_enabled, email_from)
    VALUES ($1, $2, $3)
    ON CONFLICT (tenant_id) DO NOTHING
  `, tenantID, cfg.EmailEnabled, cfg.EmailFrom)
	return err
}

func ensureMeritCriteria(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM merit_criteria WHERE tenant_id = $1", tenantID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, c := range defaultCriteria {
		if _, err := pool.Exec(ctx, `
      INSERT INTO merit_criteria (tenant_id, kind, name, weight)
      VALUES ($1, $2, $3, $4)
    `, tenantID, c.Kind, c.Name, c.Weight); err != nil {
			return err
		}
	}
	return nil
}

// ensureAdminUser creates the HR login together with its employee row so the admin can own
// and review records like any other employee.
func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, tenantID, roleID, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE tenant_id = $1 AND email = $2", tenantID, email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, "INSERT INTO users (tenant_id, email, password_hash, role_id) VALUES ($1, $2, $3, $4) RETURNING id", tenantID, email, hash, roleID).Scan(&id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO employees (tenant_id, user_id, first_name, last_name, email, job_title)
    VALUES ($1, $2, $3, $4, $5, $6)
  `, tenantID, id, "HR", "Admin", email, "HR Administrator"); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	slog.Info("seeded admin user", "tenantId", tenantID, "userId", id)
	return nil
}
