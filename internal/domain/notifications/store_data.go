package notifications

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateNotification(ctx context.Context, tenantID, userID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (tenant_id, user_id, type, title, body)
    VALUES ($1,$2,$3,$4,$5)
  `, tenantID, userID, ntype, title, body)
	return err
}

func (s *Store) UserEmail(ctx context.Context, tenantID, userID string) (string, error) {
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM users WHERE tenant_id = $1 AND id = $2", tenantID, userID).Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Store) EmployeeUserID(ctx context.Context, tenantID, employeeID string) (string, error) {
	var userID string
	if err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(user_id::text, '')
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&userID); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, type, title, body, read_at, created_at
    FROM notifications
    WHERE tenant_id = $1 AND user_id = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, tenantID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int, error) {
	query := "SELECT COUNT(1) FROM notifications WHERE tenant_id = $1 AND user_id = $2"
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	var total int
	if err := s.DB.QueryRow(ctx, query, tenantID, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = COALESCE(read_at, now())
    WHERE tenant_id = $1 AND user_id = $2 AND id = $3
  `, tenantID, userID, notificationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) EmailSettings(ctx context.Context, tenantID string) (bool, string, error) {
	var enabled bool
	var from string
	if err := s.DB.QueryRow(ctx, `
    SELECT email_notifications_enabled, COALESCE(email_from, '')
    FROM tenant_settings
    WHERE tenant_id = $1
  `, tenantID).Scan(&enabled, &from); err != nil {
		return false, "", err
	}
	return enabled, from, nil
}
