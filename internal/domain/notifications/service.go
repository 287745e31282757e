package notifications

import (
	"context"
	"log/slog"
)

type Mailer interface {
	Send(ctx context.Context, msg Mail) error
}

type Service struct {
	store  StoreAPI
	Mailer Mailer
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer}
}

// Create stores an in-app notification and, when the tenant enabled email, mails it too.
// Mail failures are logged, never returned.
func (s *Service) Create(ctx context.Context, tenantID, userID, ntype, title, body string) error {
	if err := s.store.CreateNotification(ctx, tenantID, userID, ntype, title, body); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}

	enabled, from, err := s.store.EmailSettings(ctx, tenantID)
	if err != nil || !enabled {
		return nil
	}

	email, err := s.store.UserEmail(ctx, tenantID, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "userId", userID, "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, Mail{From: from, To: email, Subject: title, Body: body}); err != nil {
		slog.Warn("notification email send failed", "userId", userID, "err", err)
	}
	return nil
}

// NotifyEmployee resolves the employee's login and notifies it. Employees without a login
// are skipped.
func (s *Service) NotifyEmployee(ctx context.Context, tenantID, employeeID, ntype, title, body string) error {
	if employeeID == "" {
		return nil
	}
	userID, err := s.store.EmployeeUserID(ctx, tenantID, employeeID)
	if err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	return s.Create(ctx, tenantID, userID, ntype, title, body)
}

func (s *Service) List(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, tenantID, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, tenantID, userID string) (int, error) {
	return s.store.CountNotifications(ctx, tenantID, userID, false)
}

func (s *Service) UnreadCount(ctx context.Context, tenantID, userID string) (int, error) {
	return s.store.CountNotifications(ctx, tenantID, userID, true)
}

func (s *Service) MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	return s.store.MarkRead(ctx, tenantID, userID, notificationID)
}
