package notifications

import "context"

type StoreAPI interface {
	CreateNotification(ctx context.Context, tenantID, userID, ntype, title, body string) error
	UserEmail(ctx context.Context, tenantID, userID string) (string, error)
	EmployeeUserID(ctx context.Context, tenantID, employeeID string) (string, error)
	ListNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error)
	CountNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error)
	EmailSettings(ctx context.Context, tenantID string) (bool, string, error)
}
