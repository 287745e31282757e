package core

import "context"

type StoreAPI interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error)
	GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (Employee, error)
	ListEmployees(ctx context.Context, tenantID, managerID string, limit, offset int) ([]Employee, error)
	CreateEmployee(ctx context.Context, tenantID string, emp Employee) (string, error)
	ManagerIDByEmployeeID(ctx context.Context, tenantID, employeeID string) (string, error)
}
