package core

import (
	"context"
	"errors"
	"strings"
)

// maxChainDepth bounds manager walks so corrupt data cannot loop forever.
const maxChainDepth = 64

type Service struct {
	store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

func (s *Service) GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	return s.store.GetEmployee(ctx, tenantID, employeeID)
}

func (s *Service) GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (Employee, error) {
	return s.store.GetEmployeeByUserID(ctx, tenantID, userID)
}

func (s *Service) ListEmployees(ctx context.Context, tenantID, managerID string, limit, offset int) ([]Employee, error) {
	return s.store.ListEmployees(ctx, tenantID, managerID, limit, offset)
}

func (s *Service) CreateEmployee(ctx context.Context, tenantID string, emp Employee) (Employee, error) {
	emp.FirstName = strings.TrimSpace(emp.FirstName)
	emp.LastName = strings.TrimSpace(emp.LastName)
	emp.Email = strings.TrimSpace(emp.Email)
	if emp.Status == "" {
		emp.Status = EmployeeStatusActive
	}
	if emp.ManagerID != "" {
		if _, err := s.store.GetEmployee(ctx, tenantID, emp.ManagerID); err != nil {
			return Employee{}, err
		}
	}
	id, err := s.store.CreateEmployee(ctx, tenantID, emp)
	if err != nil {
		return Employee{}, err
	}
	emp.ID = id
	return emp, nil
}

// ReviewChain resolves the checker (direct manager) and approver (the manager's manager) of an
// employee. When the manager has no manager of their own, the manager also approves.
func (s *Service) ReviewChain(ctx context.Context, tenantID, employeeID string) (ReviewChain, error) {
	checkerID, err := s.store.ManagerIDByEmployeeID(ctx, tenantID, employeeID)
	if err != nil {
		return ReviewChain{}, err
	}
	if checkerID == "" {
		return ReviewChain{}, nil
	}
	approverID, err := s.store.ManagerIDByEmployeeID(ctx, tenantID, checkerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ReviewChain{}, err
	}
	if approverID == "" || approverID == employeeID {
		approverID = checkerID
	}
	return ReviewChain{CheckerID: checkerID, ApproverID: approverID}, nil
}

// IsInReportingLine reports whether managerID appears above employeeID in the manager chain.
func (s *Service) IsInReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error) {
	if managerID == "" || managerID == employeeID {
		return false, nil
	}
	current := employeeID
	seen := map[string]bool{current: true}
	for i := 0; i < maxChainDepth; i++ {
		next, err := s.store.ManagerIDByEmployeeID(ctx, tenantID, current)
		if err != nil {
			return false, err
		}
		if next == "" || seen[next] {
			return false, nil
		}
		if next == managerID {
			return true, nil
		}
		seen[next] = true
		current = next
	}
	return false, nil
}
