package kpi

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"pms/internal/domain/core"
	"pms/internal/domain/workflow"
)

// Directory resolves who checks and approves an employee's records.
type Directory interface {
	ReviewChain(ctx context.Context, tenantID, employeeID string) (core.ReviewChain, error)
}

type Service struct {
	store     StoreAPI
	directory Directory
	observers workflow.Observers
	now       func() time.Time
}

func NewService(store StoreAPI, directory Directory, observers ...workflow.Observer) *Service {
	return &Service{store: store, directory: directory, observers: observers, now: time.Now}
}

func (s *Service) ListItems(ctx context.Context, tenantID string, filter ItemFilter) ([]Item, error) {
	return s.store.ListItems(ctx, tenantID, filter)
}

func (s *Service) GetItem(ctx context.Context, tenantID, itemID string) (Item, error) {
	return s.store.GetItem(ctx, tenantID, itemID)
}

func (s *Service) CreateItem(ctx context.Context, tenantID string, item Item) (Item, error) {
	item = normalizeItem(item)
	if item.Level == "" {
		item.Level = LevelIndividual
	}
	if err := validateItem(item); err != nil {
		return Item{}, err
	}
	if item.Level == LevelIndividual && item.EmployeeID == "" {
		return Item{}, fmt.Errorf("%w: individual items need an employee", ErrInvalidItem)
	}
	if item.ParentID != "" {
		if _, err := s.store.GetItem(ctx, tenantID, item.ParentID); err != nil {
			return Item{}, err
		}
	}
	created, err := s.store.CreateItems(ctx, tenantID, []Item{item})
	if err != nil {
		return Item{}, err
	}
	return created[0], nil
}

// UpdateItem changes the descriptive fields and weight of an item. Level, owner and parent are
// fixed at creation.
func (s *Service) UpdateItem(ctx context.Context, tenantID string, item Item) (Item, error) {
	current, err := s.store.GetItem(ctx, tenantID, item.ID)
	if err != nil {
		return Item{}, err
	}
	item = normalizeItem(item)
	current.Category = item.Category
	current.Name = item.Name
	current.Weight = item.Weight
	current.Target = item.Target
	current.Measurement = item.Measurement
	if err := validateItem(current); err != nil {
		return Item{}, err
	}
	if err := s.store.UpdateItem(ctx, tenantID, current); err != nil {
		return Item{}, err
	}
	return current, nil
}

// CascadeItem copies a corporate or department item down to individual employees. Each child
// keeps the parent's name, category, target and measurement with its own weight.
func (s *Service) CascadeItem(ctx context.Context, tenantID, parentID string, targets []CascadeTarget) ([]Item, error) {
	parent, err := s.store.GetItem(ctx, tenantID, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Level == LevelIndividual {
		return nil, fmt.Errorf("%w: individual items are leaves", ErrInvalidCascade)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no employees given", ErrInvalidCascade)
	}

	seen := map[string]bool{}
	children := make([]Item, 0, len(targets))
	for _, target := range targets {
		employeeID := strings.TrimSpace(target.EmployeeID)
		if employeeID == "" || seen[employeeID] {
			return nil, fmt.Errorf("%w: employee %q missing or repeated", ErrInvalidCascade, employeeID)
		}
		seen[employeeID] = true
		child := Item{
			EmployeeID:   employeeID,
			DepartmentID: parent.DepartmentID,
			ParentID:     parent.ID,
			Level:        LevelIndividual,
			Period:       parent.Period,
			Category:     parent.Category,
			Name:         parent.Name,
			Weight:       target.Weight,
			Target:       parent.Target,
			Measurement:  parent.Measurement,
		}
		if err := validateItem(child); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return s.store.CreateItems(ctx, tenantID, children)
}

func (s *Service) ListCriteria(ctx context.Context, tenantID, kind string, activeOnly bool) ([]Criterion, error) {
	if kind != "" && !slices.Contains(CriterionKinds, kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidCriterion, kind)
	}
	return s.store.ListCriteria(ctx, tenantID, kind, activeOnly)
}

func (s *Service) CreateCriterion(ctx context.Context, tenantID string, c Criterion) (Criterion, error) {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if !slices.Contains(CriterionKinds, c.Kind) {
		return Criterion{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidCriterion, c.Kind)
	}
	if c.Name == "" {
		return Criterion{}, fmt.Errorf("%w: name is required", ErrInvalidCriterion)
	}
	if c.Weight <= 0 || c.Weight > 100 {
		return Criterion{}, fmt.Errorf("%w: weight must be in (0, 100]", ErrInvalidCriterion)
	}
	return s.store.CreateCriterion(ctx, tenantID, c)
}

func normalizeItem(item Item) Item {
	item.Level = strings.ToLower(strings.TrimSpace(item.Level))
	item.Period = strings.TrimSpace(item.Period)
	item.Category = strings.TrimSpace(item.Category)
	item.Name = strings.TrimSpace(item.Name)
	item.Target = strings.TrimSpace(item.Target)
	item.Measurement = strings.TrimSpace(item.Measurement)
	return item
}

func validateItem(item Item) error {
	if !slices.Contains(ItemLevels, item.Level) {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidItem, item.Level)
	}
	if item.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if item.Period == "" {
		return fmt.Errorf("%w: period is required", ErrInvalidItem)
	}
	if item.Weight <= 0 || item.Weight > 100 {
		return fmt.Errorf("%w: weight must be in (0, 100]", ErrInvalidItem)
	}
	return nil
}
