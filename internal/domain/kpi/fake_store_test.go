package kpi

import (
	"context"
	"fmt"
	"time"

	"pms/internal/domain/core"
	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

type memStore struct {
	items    []Item
	criteria []Criterion
	bonus    map[string]BonusRecord
	merit    map[string]MeritRecord
	history  []workflow.HistoryEntry
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{bonus: map[string]BonusRecord{}, merit: map[string]MeritRecord{}}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) ListItems(_ context.Context, _ string, filter ItemFilter) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if filter.EmployeeID != "" && item.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Period != "" && item.Period != filter.Period {
			continue
		}
		if filter.Level != "" && item.Level != filter.Level {
			continue
		}
		if filter.ParentID != "" && item.ParentID != filter.ParentID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) GetItem(_ context.Context, _ string, itemID string) (Item, error) {
	for _, item := range m.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (m *memStore) CreateItems(_ context.Context, _ string, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.ID = m.id("item")
		item.CreatedAt = time.Now()
		m.items = append(m.items, item)
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) UpdateItem(_ context.Context, _ string, item Item) error {
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = item
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *memStore) ListCriteria(_ context.Context, _ string, kind string, activeOnly bool) ([]Criterion, error) {
	var out []Criterion
	for _, c := range m.criteria {
		if (kind == "" || c.Kind == kind) && (!activeOnly || c.Active) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateCriterion(_ context.Context, _ string, c Criterion) (Criterion, error) {
	c.ID = m.id("crit")
	m.criteria = append(m.criteria, c)
	return c, nil
}

func (m *memStore) CreateBonusRecord(_ context.Context, _ string, rec BonusRecord, entry workflow.HistoryEntry) (BonusRecord, error) {
	for _, existing := range m.bonus {
		if existing.EmployeeID == rec.EmployeeID && existing.Period == rec.Period {
			return BonusRecord{}, ErrDuplicateRecord
		}
	}
	rec.ID = m.id("bonus")
	rec.Version = 1
	entry.RecordID = rec.ID
	rec.LastHistoryAt = entry.CreatedAt
	m.bonus[rec.ID] = rec
	m.history = append(m.history, entry)
	return rec, nil
}

func (m *memStore) GetBonusRecord(_ context.Context, _ string, recordID string) (BonusRecord, error) {
	rec, ok := m.bonus[recordID]
	if !ok {
		return BonusRecord{}, ErrNotFound
	}
	evals := map[string]scoring.Achievement{}
	for k, v := range rec.Evaluations {
		evals[k] = v
	}
	rec.Evaluations = evals
	return rec, nil
}

func (m *memStore) ListBonusRecords(_ context.Context, _ string, filter RecordFilter) ([]BonusRecord, error) {
	var out []BonusRecord
	for _, rec := range m.bonus {
		if filter.ParticipantID != "" && !rec.Participant(filter.ParticipantID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) SaveBonusEvaluations(_ context.Context, _ string, rec BonusRecord) (int, error) {
	current, ok := m.bonus[rec.ID]
	if !ok || current.Version != rec.Version {
		return 0, ErrConcurrentUpdate
	}
	rec.Version++
	m.bonus[rec.ID] = rec
	return rec.Version, nil
}

func (m *memStore) TransitionBonusRecord(_ context.Context, _ string, rec BonusRecord, entry workflow.HistoryEntry) (int, error) {
	current, ok := m.bonus[rec.ID]
	if !ok || current.Version != rec.Version {
		return 0, ErrConcurrentUpdate
	}
	current.Record = rec.Record
	current.Score = rec.Score
	current.Version++
	m.bonus[rec.ID] = current
	m.history = append(m.history, entry)
	return current.Version, nil
}

func (m *memStore) CreateMeritRecord(_ context.Context, _ string, rec MeritRecord, entry workflow.HistoryEntry) (MeritRecord, error) {
	rec.ID = m.id("merit")
	rec.Version = 1
	entry.RecordID = rec.ID
	m.merit[rec.ID] = rec
	m.history = append(m.history, entry)
	return rec, nil
}

func (m *memStore) GetMeritRecord(_ context.Context, _ string, recordID string) (MeritRecord, error) {
	rec, ok := m.merit[recordID]
	if !ok {
		return MeritRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListMeritRecords(_ context.Context, _ string, _ RecordFilter) ([]MeritRecord, error) {
	var out []MeritRecord
	for _, rec := range m.merit {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) SaveMeritEvaluations(_ context.Context, _ string, rec MeritRecord) (int, error) {
	current, ok := m.merit[rec.ID]
	if !ok || current.Version != rec.Version {
		return 0, ErrConcurrentUpdate
	}
	rec.Version++
	m.merit[rec.ID] = rec
	return rec.Version, nil
}

func (m *memStore) TransitionMeritRecord(_ context.Context, _ string, rec MeritRecord, entry workflow.HistoryEntry) (int, error) {
	current, ok := m.merit[rec.ID]
	if !ok || current.Version != rec.Version {
		return 0, ErrConcurrentUpdate
	}
	current.Record = rec.Record
	current.KPIScore = rec.KPIScore
	current.CompetencyScore = rec.CompetencyScore
	current.CultureScore = rec.CultureScore
	current.Merit = rec.Merit
	current.IsWeightValid = rec.IsWeightValid
	current.Version++
	m.merit[rec.ID] = current
	m.history = append(m.history, entry)
	return current.Version, nil
}

func (m *memStore) ListHistory(_ context.Context, _ string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error) {
	var out []workflow.HistoryEntry
	for _, entry := range m.history {
		if entry.RecordType == recordType && entry.RecordID == recordID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type staticDirectory map[string]core.ReviewChain

func (d staticDirectory) ReviewChain(_ context.Context, _ string, employeeID string) (core.ReviewChain, error) {
	return d[employeeID], nil
}
