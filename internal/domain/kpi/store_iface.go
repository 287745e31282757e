package kpi

import (
	"context"

	"pms/internal/domain/workflow"
)

type StoreAPI interface {
	ListItems(ctx context.Context, tenantID string, filter ItemFilter) ([]Item, error)
	GetItem(ctx context.Context, tenantID, itemID string) (Item, error)
	CreateItems(ctx context.Context, tenantID string, items []Item) ([]Item, error)
	UpdateItem(ctx context.Context, tenantID string, item Item) error

	ListCriteria(ctx context.Context, tenantID, kind string, activeOnly bool) ([]Criterion, error)
	CreateCriterion(ctx context.Context, tenantID string, c Criterion) (Criterion, error)

	CreateBonusRecord(ctx context.Context, tenantID string, rec BonusRecord, entry workflow.HistoryEntry) (BonusRecord, error)
	GetBonusRecord(ctx context.Context, tenantID, recordID string) (BonusRecord, error)
	ListBonusRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]BonusRecord, error)
	SaveBonusEvaluations(ctx context.Context, tenantID string, rec BonusRecord) (int, error)
	TransitionBonusRecord(ctx context.Context, tenantID string, rec BonusRecord, entry workflow.HistoryEntry) (int, error)

	CreateMeritRecord(ctx context.Context, tenantID string, rec MeritRecord, entry workflow.HistoryEntry) (MeritRecord, error)
	GetMeritRecord(ctx context.Context, tenantID, recordID string) (MeritRecord, error)
	ListMeritRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]MeritRecord, error)
	SaveMeritEvaluations(ctx context.Context, tenantID string, rec MeritRecord) (int, error)
	TransitionMeritRecord(ctx context.Context, tenantID string, rec MeritRecord, entry workflow.HistoryEntry) (int, error)

	ListHistory(ctx context.Context, tenantID string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error)
}
