package appraisal

import (
	"context"
	"time"

	"pms/internal/domain/scoring"
)

type StoreAPI interface {
	CreateCycle(ctx context.Context, tenantID string, c Cycle) (Cycle, error)
	GetCycle(ctx context.Context, tenantID, cycleID string) (Cycle, error)
	ListCycles(ctx context.Context, tenantID, status string) ([]Cycle, error)
	UpdateCycleStatus(ctx context.Context, tenantID, cycleID, from, to string) error
	ListExpiredCycles(ctx context.Context, tenantID string, asOf time.Time) ([]Cycle, error)

	CreateAppraisal(ctx context.Context, tenantID string, a Appraisal) (Appraisal, error)
	GetAppraisal(ctx context.Context, tenantID, appraisalID string) (Appraisal, error)
	ListAppraisals(ctx context.Context, tenantID string, filter Filter) ([]Appraisal, error)
	SaveScores(ctx context.Context, tenantID string, a Appraisal) error

	ReplaceKRAs(ctx context.Context, tenantID, appraisalID string, kras []scoring.KRA) ([]scoring.KRA, error)
	ListKRAs(ctx context.Context, tenantID, appraisalID string) ([]scoring.KRA, error)
	ReplaceSelfRatings(ctx context.Context, tenantID, appraisalID string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error)
	ListSelfRatings(ctx context.Context, tenantID, appraisalID string) ([]scoring.SelfRating, error)

	CreateFeedback(ctx context.Context, tenantID string, fb Feedback) (Feedback, error)
	GetFeedback(ctx context.Context, tenantID, appraisalID, feedbackID string) (Feedback, error)
	ListFeedback(ctx context.Context, tenantID, appraisalID string) ([]Feedback, error)
	SubmitFeedback(ctx context.Context, tenantID string, fb Feedback) error
}
