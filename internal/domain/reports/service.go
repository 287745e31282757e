package reports

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pms/internal/domain/core"
	"pms/internal/domain/kpi"
	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
	"pms/internal/platform/jobs"
)

type StoreAPI interface {
	CountByStatus(ctx context.Context, tenantID, table, period string) (map[string]int, error)
	PendingFor(ctx context.Context, tenantID, table, employeeID string) (int, error)
	MeritTotals(ctx context.Context, tenantID, period string) ([]float64, error)
	ActiveCycles(ctx context.Context, tenantID string) (int, error)
}

// MeritSource reads merit records and their history.
type MeritSource interface {
	GetMeritRecord(ctx context.Context, tenantID, recordID string) (kpi.MeritRecord, error)
	History(ctx context.Context, tenantID string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error)
}

type EmployeeLookup interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (core.Employee, error)
}

type JobLister interface {
	ListRuns(ctx context.Context, tenantID string, limit int) ([]jobs.Run, error)
}

type Service struct {
	store     StoreAPI
	merit     MeritSource
	employees EmployeeLookup
	jobs      JobLister
}

func NewService(store StoreAPI, merit MeritSource, employees EmployeeLookup, jobList JobLister) *Service {
	return &Service{store: store, merit: merit, employees: employees, jobs: jobList}
}

type Dashboard struct {
	Period            string         `json:"period,omitempty"`
	BonusByStatus     map[string]int `json:"bonusByStatus"`
	MeritByStatus     map[string]int `json:"meritByStatus"`
	PendingBonusForMe int            `json:"pendingBonusForMe"`
	PendingMeritForMe int            `json:"pendingMeritForMe"`
	MeritRecords      int            `json:"meritRecords"`
	AverageMerit      float64        `json:"averageMeritScore"`
	MeritLevels       map[int]int    `json:"meritLevelDistribution"`
	ActiveCycles      int            `json:"activeAppraisalCycles"`
}

// Dashboard gathers the tenant's workflow counters concurrently. Pending counts are only filled
// when employeeID is set.
func (s *Service) Dashboard(ctx context.Context, tenantID, employeeID, period string) (Dashboard, error) {
	out := Dashboard{Period: period}
	var totals []float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.BonusByStatus, err = s.store.CountByStatus(gctx, tenantID, bonusTable, period)
		return err
	})
	g.Go(func() error {
		var err error
		out.MeritByStatus, err = s.store.CountByStatus(gctx, tenantID, meritTable, period)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.store.MeritTotals(gctx, tenantID, period)
		return err
	})
	g.Go(func() error {
		var err error
		out.ActiveCycles, err = s.store.ActiveCycles(gctx, tenantID)
		return err
	})
	if employeeID != "" {
		g.Go(func() error {
			var err error
			out.PendingBonusForMe, err = s.store.PendingFor(gctx, tenantID, bonusTable, employeeID)
			return err
		})
		g.Go(func() error {
			var err error
			out.PendingMeritForMe, err = s.store.PendingFor(gctx, tenantID, meritTable, employeeID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	out.MeritRecords = len(totals)
	out.AverageMerit, out.MeritLevels = meritDistribution(totals)
	return out, nil
}

func meritDistribution(totals []float64) (float64, map[int]int) {
	levels := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	if len(totals) == 0 {
		return 0, levels
	}
	sum := 0.0
	for _, v := range totals {
		sum += v
		levels[scoring.ConvertPercentageToLevel(v)]++
	}
	return scoring.Round2(sum / float64(len(totals))), levels
}

func (s *Service) JobRuns(ctx context.Context, tenantID string, limit int) ([]jobs.Run, error) {
	return s.jobs.ListRuns(ctx, tenantID, limit)
}
