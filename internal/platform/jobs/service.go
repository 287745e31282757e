package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunFunc does the work of one job and returns details persisted on the job run.
type RunFunc func(ctx context.Context) (any, error)

// TenantFunc is a scheduled job body, invoked once per tenant on every tick.
type TenantFunc func(ctx context.Context, tenantID string) (any, error)

// Recorder is notified when a job finishes; the metrics collector implements it.
type Recorder interface {
	RecordJob(jobType, status string)
}

type Service struct {
	store    Store
	recorder Recorder
	queue    chan job

	mu        sync.Mutex
	schedules []schedule
	wg        sync.WaitGroup
}

type job struct {
	Type     string
	TenantID string
	Run      RunFunc
}

type schedule struct {
	jobType  string
	interval time.Duration
	run      TenantFunc
}

func New(store Store, recorder Recorder) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		queue:    make(chan job, 128),
	}
}

// Schedule registers a periodic per-tenant job. It must be called before Start.
func (s *Service) Schedule(jobType string, interval time.Duration, run TenantFunc) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	s.schedules = append(s.schedules, schedule{jobType: jobType, interval: interval, run: run})
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)

	s.mu.Lock()
	schedules := append([]schedule(nil), s.schedules...)
	s.mu.Unlock()
	for _, sch := range schedules {
		s.wg.Add(1)
		go s.runSchedule(ctx, sch)
	}
}

// Wait blocks until the worker and schedulers have exited after ctx cancellation.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType, tenantID string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

func (s *Service) ListRuns(ctx context.Context, tenantID string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRuns(ctx, tenantID, limit)
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.store.StartRun(ctx, j.TenantID, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, runErr := j.Run(ctx)
	status := StatusCompleted
	if runErr != nil {
		status = StatusFailed
		details = map[string]any{"error": runErr.Error(), "details": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if err := s.store.FinishRun(ctx, runID, status, detailsJSON); err != nil {
			slog.Warn("job run update failed", "runId", runID, "err", err)
		}
	}
	if s.recorder != nil {
		s.recorder.RecordJob(j.Type, status)
	}
	return details, runErr
}

func (s *Service) runSchedule(ctx context.Context, sch schedule) {
	defer s.wg.Done()
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tenants, err := s.store.ListTenants(ctx)
			if err != nil {
				slog.Warn("scheduler tenant lookup failed", "jobType", sch.jobType, "err", err)
				continue
			}
			for _, tenantID := range tenants {
				tenant := tenantID
				s.Enqueue(sch.jobType, tenant, func(ctx context.Context) (any, error) {
					return sch.run(ctx, tenant)
				})
			}
		}
	}
}
