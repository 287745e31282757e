package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pms/internal/domain/workflow"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu          sync.Mutex
	transitions map[string]uint64
	jobs        map[string]uint64
}

func New() *Collector {
	return &Collector{
		transitions: map[string]uint64{},
		jobs:        map[string]uint64{},
	}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordChanged counts workflow transitions per record type and action. It lets the collector
// be registered as a workflow observer.
func (c *Collector) RecordChanged(_ context.Context, evt workflow.Event) {
	c.mu.Lock()
	c.transitions[string(evt.RecordType)+"."+string(evt.Action)]++
	c.mu.Unlock()
}

func (c *Collector) RecordJob(jobType, status string) {
	c.mu.Lock()
	c.jobs[jobType+"."+status]++
	c.mu.Unlock()
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	transitions := copyCounts(c.transitions)
	jobs := copyCounts(c.jobs)
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":       total,
		"errorsTotal":         errs,
		"rateLimitedTotal":    limited,
		"avgDurationMs":       avg,
		"totalDurationMs":     totalMs,
		"workflowTransitions": transitions,
		"jobRuns":             jobs,
	}
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
