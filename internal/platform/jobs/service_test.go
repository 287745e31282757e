package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
	details  map[string][]byte
	tenants  []string
}

func newFakeStore(tenants ...string) *fakeStore {
	return &fakeStore{finished: map[string]string{}, details: map[string][]byte{}, tenants: tenants}
}

func (f *fakeStore) StartRun(_ context.Context, tenantID, jobType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := jobType + ":" + tenantID
	f.started = append(f.started, id)
	return id, nil
}

func (f *fakeStore) FinishRun(_ context.Context, runID, status string, details []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[runID] = status
	f.details[runID] = details
	return nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ string, limit int) ([]Run, error) {
	return make([]Run, limit), nil
}

func (f *fakeStore) ListTenants(context.Context) ([]string, error) {
	return f.tenants, nil
}

func (f *fakeStore) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[id]
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordJob(jobType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[jobType+"."+status]++
}

func TestRunNowPersistsOutcome(t *testing.T) {
	store := newFakeStore()
	rec := &countingRecorder{}
	svc := New(store, rec)

	details, err := svc.RunNow(context.Background(), "compute", "t1", func(context.Context) (any, error) {
		return map[string]int{"computed": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"computed": 3}, details)
	assert.Equal(t, StatusCompleted, store.status("compute:t1"))
	assert.JSONEq(t, `{"computed":3}`, string(store.details["compute:t1"]))
	assert.Equal(t, 1, rec.counts["compute.completed"])

	boom := errors.New("boom")
	_, err = svc.RunNow(context.Background(), "compute", "t2", func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, store.status("compute:t2"))
	var failed map[string]any
	require.NoError(t, json.Unmarshal(store.details["compute:t2"], &failed))
	assert.Equal(t, "boom", failed["error"])
}

func TestEnqueueRunsOnWorker(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	done := make(chan struct{})
	require.True(t, svc.Enqueue("compute", "t1", func(context.Context) (any, error) {
		close(done)
		return nil, nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued job did not run")
	}
	cancel()
	svc.Wait()
}

func TestScheduleRunsPerTenant(t *testing.T) {
	store := newFakeStore("t1", "t2")
	svc := New(store, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	all := make(chan struct{})
	svc.Schedule("close_cycles", 10*time.Millisecond, func(_ context.Context, tenantID string) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if !seen[tenantID] {
			seen[tenantID] = true
			if len(seen) == 2 {
				close(all)
			}
		}
		return nil, nil
	})
	svc.Schedule("disabled", 0, func(context.Context, string) (any, error) {
		t.Error("job with zero interval must not run")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not reach every tenant")
	}
	cancel()
	svc.Wait()
}

func TestListRunsClampsLimit(t *testing.T) {
	svc := New(newFakeStore(), nil)
	runs, err := svc.ListRuns(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 50)
	runs, err = svc.ListRuns(context.Background(), "t1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 10)
}
