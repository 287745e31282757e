package appraisalhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/domain/scoring"
	"pms/internal/platform/jobs"
	"pms/internal/transport/http/middleware"
)

const (
	cycleID     = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	appraisalID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	feedbackID  = "cccccccc-cccc-cccc-cccc-cccccccccccc"
	ownerID     = "11111111-1111-1111-1111-111111111111"
	managerID   = "22222222-2222-2222-2222-222222222222"
	peerID      = "33333333-3333-3333-3333-333333333333"
)

type fakeService struct {
	Service
	appraisal    appraisal.Appraisal
	createdCycle appraisal.Cycle
	submittedBy  string
	computed     []string
	cycleErr     error
}

func (f *fakeService) GetAppraisal(_ context.Context, _, id string) (appraisal.Appraisal, error) {
	if id != f.appraisal.ID {
		return appraisal.Appraisal{}, appraisal.ErrNotFound
	}
	return f.appraisal, nil
}

func (f *fakeService) CreateCycle(_ context.Context, _ string, c appraisal.Cycle) (appraisal.Cycle, error) {
	if f.cycleErr != nil {
		return appraisal.Cycle{}, f.cycleErr
	}
	c.ID = cycleID
	f.createdCycle = c
	return c, nil
}

func (f *fakeService) GetCycle(_ context.Context, _, id string) (appraisal.Cycle, error) {
	if id != cycleID {
		return appraisal.Cycle{}, appraisal.ErrCycleNotFound
	}
	return appraisal.Cycle{ID: id}, nil
}

func (f *fakeService) ComputeCycle(_ context.Context, _, id string) (appraisal.CycleRun, error) {
	f.computed = append(f.computed, id)
	return appraisal.CycleRun{CycleID: id, Computed: 1}, nil
}

func (f *fakeService) SetSelfRatings(_ context.Context, _, _ string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error) {
	return ratings, nil
}

func (f *fakeService) SubmitFeedback(_ context.Context, _, _, id, reviewerID string, total float64, _ string) (appraisal.Feedback, error) {
	f.submittedBy = reviewerID
	if reviewerID != peerID {
		return appraisal.Feedback{}, appraisal.ErrNotReviewer
	}
	return appraisal.Feedback{ID: id, ReviewerID: reviewerID, TotalScore: total, Status: scoring.FeedbackStatusSubmitted}, nil
}

func (f *fakeService) Compute(_ context.Context, _, id string) (appraisal.Result, error) {
	return appraisal.Result{Appraisal: f.appraisal, Final: scoring.FinalScore{Score: 3.5, Method: "mean"}}, nil
}

type employees map[string]core.Employee

func (e employees) GetEmployeeByUserID(_ context.Context, _, userID string) (core.Employee, error) {
	emp, ok := e[userID]
	if !ok {
		return core.Employee{}, core.ErrNotFound
	}
	return emp, nil
}

type rolePerms map[string][]string

func (p rolePerms) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	for _, perm := range p[roleID] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}

// syncQueue runs jobs inline so tests can observe them.
type syncQueue struct {
	full bool
	runs []string
}

func (q *syncQueue) Enqueue(jobType, _ string, run jobs.RunFunc) bool {
	if q.full {
		return false
	}
	q.runs = append(q.runs, jobType)
	_, _ = run(context.Background())
	return true
}

type fixture struct {
	svc    *fakeService
	queue  *syncQueue
	router chi.Router
}

func newFixture() fixture {
	svc := &fakeService{appraisal: appraisal.Appraisal{
		ID:         appraisalID,
		CycleID:    cycleID,
		EmployeeID: ownerID,
		ManagerID:  managerID,
		Feedback:   []appraisal.Feedback{{ID: feedbackID, ReviewerID: peerID}},
	}}
	dir := employees{
		"u-owner":   {ID: ownerID},
		"u-manager": {ID: managerID},
		"u-peer":    {ID: peerID},
		"u-other":   {ID: "44444444-4444-4444-4444-444444444444"},
	}
	perms := rolePerms{
		auth.RoleEmployee: auth.RolePermissions[auth.RoleEmployee],
		auth.RoleManager:  auth.RolePermissions[auth.RoleManager],
		auth.RoleHR:       auth.RolePermissions[auth.RoleHR],
	}
	queue := &syncQueue{}
	h := NewHandler(svc, dir, perms, nil, queue)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return fixture{svc: svc, queue: queue, router: r}
}

func (f fixture) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: userID, TenantID: "t1", RoleID: role, RoleName: role}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCycleParsesDates(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/appraisal/cycles", "u-hr", auth.RoleHR, map[string]any{
		"name":                              "FY25",
		"startDate":                         "2025-01-01",
		"endDate":                           "2025-12-31",
		"calculateFinalScoreBasedOnFormula": true,
		"finalScoreFormula":                 "goal_score * 0.5 + average_feedback_score * 0.5",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2025, f.svc.createdCycle.StartDate.Year())
	assert.Equal(t, 12, int(f.svc.createdCycle.EndDate.Month()))
	assert.True(t, f.svc.createdCycle.UseFormula)
}

func TestCreateCycleRejectsReversedDates(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/appraisal/cycles", "u-hr", auth.RoleHR, map[string]any{
		"name": "FY25", "startDate": "2025-12-31", "endDate": "2025-01-01",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestCreateCycleMapsFormulaError(t *testing.T) {
	f := newFixture()
	f.svc.cycleErr = fmt.Errorf("%w: unknown identifier", appraisal.ErrInvalidFormula)

	rec := f.do(t, http.MethodPost, "/appraisal/cycles", "u-hr", auth.RoleHR, map[string]any{
		"name": "FY25", "startDate": "2025-01-01", "endDate": "2025-12-31",
		"calculateFinalScoreBasedOnFormula": true, "finalScoreFormula": "bonus * 2",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_formula")
}

func TestCycleManagementNeedsManagePermission(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/appraisal/cycles/"+cycleID+"/compute", "u-manager", auth.RoleManager, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestComputeCycleQueuesJob(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/appraisal/cycles/"+cycleID+"/compute", "u-hr", auth.RoleHR, nil)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{appraisal.JobTypeComputeCycle}, f.queue.runs)
	assert.Equal(t, []string{cycleID}, f.svc.computed)

	f.queue.full = true
	rec = f.do(t, http.MethodPost, "/appraisal/cycles/"+cycleID+"/compute", "u-hr", auth.RoleHR, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSelfRatingsOnlyByOwner(t *testing.T) {
	f := newFixture()
	body := map[string]any{"ratings": []map[string]any{{"criterion": "Delivery", "rating": 4, "maxRating": 5, "weightage": 100}}}

	rec := f.do(t, http.MethodPut, "/appraisal/appraisals/"+appraisalID+"/self-ratings", "u-manager", auth.RoleManager, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/appraisal/appraisals/"+appraisalID+"/self-ratings", "u-owner", auth.RoleEmployee, body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestViewerAccess(t *testing.T) {
	f := newFixture()

	for user, want := range map[string]int{
		"u-owner":   http.StatusOK,
		"u-manager": http.StatusOK,
		"u-peer":    http.StatusOK,
		"u-other":   http.StatusForbidden,
	} {
		rec := f.do(t, http.MethodGet, "/appraisal/appraisals/"+appraisalID, user, auth.RoleEmployee, nil)
		assert.Equal(t, want, rec.Code, user)
	}
}

func TestSubmitFeedbackUsesCallerAsReviewer(t *testing.T) {
	f := newFixture()
	path := "/appraisal/appraisals/" + appraisalID + "/feedback/" + feedbackID + "/submit"

	rec := f.do(t, http.MethodPost, path, "u-peer", auth.RoleEmployee, map[string]any{"totalScore": 4.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, peerID, f.svc.submittedBy)

	rec = f.do(t, http.MethodPost, path, "u-other", auth.RoleEmployee, map[string]any{"totalScore": 4.5})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestComputeOnlyByManager(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/appraisal/appraisals/"+appraisalID+"/compute", "u-owner", auth.RoleEmployee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/appraisal/appraisals/"+appraisalID+"/compute", "u-manager", auth.RoleManager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"score":3.5`)
}
