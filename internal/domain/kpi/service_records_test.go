package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/core"
	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

const (
	testTenant = "t1"
	testPeriod = "2026-Q1"
)

var (
	owner    = workflow.Actor{ID: "emp", Name: "Ada", Roles: []workflow.Step{workflow.StepSelf}}
	checker  = workflow.Actor{ID: "mgr", Name: "Grace", Roles: []workflow.Step{workflow.StepChecker}}
	approver = workflow.Actor{ID: "head", Name: "Linus", Roles: []workflow.Step{workflow.StepApprover}}
)

type fixture struct {
	svc    *Service
	store  *memStore
	events []workflow.Event
}

func newFixture(weights ...float64) *fixture {
	f := &fixture{store: newMemStore()}
	dir := staticDirectory{"emp": core.ReviewChain{CheckerID: "mgr", ApproverID: "head"}}
	f.svc = NewService(f.store, dir, workflow.ObserverFunc(func(_ context.Context, evt workflow.Event) {
		f.events = append(f.events, evt)
	}))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	for i, w := range weights {
		f.store.items = append(f.store.items, Item{
			ID:         []string{"a", "b", "c"}[i],
			EmployeeID: "emp",
			Level:      LevelIndividual,
			Period:     testPeriod,
			Name:       "kpi",
			Weight:     w,
		})
	}
	return f
}

func TestCreateBonusRecordResolvesReviewers(t *testing.T) {
	f := newFixture(60, 40)

	rec, err := f.svc.CreateBonusRecord(context.Background(), testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusDraft, rec.Status)
	assert.Equal(t, workflow.StepSelf, rec.Step)
	assert.Equal(t, "mgr", rec.CheckerID)
	assert.Equal(t, "head", rec.ApproverID)
	assert.True(t, rec.Score.IsWeightValid)

	history, err := f.svc.History(context.Background(), testTenant, workflow.RecordKPIBonus, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, workflow.ActionCreated, history[0].Action)

	_, err = f.svc.CreateBonusRecord(context.Background(), testTenant, "emp", testPeriod, owner)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestCreateBonusRecordWithoutManager(t *testing.T) {
	f := newFixture(100)

	_, err := f.svc.CreateBonusRecord(context.Background(), testTenant, "orphan", testPeriod, owner)
	assert.ErrorIs(t, err, ErrNoReviewer)
}

func TestBonusRecordFullApproval(t *testing.T) {
	f := newFixture(60, 40)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)

	rec, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{
		"a": {AchievementPercentage: 100},
		"b": {AchievementPercentage: 50},
	}, owner, rec.Version)
	require.NoError(t, err)
	assert.InDelta(t, 80, rec.Score.TotalScore, 1e-9)

	rec, evt, err := f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, workflow.ActionSubmitted, evt.Action)
	assert.Equal(t, testTenant, evt.TenantID)
	assert.NotNil(t, rec.SubmittedAt)

	rec, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingApprover, "solid quarter", checker, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, "solid quarter", rec.CheckerFeedback)

	rec, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusApproved, "ok", approver, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, rec.Status)

	history, err := f.svc.History(ctx, testTenant, workflow.RecordKPIBonus, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
	require.Len(t, f.events, 3)
	assert.Equal(t, workflow.ActionApproved, f.events[2].Action)

	stored, err := f.svc.GetBonusRecord(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, stored.Status)
	assert.InDelta(t, 80, stored.Score.TotalScore, 1e-9)
}

func TestBonusSubmitRefusedWhenWeightsInvalid(t *testing.T) {
	f := newFixture(60)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	assert.False(t, rec.Score.IsWeightValid)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	assert.ErrorIs(t, err, ErrWeightInvalid)

	stored, err := f.svc.GetBonusRecord(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusDraft, stored.Status)
	assert.Empty(t, f.events)
}

func TestBonusRejectAndReopen(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	rec, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	require.NoError(t, err)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusRejected, "  ", checker, 0)
	assert.ErrorIs(t, err, workflow.ErrRejectionReasonRequired)

	rec, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusRejected, "missing evidence", checker, 0)
	require.NoError(t, err)
	assert.Equal(t, "missing evidence", rec.RejectionReason)
	assert.Equal(t, workflow.StepSelf, rec.Step)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusApproved, "", approver, 0)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	rec, evt, err := f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusDraft, "", owner, 0)
	require.NoError(t, err)
	assert.Equal(t, workflow.ActionReopened, evt.Action)
	assert.Equal(t, workflow.StatusDraft, rec.Status)
}

func TestBonusWrongActor(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", checker, 0)
	assert.ErrorIs(t, err, workflow.ErrActorNotAllowed)
}

func TestSaveBonusEvaluationsRules(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)

	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"a": {AchievementPercentage: 10}}, checker, 0)
	assert.ErrorIs(t, err, ErrNotEditable)

	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"zzz": {AchievementPercentage: 10}}, owner, 0)
	assert.ErrorIs(t, err, ErrUnknownItem)

	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"a": {AchievementPercentage: -1}}, owner, 0)
	assert.ErrorIs(t, err, ErrInvalidEvaluation)

	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"a": {AchievementPercentage: 10}}, owner, rec.Version+5)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	require.NoError(t, err)

	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"a": {AchievementPercentage: 10}}, owner, 0)
	assert.ErrorIs(t, err, ErrNotEditable)

	updated, err := f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{"a": {AchievementPercentage: 90}}, checker, 0)
	require.NoError(t, err)
	assert.InDelta(t, 90, updated.Score.TotalScore, 1e-9)
}

func TestUpdateBonusStatusStaleVersion(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, rec.Version)
	require.NoError(t, err)

	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingApprover, "", checker, rec.Version)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestMeritRecordScoring(t *testing.T) {
	f := newFixture(100)
	f.store.criteria = []Criterion{
		{ID: "c1", Kind: CriterionCompetency, Name: "Ownership", Weight: 100, Active: true},
		{ID: "c-old", Kind: CriterionCompetency, Name: "Retired", Weight: 50, Active: false},
		{ID: "k1", Kind: CriterionCulture, Name: "Candor", Weight: 100, Active: true},
	}
	ctx := context.Background()
	rec, err := f.svc.CreateMeritRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	assert.True(t, rec.IsWeightValid)

	rec, err = f.svc.SaveMeritEvaluations(ctx, testTenant, rec.ID, MeritEvaluations{
		KPI:        map[string]scoring.Achievement{"a": {AchievementPercentage: 80}},
		Competency: map[string]scoring.LevelRating{"c1": {Level: 4}},
		Culture:    map[string]scoring.LevelRating{"k1": {Level: 5}},
	}, owner, 0)
	require.NoError(t, err)
	assert.InDelta(t, 80, rec.KPIScore.TotalScore, 1e-9)
	assert.InDelta(t, 1700, rec.CompetencyScore.TotalScore, 1e-9)
	assert.InDelta(t, 1900, rec.CultureScore.TotalScore, 1e-9)
	assert.InDelta(t, 32+510+570, rec.Merit.TotalScore, 1e-9)

	_, err = f.svc.SaveMeritEvaluations(ctx, testTenant, rec.ID, MeritEvaluations{
		Competency: map[string]scoring.LevelRating{"c1": {Level: 6}},
	}, owner, 0)
	assert.ErrorIs(t, err, ErrInvalidEvaluation)

	_, err = f.svc.SaveMeritEvaluations(ctx, testTenant, rec.ID, MeritEvaluations{
		Competency: map[string]scoring.LevelRating{"k1": {Level: 3}},
	}, owner, 0)
	assert.ErrorIs(t, err, ErrUnknownItem)

	rec, evt, err := f.svc.UpdateMeritStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	require.NoError(t, err)
	assert.Equal(t, workflow.RecordKPIMerit, evt.RecordType)
	assert.Equal(t, workflow.StatusPendingChecker, rec.Status)
}

func TestMeritSubmitRefusedWhenCriteriaWeightsInvalid(t *testing.T) {
	f := newFixture(100)
	f.store.criteria = []Criterion{
		{ID: "c1", Kind: CriterionCompetency, Weight: 90, Active: true},
		{ID: "k1", Kind: CriterionCulture, Weight: 100, Active: true},
	}
	ctx := context.Background()
	rec, err := f.svc.CreateMeritRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)

	_, _, err = f.svc.UpdateMeritStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	assert.ErrorIs(t, err, ErrWeightInvalid)
}

func TestBonusScoreFixedOnceChecked(t *testing.T) {
	f := newFixture(60, 40)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	rec, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{
		"a": {AchievementPercentage: 60},
		"b": {AchievementPercentage: 100},
	}, owner, 0)
	require.NoError(t, err)
	for _, step := range []struct {
		status workflow.Status
		actor  workflow.Actor
	}{
		{workflow.StatusPendingChecker, owner},
		{workflow.StatusPendingApprover, checker},
		{workflow.StatusApproved, approver},
	} {
		_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, step.status, "", step.actor, 0)
		require.NoError(t, err)
	}

	_, err = f.svc.UpdateItem(ctx, testTenant, Item{ID: "a", Category: "delivery", Name: "kpi", Weight: 10})
	require.NoError(t, err)

	stored, err := f.svc.GetBonusRecord(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, stored.Status)
	assert.InDelta(t, 76, stored.Score.TotalScore, 1e-9)
	assert.InDelta(t, 100, stored.Score.TotalWeight, 1e-9)
	assert.True(t, stored.Score.IsWeightValid)
	require.Len(t, stored.Score.Items, 2)

	listed, err := f.svc.ListBonusRecords(ctx, testTenant, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.InDelta(t, stored.Score.TotalScore, listed[0].Score.TotalScore, 1e-9)
}

func TestBonusRescoredAfterReopen(t *testing.T) {
	f := newFixture(60, 40)
	ctx := context.Background()
	rec, err := f.svc.CreateBonusRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	_, err = f.svc.SaveBonusEvaluations(ctx, testTenant, rec.ID, map[string]scoring.Achievement{
		"a": {AchievementPercentage: 100},
	}, owner, 0)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusPendingApprover, "", checker, 0)
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(ctx, testTenant, Item{ID: "a", Category: "delivery", Name: "kpi", Weight: 50})
	require.NoError(t, err)
	frozen, err := f.svc.GetBonusRecord(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60, frozen.Score.TotalScore, 1e-9)

	reopened, _, err := f.svc.UpdateBonusStatus(ctx, testTenant, rec.ID, workflow.StatusRejected, "weights changed", approver, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50, reopened.Score.TotalScore, 1e-9)
	assert.False(t, reopened.Score.IsWeightValid)
}

func TestMeritScoreFixedOnceChecked(t *testing.T) {
	f := newFixture(100)
	f.store.criteria = []Criterion{
		{ID: "c1", Kind: CriterionCompetency, Name: "Ownership", Weight: 100, Active: true},
		{ID: "k1", Kind: CriterionCulture, Name: "Candor", Weight: 100, Active: true},
	}
	ctx := context.Background()
	rec, err := f.svc.CreateMeritRecord(ctx, testTenant, "emp", testPeriod, owner)
	require.NoError(t, err)
	_, err = f.svc.SaveMeritEvaluations(ctx, testTenant, rec.ID, MeritEvaluations{
		KPI:        map[string]scoring.Achievement{"a": {AchievementPercentage: 80}},
		Competency: map[string]scoring.LevelRating{"c1": {Level: 4}},
		Culture:    map[string]scoring.LevelRating{"k1": {Level: 5}},
	}, owner, 0)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateMeritStatus(ctx, testTenant, rec.ID, workflow.StatusPendingChecker, "", owner, 0)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateMeritStatus(ctx, testTenant, rec.ID, workflow.StatusPendingApprover, "", checker, 0)
	require.NoError(t, err)
	_, _, err = f.svc.UpdateMeritStatus(ctx, testTenant, rec.ID, workflow.StatusApproved, "", approver, 0)
	require.NoError(t, err)

	f.store.criteria[0].Weight = 40
	_, err = f.svc.UpdateItem(ctx, testTenant, Item{ID: "a", Category: "delivery", Name: "kpi", Weight: 30})
	require.NoError(t, err)

	stored, err := f.svc.GetMeritRecord(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 32+510+570, stored.Merit.TotalScore, 1e-9)
	assert.True(t, stored.IsWeightValid)
}
