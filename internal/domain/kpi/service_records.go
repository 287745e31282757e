package kpi

import (
	"context"
	"fmt"
	"strings"

	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

func (s *Service) CreateBonusRecord(ctx context.Context, tenantID, employeeID, period string, actor workflow.Actor) (BonusRecord, error) {
	base, err := s.newRecord(ctx, tenantID, workflow.RecordKPIBonus, employeeID, period)
	if err != nil {
		return BonusRecord{}, err
	}
	rec := BonusRecord{Record: base, Period: strings.TrimSpace(period), Evaluations: map[string]scoring.Achievement{}}
	if err := s.scoreBonus(ctx, tenantID, &rec); err != nil {
		return BonusRecord{}, err
	}
	return s.store.CreateBonusRecord(ctx, tenantID, rec, workflow.Created(rec.Record, actor, s.now()))
}

// GetBonusRecord loads a record. While the record is still editable it is rescored against the
// employee's current KPI items; once checked it carries the score stored at check time.
func (s *Service) GetBonusRecord(ctx context.Context, tenantID, recordID string) (BonusRecord, error) {
	rec, err := s.store.GetBonusRecord(ctx, tenantID, recordID)
	if err != nil {
		return BonusRecord{}, err
	}
	if scoreFrozen(rec.Status) {
		return rec, nil
	}
	if err := s.scoreBonus(ctx, tenantID, &rec); err != nil {
		return BonusRecord{}, err
	}
	return rec, nil
}

func (s *Service) ListBonusRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]BonusRecord, error) {
	return s.store.ListBonusRecords(ctx, tenantID, filter)
}

// SaveBonusEvaluations merges achievement percentages into the record. The owner edits while the
// record is a draft or was rejected; the checker edits while it waits for them.
func (s *Service) SaveBonusEvaluations(ctx context.Context, tenantID, recordID string, evaluations map[string]scoring.Achievement, actor workflow.Actor, expectedVersion int) (BonusRecord, error) {
	rec, err := s.GetBonusRecord(ctx, tenantID, recordID)
	if err != nil {
		return BonusRecord{}, err
	}
	if expectedVersion > 0 && expectedVersion != rec.Version {
		return BonusRecord{}, ErrConcurrentUpdate
	}
	if !canEdit(rec.Record, actor) {
		return BonusRecord{}, ErrNotEditable
	}
	known := map[string]bool{}
	for _, item := range rec.Score.Items {
		known[item.ItemID] = true
	}
	if err := checkAchievements(evaluations, known); err != nil {
		return BonusRecord{}, err
	}
	for id, eval := range evaluations {
		rec.Evaluations[id] = eval
	}
	if err := s.scoreBonus(ctx, tenantID, &rec); err != nil {
		return BonusRecord{}, err
	}
	version, err := s.store.SaveBonusEvaluations(ctx, tenantID, rec)
	if err != nil {
		return BonusRecord{}, err
	}
	rec.Version = version
	return rec, nil
}

// UpdateBonusStatus applies one workflow transition. The returned event has already been
// delivered to the observers.
func (s *Service) UpdateBonusStatus(ctx context.Context, tenantID, recordID string, target workflow.Status, comment string, actor workflow.Actor, expectedVersion int) (BonusRecord, workflow.Event, error) {
	rec, err := s.GetBonusRecord(ctx, tenantID, recordID)
	if err != nil {
		return BonusRecord{}, workflow.Event{}, err
	}
	if expectedVersion > 0 && expectedVersion != rec.Version {
		return BonusRecord{}, workflow.Event{}, ErrConcurrentUpdate
	}
	next, entry, evt, err := workflow.Transition(rec.Record, target, actor, comment, s.now())
	if err != nil {
		return BonusRecord{}, workflow.Event{}, err
	}
	if movesForward(target) && !rec.Score.IsWeightValid {
		return BonusRecord{}, workflow.Event{}, fmt.Errorf("%w: total weight is %v", ErrWeightInvalid, rec.Score.TotalWeight)
	}
	rec.Record = next
	if !scoreFrozen(next.Status) {
		if err := s.scoreBonus(ctx, tenantID, &rec); err != nil {
			return BonusRecord{}, workflow.Event{}, err
		}
	}
	version, err := s.store.TransitionBonusRecord(ctx, tenantID, rec, entry)
	if err != nil {
		return BonusRecord{}, workflow.Event{}, err
	}
	rec.Version = version
	evt.TenantID = tenantID
	s.observers.RecordChanged(ctx, evt)
	return rec, evt, nil
}

func (s *Service) CreateMeritRecord(ctx context.Context, tenantID, employeeID, period string, actor workflow.Actor) (MeritRecord, error) {
	base, err := s.newRecord(ctx, tenantID, workflow.RecordKPIMerit, employeeID, period)
	if err != nil {
		return MeritRecord{}, err
	}
	rec := MeritRecord{
		Record:                base,
		Period:                strings.TrimSpace(period),
		KPIEvaluations:        map[string]scoring.Achievement{},
		CompetencyEvaluations: map[string]scoring.LevelRating{},
		CultureEvaluations:    map[string]scoring.LevelRating{},
	}
	if _, err := s.scoreMerit(ctx, tenantID, &rec); err != nil {
		return MeritRecord{}, err
	}
	return s.store.CreateMeritRecord(ctx, tenantID, rec, workflow.Created(rec.Record, actor, s.now()))
}

func (s *Service) GetMeritRecord(ctx context.Context, tenantID, recordID string) (MeritRecord, error) {
	rec, err := s.store.GetMeritRecord(ctx, tenantID, recordID)
	if err != nil {
		return MeritRecord{}, err
	}
	if scoreFrozen(rec.Status) {
		return rec, nil
	}
	if _, err := s.scoreMerit(ctx, tenantID, &rec); err != nil {
		return MeritRecord{}, err
	}
	return rec, nil
}

func (s *Service) ListMeritRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]MeritRecord, error) {
	return s.store.ListMeritRecords(ctx, tenantID, filter)
}

func (s *Service) SaveMeritEvaluations(ctx context.Context, tenantID, recordID string, evaluations MeritEvaluations, actor workflow.Actor, expectedVersion int) (MeritRecord, error) {
	rec, err := s.store.GetMeritRecord(ctx, tenantID, recordID)
	if err != nil {
		return MeritRecord{}, err
	}
	if expectedVersion > 0 && expectedVersion != rec.Version {
		return MeritRecord{}, ErrConcurrentUpdate
	}
	if !canEdit(rec.Record, actor) {
		return MeritRecord{}, ErrNotEditable
	}
	known, err := s.scoreMerit(ctx, tenantID, &rec)
	if err != nil {
		return MeritRecord{}, err
	}
	if err := checkAchievements(evaluations.KPI, known.items); err != nil {
		return MeritRecord{}, err
	}
	if err := checkLevels(evaluations.Competency, known.competency); err != nil {
		return MeritRecord{}, err
	}
	if err := checkLevels(evaluations.Culture, known.culture); err != nil {
		return MeritRecord{}, err
	}
	for id, eval := range evaluations.KPI {
		rec.KPIEvaluations[id] = eval
	}
	for id, eval := range evaluations.Competency {
		rec.CompetencyEvaluations[id] = eval
	}
	for id, eval := range evaluations.Culture {
		rec.CultureEvaluations[id] = eval
	}
	if _, err := s.scoreMerit(ctx, tenantID, &rec); err != nil {
		return MeritRecord{}, err
	}
	version, err := s.store.SaveMeritEvaluations(ctx, tenantID, rec)
	if err != nil {
		return MeritRecord{}, err
	}
	rec.Version = version
	return rec, nil
}

func (s *Service) UpdateMeritStatus(ctx context.Context, tenantID, recordID string, target workflow.Status, comment string, actor workflow.Actor, expectedVersion int) (MeritRecord, workflow.Event, error) {
	rec, err := s.GetMeritRecord(ctx, tenantID, recordID)
	if err != nil {
		return MeritRecord{}, workflow.Event{}, err
	}
	if expectedVersion > 0 && expectedVersion != rec.Version {
		return MeritRecord{}, workflow.Event{}, ErrConcurrentUpdate
	}
	next, entry, evt, err := workflow.Transition(rec.Record, target, actor, comment, s.now())
	if err != nil {
		return MeritRecord{}, workflow.Event{}, err
	}
	if movesForward(target) && !rec.IsWeightValid {
		return MeritRecord{}, workflow.Event{}, ErrWeightInvalid
	}
	rec.Record = next
	if !scoreFrozen(next.Status) {
		if _, err := s.scoreMerit(ctx, tenantID, &rec); err != nil {
			return MeritRecord{}, workflow.Event{}, err
		}
	}
	version, err := s.store.TransitionMeritRecord(ctx, tenantID, rec, entry)
	if err != nil {
		return MeritRecord{}, workflow.Event{}, err
	}
	rec.Version = version
	evt.TenantID = tenantID
	s.observers.RecordChanged(ctx, evt)
	return rec, evt, nil
}

func (s *Service) History(ctx context.Context, tenantID string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error) {
	return s.store.ListHistory(ctx, tenantID, recordType, recordID)
}

func (s *Service) newRecord(ctx context.Context, tenantID string, recordType workflow.RecordType, employeeID, period string) (workflow.Record, error) {
	if strings.TrimSpace(employeeID) == "" || strings.TrimSpace(period) == "" {
		return workflow.Record{}, fmt.Errorf("%w: employee and period are required", ErrInvalidEvaluation)
	}
	chain, err := s.directory.ReviewChain(ctx, tenantID, employeeID)
	if err != nil {
		return workflow.Record{}, err
	}
	if chain.CheckerID == "" {
		return workflow.Record{}, ErrNoReviewer
	}
	rec := workflow.Record{
		Type:       recordType,
		EmployeeID: employeeID,
		CheckerID:  chain.CheckerID,
		ApproverID: chain.ApproverID,
		Status:     workflow.StatusDraft,
	}
	rec.Sync()
	return rec, nil
}

func (s *Service) employeeItems(ctx context.Context, tenantID, employeeID, period string) ([]scoring.WeightedItem, error) {
	items, err := s.store.ListItems(ctx, tenantID, ItemFilter{EmployeeID: employeeID, Period: period, Level: LevelIndividual})
	if err != nil {
		return nil, err
	}
	out := make([]scoring.WeightedItem, 0, len(items))
	for _, item := range items {
		out = append(out, scoring.WeightedItem{ID: item.ID, Weight: item.Weight})
	}
	return out, nil
}

func (s *Service) activeCriteria(ctx context.Context, tenantID, kind string) ([]scoring.WeightedItem, error) {
	criteria, err := s.store.ListCriteria(ctx, tenantID, kind, true)
	if err != nil {
		return nil, err
	}
	out := make([]scoring.WeightedItem, 0, len(criteria))
	for _, c := range criteria {
		out = append(out, scoring.WeightedItem{ID: c.ID, Weight: c.Weight})
	}
	return out, nil
}

func (s *Service) scoreBonus(ctx context.Context, tenantID string, rec *BonusRecord) error {
	items, err := s.employeeItems(ctx, tenantID, rec.EmployeeID, rec.Period)
	if err != nil {
		return err
	}
	if rec.Evaluations == nil {
		rec.Evaluations = map[string]scoring.Achievement{}
	}
	rec.Score = scoring.CalculateKPIBonusScore(items, rec.Evaluations)
	return nil
}

type meritKeys struct {
	items      map[string]bool
	competency map[string]bool
	culture    map[string]bool
}

func idSet(items []scoring.WeightedItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item.ID] = true
	}
	return out
}

func (s *Service) scoreMerit(ctx context.Context, tenantID string, rec *MeritRecord) (meritKeys, error) {
	items, err := s.employeeItems(ctx, tenantID, rec.EmployeeID, rec.Period)
	if err != nil {
		return meritKeys{}, err
	}
	competency, err := s.activeCriteria(ctx, tenantID, CriterionCompetency)
	if err != nil {
		return meritKeys{}, err
	}
	culture, err := s.activeCriteria(ctx, tenantID, CriterionCulture)
	if err != nil {
		return meritKeys{}, err
	}
	if rec.KPIEvaluations == nil {
		rec.KPIEvaluations = map[string]scoring.Achievement{}
	}
	if rec.CompetencyEvaluations == nil {
		rec.CompetencyEvaluations = map[string]scoring.LevelRating{}
	}
	if rec.CultureEvaluations == nil {
		rec.CultureEvaluations = map[string]scoring.LevelRating{}
	}
	rec.KPIScore = scoring.CalculateKPIBonusScore(items, rec.KPIEvaluations)
	rec.CompetencyScore = scoring.CalculateCompetencyScore(competency, rec.CompetencyEvaluations)
	rec.CultureScore = scoring.CalculateCultureScore(culture, rec.CultureEvaluations)
	rec.Merit = scoring.CalculateKPIMeritScore(rec.KPIScore.TotalScore, rec.CompetencyScore.TotalScore, rec.CultureScore.TotalScore)
	rec.IsWeightValid = rec.KPIScore.IsWeightValid && rec.CompetencyScore.IsWeightValid && rec.CultureScore.IsWeightValid
	return meritKeys{items: idSet(items), competency: idSet(competency), culture: idSet(culture)}, nil
}

func canEdit(rec workflow.Record, actor workflow.Actor) bool {
	switch rec.Status {
	case workflow.StatusDraft, workflow.StatusRejected:
		return actor.Has(workflow.StepSelf)
	case workflow.StatusPendingChecker:
		return actor.Has(workflow.StepChecker)
	}
	return false
}

// scoreFrozen reports whether the stored score is final. Past the checker nobody can edit
// evaluations, so later item or criterion changes must not move the score.
func scoreFrozen(status workflow.Status) bool {
	return status == workflow.StatusPendingApprover || status == workflow.StatusApproved
}

func movesForward(target workflow.Status) bool {
	switch target {
	case workflow.StatusPendingChecker, workflow.StatusPendingApprover, workflow.StatusApproved:
		return true
	}
	return false
}

func checkAchievements(evaluations map[string]scoring.Achievement, known map[string]bool) error {
	for id, eval := range evaluations {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		if eval.AchievementPercentage < 0 {
			return fmt.Errorf("%w: achievement for %s is negative", ErrInvalidEvaluation, id)
		}
	}
	return nil
}

func checkLevels(evaluations map[string]scoring.LevelRating, known map[string]bool) error {
	for id, eval := range evaluations {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		if eval.Level < 0 || eval.Level > 5 {
			return fmt.Errorf("%w: level for %s must be between 0 and 5", ErrInvalidEvaluation, id)
		}
	}
	return nil
}
