package appraisal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"pms/internal/domain/core"
	"pms/internal/domain/notifications"
	"pms/internal/domain/scoring"
)

// Directory resolves an employee's manager.
type Directory interface {
	ReviewChain(ctx context.Context, tenantID, employeeID string) (core.ReviewChain, error)
}

// Notifier delivers in-app notifications to employees.
type Notifier interface {
	NotifyEmployee(ctx context.Context, tenantID, employeeID, ntype, title, body string) error
}

type Service struct {
	store     StoreAPI
	directory Directory
	notifier  Notifier
	now       func() time.Time
}

func NewService(store StoreAPI, directory Directory, notifier Notifier) *Service {
	return &Service{store: store, directory: directory, notifier: notifier, now: time.Now}
}

func (s *Service) CreateCycle(ctx context.Context, tenantID string, c Cycle) (Cycle, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Formula = strings.TrimSpace(c.Formula)
	if c.Name == "" {
		return Cycle{}, fmt.Errorf("%w: name is required", ErrInvalidCycle)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.EndDate.Before(c.StartDate) {
		return Cycle{}, fmt.Errorf("%w: end date must not be before start date", ErrInvalidCycle)
	}
	switch c.EvaluationMethod {
	case "":
		c.EvaluationMethod = scoring.EvaluationMethodManual
	case scoring.EvaluationMethodManual, scoring.EvaluationMethodAutomatic:
	default:
		return Cycle{}, fmt.Errorf("%w: unknown evaluation method %q", ErrInvalidCycle, c.EvaluationMethod)
	}
	if c.UseFormula {
		if c.Formula == "" {
			return Cycle{}, fmt.Errorf("%w: formula mode needs a formula", ErrInvalidFormula)
		}
		if _, err := scoring.ParseFormula(c.Formula); err != nil {
			return Cycle{}, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
		}
	}
	c.Status = CycleStatusDraft
	return s.store.CreateCycle(ctx, tenantID, c)
}

func (s *Service) GetCycle(ctx context.Context, tenantID, cycleID string) (Cycle, error) {
	return s.store.GetCycle(ctx, tenantID, cycleID)
}

func (s *Service) ListCycles(ctx context.Context, tenantID, status string) ([]Cycle, error) {
	return s.store.ListCycles(ctx, tenantID, status)
}

// UpdateCycleStatus moves a cycle one step along draft, active, closed.
func (s *Service) UpdateCycleStatus(ctx context.Context, tenantID, cycleID, target string) (Cycle, error) {
	c, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return Cycle{}, err
	}
	if cycleTransitions[c.Status] != target {
		return Cycle{}, fmt.Errorf("%w: %s -> %s", ErrCycleTransition, c.Status, target)
	}
	if err := s.store.UpdateCycleStatus(ctx, tenantID, cycleID, c.Status, target); err != nil {
		return Cycle{}, err
	}
	c.Status = target
	if target == CycleStatusClosed {
		s.notifyCycleClosed(ctx, tenantID, c)
	}
	return c, nil
}

// CloseExpiredCycles closes every active cycle whose end date has passed. It runs per tenant on
// the scheduler.
func (s *Service) CloseExpiredCycles(ctx context.Context, tenantID string) (any, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	cycles, err := s.store.ListExpiredCycles(ctx, tenantID, today)
	if err != nil {
		return nil, err
	}
	closed := []string{}
	for _, c := range cycles {
		err := s.store.UpdateCycleStatus(ctx, tenantID, c.ID, CycleStatusActive, CycleStatusClosed)
		if errors.Is(err, ErrCycleTransition) {
			continue
		}
		if err != nil {
			return map[string]any{"closed": closed}, err
		}
		closed = append(closed, c.ID)
		c.Status = CycleStatusClosed
		s.notifyCycleClosed(ctx, tenantID, c)
	}
	return map[string]any{"closed": closed}, nil
}

func (s *Service) CreateAppraisal(ctx context.Context, tenantID, cycleID, employeeID string) (Appraisal, error) {
	if _, err := s.openCycle(ctx, tenantID, cycleID); err != nil {
		return Appraisal{}, err
	}
	chain, err := s.directory.ReviewChain(ctx, tenantID, employeeID)
	if err != nil {
		return Appraisal{}, err
	}
	return s.store.CreateAppraisal(ctx, tenantID, Appraisal{
		CycleID:    cycleID,
		EmployeeID: employeeID,
		ManagerID:  chain.CheckerID,
		Status:     StatusDraft,
	})
}

// GetAppraisal loads an appraisal with its KRAs, self ratings and feedback.
func (s *Service) GetAppraisal(ctx context.Context, tenantID, appraisalID string) (Appraisal, error) {
	a, err := s.store.GetAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return Appraisal{}, err
	}
	if a.KRAs, err = s.store.ListKRAs(ctx, tenantID, appraisalID); err != nil {
		return Appraisal{}, err
	}
	if a.SelfRatings, err = s.store.ListSelfRatings(ctx, tenantID, appraisalID); err != nil {
		return Appraisal{}, err
	}
	if a.Feedback, err = s.store.ListFeedback(ctx, tenantID, appraisalID); err != nil {
		return Appraisal{}, err
	}
	return a, nil
}

func (s *Service) ListAppraisals(ctx context.Context, tenantID string, filter Filter) ([]Appraisal, error) {
	return s.store.ListAppraisals(ctx, tenantID, filter)
}

func (s *Service) SetKRAs(ctx context.Context, tenantID, appraisalID string, kras []scoring.KRA) ([]scoring.KRA, error) {
	if _, err := s.editableAppraisal(ctx, tenantID, appraisalID); err != nil {
		return nil, err
	}
	for i := range kras {
		kras[i].Name = strings.TrimSpace(kras[i].Name)
		kras[i].Achievement = strings.TrimSpace(kras[i].Achievement)
		if kras[i].Name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidKRA)
		}
		if kras[i].Weightage <= 0 || kras[i].Weightage > 100 {
			return nil, fmt.Errorf("%w: weightage must be in (0, 100]", ErrInvalidKRA)
		}
		if kras[i].Score < 0 {
			return nil, fmt.Errorf("%w: score must not be negative", ErrInvalidKRA)
		}
	}
	return s.store.ReplaceKRAs(ctx, tenantID, appraisalID, kras)
}

func (s *Service) SetSelfRatings(ctx context.Context, tenantID, appraisalID string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error) {
	if _, err := s.editableAppraisal(ctx, tenantID, appraisalID); err != nil {
		return nil, err
	}
	for i := range ratings {
		ratings[i].Criterion = strings.TrimSpace(ratings[i].Criterion)
		if ratings[i].MaxRating == 0 {
			ratings[i].MaxRating = DefaultMaxRating
		}
		r := ratings[i]
		if r.Criterion == "" {
			return nil, fmt.Errorf("%w: criterion is required", ErrInvalidRating)
		}
		if r.MaxRating < 0 || r.Rating < 0 || r.Rating > r.MaxRating {
			return nil, fmt.Errorf("%w: rating must be between 0 and %v", ErrInvalidRating, r.MaxRating)
		}
		if r.Weightage <= 0 || r.Weightage > 100 {
			return nil, fmt.Errorf("%w: weightage must be in (0, 100]", ErrInvalidRating)
		}
	}
	return s.store.ReplaceSelfRatings(ctx, tenantID, appraisalID, ratings)
}

// RequestFeedback opens a draft feedback for a reviewer and tells them about it.
func (s *Service) RequestFeedback(ctx context.Context, tenantID, appraisalID, reviewerID, role string) (Feedback, error) {
	a, err := s.editableAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return Feedback{}, err
	}
	if role == "" {
		role = ReviewerRolePeer
	}
	if !slices.Contains([]string{ReviewerRolePeer, ReviewerRoleManager}, role) {
		return Feedback{}, fmt.Errorf("%w: unknown reviewer role %q", ErrInvalidFeedback, role)
	}
	if reviewerID == "" || reviewerID == a.EmployeeID {
		return Feedback{}, fmt.Errorf("%w: reviewer must be someone other than the employee", ErrInvalidFeedback)
	}
	fb, err := s.store.CreateFeedback(ctx, tenantID, Feedback{
		AppraisalID:  appraisalID,
		ReviewerID:   reviewerID,
		ReviewerRole: role,
		Status:       scoring.FeedbackStatusDraft,
	})
	if err != nil {
		return Feedback{}, err
	}
	s.notify(ctx, tenantID, reviewerID, notifications.TypeFeedbackRequested, "Feedback requested",
		"You have been asked to give feedback on an appraisal.")
	return fb, nil
}

// SubmitFeedback records the reviewer's score. Only submitted feedback counts towards the
// feedback score.
func (s *Service) SubmitFeedback(ctx context.Context, tenantID, appraisalID, feedbackID, reviewerID string, totalScore float64, comments string) (Feedback, error) {
	a, err := s.editableAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return Feedback{}, err
	}
	fb, err := s.store.GetFeedback(ctx, tenantID, appraisalID, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	if fb.ReviewerID != reviewerID {
		return Feedback{}, ErrNotReviewer
	}
	if fb.Status == scoring.FeedbackStatusSubmitted {
		return Feedback{}, ErrFeedbackSubmitted
	}
	if totalScore < 0 {
		return Feedback{}, fmt.Errorf("%w: score must not be negative", ErrInvalidFeedback)
	}
	at := s.now().UTC()
	fb.Status = scoring.FeedbackStatusSubmitted
	fb.TotalScore = totalScore
	fb.Comments = strings.TrimSpace(comments)
	fb.SubmittedAt = &at
	if err := s.store.SubmitFeedback(ctx, tenantID, fb); err != nil {
		return Feedback{}, err
	}
	s.notify(ctx, tenantID, a.EmployeeID, notifications.TypeFeedbackReceived, "Feedback received",
		"New feedback was submitted for your appraisal.")
	return fb, nil
}

// Compute scores an appraisal from its current KRAs, self ratings and feedback and stores the
// result.
func (s *Service) Compute(ctx context.Context, tenantID, appraisalID string) (Result, error) {
	a, err := s.GetAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return Result{}, err
	}
	c, err := s.store.GetCycle(ctx, tenantID, a.CycleID)
	if err != nil {
		return Result{}, err
	}

	res := score(a, c)
	at := s.now().UTC()
	res.Appraisal.Status = StatusComputed
	res.Appraisal.ComputedAt = &at
	if err := s.store.SaveScores(ctx, tenantID, res.Appraisal); err != nil {
		return Result{}, err
	}
	s.notify(ctx, tenantID, a.EmployeeID, notifications.TypeAppraisalComputed, "Appraisal scored",
		fmt.Sprintf("Your appraisal final score is %.2f.", res.Final.Score))
	return res, nil
}

// ComputeCycle recomputes every appraisal of a cycle. Individual failures are collected and
// reported, not returned.
func (s *Service) ComputeCycle(ctx context.Context, tenantID, cycleID string) (CycleRun, error) {
	if _, err := s.store.GetCycle(ctx, tenantID, cycleID); err != nil {
		return CycleRun{}, err
	}
	appraisals, err := s.store.ListAppraisals(ctx, tenantID, Filter{CycleID: cycleID})
	if err != nil {
		return CycleRun{}, err
	}
	run := CycleRun{CycleID: cycleID}
	for _, a := range appraisals {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if _, err := s.Compute(ctx, tenantID, a.ID); err != nil {
			slog.Warn("appraisal compute failed", "appraisalId", a.ID, "err", err)
			run.Failed = append(run.Failed, a.ID)
			continue
		}
		run.Computed++
	}
	return run, nil
}

func score(a Appraisal, c Cycle) Result {
	goal := scoring.CalculateGoalScore(a.KRAs, c.EvaluationMethod)
	self := scoring.CalculateSelfScore(a.SelfRatings)
	feedback := make([]scoring.Feedback, 0, len(a.Feedback))
	for _, fb := range a.Feedback {
		feedback = append(feedback, scoring.Feedback{ID: fb.ID, ReviewerID: fb.ReviewerID, Status: fb.Status, TotalScore: fb.TotalScore})
	}
	feedbackResult := scoring.CalculateFeedbackScore(feedback)
	final := scoring.CalculateFinalScore(scoring.FinalScoreInput{
		GoalScore:     goal,
		SelfScore:     self,
		FeedbackScore: feedbackResult.AverageScore,
		UseFormula:    c.UseFormula,
		Formula:       c.Formula,
	})
	if final.FormulaError != "" {
		slog.Warn("final score formula failed, using average", "appraisalId", a.ID, "cycleId", c.ID, "err", final.FormulaError)
	}

	a.GoalScore = goal
	a.SelfScore = self
	a.FeedbackScore = feedbackResult.AverageScore
	a.FinalScore = final.Score
	a.FinalScoreMethod = final.Method
	return Result{Appraisal: a, Goal: goal, Self: self, Feedback: feedbackResult, Final: final}
}

func (s *Service) openCycle(ctx context.Context, tenantID, cycleID string) (Cycle, error) {
	c, err := s.store.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return Cycle{}, err
	}
	if c.Status == CycleStatusClosed {
		return Cycle{}, ErrCycleClosed
	}
	return c, nil
}

func (s *Service) editableAppraisal(ctx context.Context, tenantID, appraisalID string) (Appraisal, error) {
	a, err := s.store.GetAppraisal(ctx, tenantID, appraisalID)
	if err != nil {
		return Appraisal{}, err
	}
	if _, err := s.openCycle(ctx, tenantID, a.CycleID); err != nil {
		return Appraisal{}, err
	}
	return a, nil
}

func (s *Service) notifyCycleClosed(ctx context.Context, tenantID string, c Cycle) {
	appraisals, err := s.store.ListAppraisals(ctx, tenantID, Filter{CycleID: c.ID})
	if err != nil {
		slog.Warn("cycle close notification lookup failed", "cycleId", c.ID, "err", err)
		return
	}
	for _, a := range appraisals {
		s.notify(ctx, tenantID, a.EmployeeID, notifications.TypeCycleClosed, "Appraisal cycle closed",
			fmt.Sprintf("The appraisal cycle %q has closed.", c.Name))
	}
}

func (s *Service) notify(ctx context.Context, tenantID, employeeID, ntype, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyEmployee(ctx, tenantID, employeeID, ntype, title, body); err != nil {
		slog.Warn("appraisal notification failed", "employeeId", employeeID, "type", ntype, "err", err)
	}
}
