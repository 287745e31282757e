package appraisal

import (
	"context"
	"fmt"
	"time"

	"pms/internal/domain/core"
	"pms/internal/domain/scoring"
)

type memStore struct {
	cycles     map[string]Cycle
	appraisals map[string]Appraisal
	kras       map[string][]scoring.KRA
	ratings    map[string][]scoring.SelfRating
	feedback   []Feedback
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{
		cycles:     map[string]Cycle{},
		appraisals: map[string]Appraisal{},
		kras:       map[string][]scoring.KRA{},
		ratings:    map[string][]scoring.SelfRating{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateCycle(_ context.Context, _ string, c Cycle) (Cycle, error) {
	c.ID = m.id("cycle")
	m.cycles[c.ID] = c
	return c, nil
}

func (m *memStore) GetCycle(_ context.Context, _ string, cycleID string) (Cycle, error) {
	c, ok := m.cycles[cycleID]
	if !ok {
		return Cycle{}, ErrCycleNotFound
	}
	return c, nil
}

func (m *memStore) ListCycles(_ context.Context, _ string, status string) ([]Cycle, error) {
	var out []Cycle
	for _, c := range m.cycles {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) UpdateCycleStatus(_ context.Context, _ string, cycleID, from, to string) error {
	c, ok := m.cycles[cycleID]
	if !ok || c.Status != from {
		return ErrCycleTransition
	}
	c.Status = to
	m.cycles[cycleID] = c
	return nil
}

func (m *memStore) ListExpiredCycles(_ context.Context, _ string, asOf time.Time) ([]Cycle, error) {
	var out []Cycle
	for _, c := range m.cycles {
		if c.Status == CycleStatusActive && c.EndDate.Before(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateAppraisal(_ context.Context, _ string, a Appraisal) (Appraisal, error) {
	for _, existing := range m.appraisals {
		if existing.CycleID == a.CycleID && existing.EmployeeID == a.EmployeeID {
			return Appraisal{}, ErrDuplicateAppraisal
		}
	}
	a.ID = m.id("appraisal")
	m.appraisals[a.ID] = a
	return a, nil
}

func (m *memStore) GetAppraisal(_ context.Context, _ string, appraisalID string) (Appraisal, error) {
	a, ok := m.appraisals[appraisalID]
	if !ok {
		return Appraisal{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListAppraisals(_ context.Context, _ string, filter Filter) ([]Appraisal, error) {
	var out []Appraisal
	for _, a := range m.appraisals {
		if filter.CycleID != "" && a.CycleID != filter.CycleID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) SaveScores(_ context.Context, _ string, a Appraisal) error {
	if _, ok := m.appraisals[a.ID]; !ok {
		return ErrNotFound
	}
	a.KRAs, a.SelfRatings, a.Feedback = nil, nil, nil
	m.appraisals[a.ID] = a
	return nil
}

func (m *memStore) ReplaceKRAs(_ context.Context, _ string, appraisalID string, kras []scoring.KRA) ([]scoring.KRA, error) {
	for i := range kras {
		kras[i].ID = m.id("kra")
	}
	m.kras[appraisalID] = kras
	return kras, nil
}

func (m *memStore) ListKRAs(_ context.Context, _ string, appraisalID string) ([]scoring.KRA, error) {
	return m.kras[appraisalID], nil
}

func (m *memStore) ReplaceSelfRatings(_ context.Context, _ string, appraisalID string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error) {
	for i := range ratings {
		ratings[i].ID = m.id("rating")
	}
	m.ratings[appraisalID] = ratings
	return ratings, nil
}

func (m *memStore) ListSelfRatings(_ context.Context, _ string, appraisalID string) ([]scoring.SelfRating, error) {
	return m.ratings[appraisalID], nil
}

func (m *memStore) CreateFeedback(_ context.Context, _ string, fb Feedback) (Feedback, error) {
	fb.ID = m.id("fb")
	m.feedback = append(m.feedback, fb)
	return fb, nil
}

func (m *memStore) GetFeedback(_ context.Context, _ string, appraisalID, feedbackID string) (Feedback, error) {
	for _, fb := range m.feedback {
		if fb.AppraisalID == appraisalID && fb.ID == feedbackID {
			return fb, nil
		}
	}
	return Feedback{}, ErrFeedbackNotFound
}

func (m *memStore) ListFeedback(_ context.Context, _ string, appraisalID string) ([]Feedback, error) {
	var out []Feedback
	for _, fb := range m.feedback {
		if fb.AppraisalID == appraisalID {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (m *memStore) SubmitFeedback(_ context.Context, _ string, fb Feedback) error {
	for i := range m.feedback {
		if m.feedback[i].ID == fb.ID {
			if m.feedback[i].Status == scoring.FeedbackStatusSubmitted {
				return ErrFeedbackSubmitted
			}
			m.feedback[i] = fb
			return nil
		}
	}
	return ErrFeedbackNotFound
}

type staticDirectory map[string]core.ReviewChain

func (d staticDirectory) ReviewChain(_ context.Context, _ string, employeeID string) (core.ReviewChain, error) {
	return d[employeeID], nil
}

type sentNotification struct {
	EmployeeID string
	Type       string
}

type recordingNotifier struct {
	sent []sentNotification
}

func (n *recordingNotifier) NotifyEmployee(_ context.Context, _ string, employeeID, ntype, _, _ string) error {
	n.sent = append(n.sent, sentNotification{EmployeeID: employeeID, Type: ntype})
	return nil
}

func (n *recordingNotifier) count(ntype string) int {
	total := 0
	for _, s := range n.sent {
		if s.Type == ntype {
			total++
		}
	}
	return total
}
