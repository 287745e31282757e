package appraisal

import (
	"time"

	"pms/internal/domain/scoring"
)

type Cycle struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Status           string    `json:"status"`
	EvaluationMethod string    `json:"evaluationMethod"`
	UseFormula       bool      `json:"calculateFinalScoreBasedOnFormula"`
	Formula          string    `json:"finalScoreFormula"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Appraisal struct {
	ID               string               `json:"id"`
	CycleID          string               `json:"cycleId"`
	EmployeeID       string               `json:"employeeId"`
	ManagerID        string               `json:"managerId,omitempty"`
	Status           string               `json:"status"`
	GoalScore        float64              `json:"goalScore"`
	SelfScore        float64              `json:"selfScore"`
	FeedbackScore    float64              `json:"feedbackScore"`
	FinalScore       float64              `json:"finalScore"`
	FinalScoreMethod string               `json:"finalScoreMethod,omitempty"`
	ComputedAt       *time.Time           `json:"computedAt,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	KRAs             []scoring.KRA        `json:"kras,omitempty"`
	SelfRatings      []scoring.SelfRating `json:"selfRatings,omitempty"`
	Feedback         []Feedback           `json:"feedback,omitempty"`
}

type Feedback struct {
	ID           string     `json:"id"`
	AppraisalID  string     `json:"appraisalId"`
	ReviewerID   string     `json:"reviewerId"`
	ReviewerRole string     `json:"reviewerRole"`
	Status       string     `json:"status"`
	TotalScore   float64    `json:"totalScore"`
	Comments     string     `json:"comments,omitempty"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Result is the outcome of one score computation.
type Result struct {
	Appraisal Appraisal              `json:"appraisal"`
	Goal      float64                `json:"goalScore"`
	Self      float64                `json:"selfAppraisalScore"`
	Feedback  scoring.FeedbackResult `json:"feedback"`
	Final     scoring.FinalScore     `json:"final"`
}

type Filter struct {
	CycleID    string
	EmployeeID string
	ManagerID  string
	Limit      int
	Offset     int
}

// CycleRun summarizes a bulk recomputation.
type CycleRun struct {
	CycleID  string   `json:"cycleId"`
	Computed int      `json:"computed"`
	Failed   []string `json:"failed,omitempty"`
}
