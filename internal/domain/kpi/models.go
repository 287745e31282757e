package kpi

import (
	"time"

	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
)

type Item struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employeeId,omitempty"`
	DepartmentID string    `json:"departmentId,omitempty"`
	ParentID     string    `json:"parentId,omitempty"`
	Level        string    `json:"level"`
	Period       string    `json:"period"`
	Category     string    `json:"category"`
	Name         string    `json:"name"`
	Weight       float64   `json:"weight"`
	Target       string    `json:"target"`
	Measurement  string    `json:"measurement"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ItemFilter struct {
	EmployeeID string
	Period     string
	Level      string
	ParentID   string
}

// CascadeTarget assigns a copy of a parent item to one employee with its own weight.
type CascadeTarget struct {
	EmployeeID string  `json:"employeeId"`
	Weight     float64 `json:"weight"`
}

type Criterion struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Weight      float64   `json:"weight"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BonusRecord struct {
	workflow.Record
	Period      string                         `json:"period"`
	Evaluations map[string]scoring.Achievement `json:"evaluations"`
	Score       scoring.KPIBonusScore          `json:"score"`
	Version     int                            `json:"version"`
	CreatedAt   time.Time                      `json:"createdAt"`
	UpdatedAt   time.Time                      `json:"updatedAt"`
}

type MeritRecord struct {
	workflow.Record
	Period                string                         `json:"period"`
	KPIEvaluations        map[string]scoring.Achievement `json:"kpiEvaluations"`
	CompetencyEvaluations map[string]scoring.LevelRating `json:"competencyEvaluations"`
	CultureEvaluations    map[string]scoring.LevelRating `json:"cultureEvaluations"`
	KPIScore              scoring.KPIBonusScore          `json:"kpiScore"`
	CompetencyScore       scoring.RatingScore            `json:"competencyScore"`
	CultureScore          scoring.RatingScore            `json:"cultureScore"`
	Merit                 scoring.MeritScore             `json:"merit"`
	IsWeightValid         bool                           `json:"isWeightValid"`
	Version               int                            `json:"version"`
	CreatedAt             time.Time                      `json:"createdAt"`
	UpdatedAt             time.Time                      `json:"updatedAt"`
}

type MeritEvaluations struct {
	KPI        map[string]scoring.Achievement `json:"kpi"`
	Competency map[string]scoring.LevelRating `json:"competency"`
	Culture    map[string]scoring.LevelRating `json:"culture"`
}

// RecordFilter narrows record lists. ParticipantID matches owner, checker or approver.
type RecordFilter struct {
	EmployeeID    string
	ParticipantID string
	Period        string
	Status        *workflow.Status
	Limit         int
	Offset        int
}
