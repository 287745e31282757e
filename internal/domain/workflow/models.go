package workflow

import "time"

type RecordType string

const (
	RecordKPIBonus RecordType = "kpi_bonus"
	RecordKPIMerit RecordType = "kpi_merit"
)

type Action string

const (
	ActionCreated   Action = "created"
	ActionSubmitted Action = "submitted"
	ActionChecked   Action = "checked"
	ActionApproved  Action = "approved"
	ActionRejected  Action = "rejected"
	ActionReopened  Action = "reopened"
)

// Record is the approval state shared by KPI bonus and KPI merit records.
type Record struct {
	ID               string     `json:"id"`
	Type             RecordType `json:"recordType"`
	EmployeeID       string     `json:"employeeId"`
	CheckerID        string     `json:"checkerId"`
	ApproverID       string     `json:"approverId"`
	Status           Status     `json:"status"`
	StatusLabel      string     `json:"statusLabel"`
	Step             Step       `json:"workflowStep"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	CheckedAt        *time.Time `json:"checkedDate,omitempty"`
	CheckerFeedback  string     `json:"checkerFeedback,omitempty"`
	ApprovedAt       *time.Time `json:"approvedDate,omitempty"`
	ApproverFeedback string     `json:"approverFeedback,omitempty"`
	RejectedAt       *time.Time `json:"rejectedDate,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	LastHistoryAt    time.Time  `json:"-"`
}

// Sync refreshes the derived label and step after the status was loaded or changed.
func (r *Record) Sync() {
	r.StatusLabel = r.Status.Label()
	r.Step = r.Status.Step()
}

type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Roles []Step `json:"roles"`
}

func (a Actor) Has(role Step) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HistoryEntry is one immutable audit row. Entries are only ever appended.
type HistoryEntry struct {
	ID         string     `json:"id"`
	RecordType RecordType `json:"recordType"`
	RecordID   string     `json:"recordId"`
	Action     Action     `json:"action"`
	FromStatus Status     `json:"fromStatus"`
	ToStatus   Status     `json:"toStatus"`
	ActorID    string     `json:"actorId"`
	ActorName  string     `json:"actorName"`
	ActorRole  Step       `json:"actorRole"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Event describes a record change for observers.
type Event struct {
	TenantID   string     `json:"tenantId,omitempty"`
	RecordType RecordType `json:"recordType"`
	RecordID   string     `json:"recordId"`
	EmployeeID string     `json:"employeeId"`
	CheckerID  string     `json:"checkerId"`
	ApproverID string     `json:"approverId"`
	Action     Action     `json:"action"`
	From       Status     `json:"from"`
	To         Status     `json:"to"`
	ActorID    string     `json:"actorId"`
	ActorName  string     `json:"actorName"`
	Comment    string     `json:"comment,omitempty"`
	At         time.Time  `json:"at"`
}

// ResolveActor derives the workflow roles an employee holds on rec. Reviewers with tenant-wide
// authority (HR) may act as checker or approver on any record they do not own.
func ResolveActor(rec Record, employeeID, name string, reviewerOverride bool) Actor {
	actor := Actor{ID: employeeID, Name: name}
	isOwner := employeeID != "" && employeeID == rec.EmployeeID
	if isOwner {
		actor.Roles = append(actor.Roles, StepSelf)
	}
	if (employeeID != "" && employeeID == rec.CheckerID) || (reviewerOverride && !isOwner) {
		actor.Roles = append(actor.Roles, StepChecker)
	}
	if (employeeID != "" && employeeID == rec.ApproverID) || (reviewerOverride && !isOwner) {
		actor.Roles = append(actor.Roles, StepApprover)
	}
	return actor
}

// OrUser gives an actor without an employee profile the caller's user identity, so history and
// events never carry a blank actor.
func (a Actor) OrUser(userID string) Actor {
	if a.ID != "" || userID == "" {
		return a
	}
	a.ID = "user:" + userID
	if a.Name == "" {
		a.Name = a.ID
	}
	return a
}

// Participant reports whether employeeID owns or reviews rec.
func (r Record) Participant(employeeID string) bool {
	return employeeID != "" && (employeeID == r.EmployeeID || employeeID == r.CheckerID || employeeID == r.ApproverID)
}
