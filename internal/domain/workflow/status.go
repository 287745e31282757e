package workflow

import (
	"fmt"
	"strings"
)

// Status is the canonical approval status of a KPI bonus or merit record. The persisted and
// UI vocabularies are both mapped through statusTable.
type Status int

const (
	StatusDraft Status = iota
	StatusPendingChecker
	StatusPendingApprover
	StatusApproved
	StatusRejected
)

type Step string

const (
	StepNone     Step = ""
	StepSelf     Step = "Self"
	StepChecker  Step = "Checker"
	StepApprover Step = "Approver"
)

var statusTable = []struct {
	status Status
	stored string
	label  string
	step   Step
}{
	{StatusDraft, "draft", "Draft", StepSelf},
	{StatusPendingChecker, "pending_checker", "Pending_Approval", StepChecker},
	{StatusPendingApprover, "pending_approver", "Pending_Approval", StepApprover},
	{StatusApproved, "completed", "Approved", StepNone},
	{StatusRejected, "rejected", "Rejected", StepSelf},
}

// extra spellings accepted from clients
var statusAliases = map[string]Status{
	"pending_approval": StatusPendingChecker,
	"approved":         StatusApproved,
}

func AllStatuses() []Status {
	out := make([]Status, 0, len(statusTable))
	for _, row := range statusTable {
		out = append(out, row.status)
	}
	return out
}

// String returns the persisted form.
func (s Status) String() string {
	for _, row := range statusTable {
		if row.status == s {
			return row.stored
		}
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Label() string {
	for _, row := range statusTable {
		if row.status == s {
			return row.label
		}
	}
	return ""
}

// Step is whose turn it is while the record sits in this status.
func (s Status) Step() Step {
	for _, row := range statusTable {
		if row.status == s {
			return row.step
		}
	}
	return StepNone
}

func (s Status) Valid() bool {
	return s >= StatusDraft && s <= StatusRejected
}

func (s Status) Terminal() bool {
	return s == StatusApproved
}

// ParseStatus accepts the persisted or UI spelling, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, row := range statusTable {
		if normalized == row.stored || normalized == strings.ToLower(row.label) {
			return row.status, nil
		}
	}
	if status, ok := statusAliases[normalized]; ok {
		return status, nil
	}
	return StatusDraft, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
