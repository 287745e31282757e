package workflow

import (
	"fmt"
	"strings"
	"time"
)

type rule struct {
	from   []Status
	to     Status
	actor  Step
	action Action
}

var rules = []rule{
	{from: []Status{StatusDraft, StatusRejected}, to: StatusPendingChecker, actor: StepSelf, action: ActionSubmitted},
	{from: []Status{StatusDraft, StatusPendingChecker}, to: StatusPendingApprover, actor: StepChecker, action: ActionChecked},
	{from: []Status{StatusPendingApprover}, to: StatusApproved, actor: StepApprover, action: ActionApproved},
	{from: []Status{StatusDraft, StatusPendingChecker}, to: StatusRejected, actor: StepChecker, action: ActionRejected},
	{from: []Status{StatusPendingApprover}, to: StatusRejected, actor: StepApprover, action: ActionRejected},
	{from: []Status{StatusRejected}, to: StatusDraft, actor: StepSelf, action: ActionReopened},
}

func (r rule) allows(from Status) bool {
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Transition moves rec to target on behalf of actor. It returns the updated record, the single
// history entry to append and the event to publish; rec itself is not modified.
func Transition(rec Record, target Status, actor Actor, comment string, now time.Time) (Record, HistoryEntry, Event, error) {
	if !target.Valid() {
		return rec, HistoryEntry{}, Event{}, fmt.Errorf("%w: %d", ErrUnknownStatus, int(target))
	}

	var matched []rule
	for _, r := range rules {
		if r.to == target && r.allows(rec.Status) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return rec, HistoryEntry{}, Event{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, target)
	}

	var applied *rule
	for i := range matched {
		if actor.Has(matched[i].actor) {
			applied = &matched[i]
			break
		}
	}
	if applied == nil {
		return rec, HistoryEntry{}, Event{}, fmt.Errorf("%w: %s -> %s requires %s", ErrActorNotAllowed, rec.Status, target, matched[0].actor)
	}

	comment = strings.TrimSpace(comment)
	if target == StatusRejected && comment == "" {
		return rec, HistoryEntry{}, Event{}, ErrRejectionReasonRequired
	}

	at := now.UTC()
	if at.Before(rec.LastHistoryAt) {
		at = rec.LastHistoryAt
	}

	next := rec
	from := rec.Status
	next.Status = target
	switch applied.action {
	case ActionSubmitted:
		next.SubmittedAt = &at
		next.RejectionReason = ""
		next.RejectedAt = nil
		if from == StatusRejected {
			next.CheckedAt = nil
			next.CheckerFeedback = ""
		}
	case ActionChecked:
		next.CheckedAt = &at
		next.CheckerFeedback = comment
	case ActionApproved:
		next.ApprovedAt = &at
		next.ApproverFeedback = comment
	case ActionRejected:
		next.RejectedAt = &at
		next.RejectionReason = comment
	case ActionReopened:
		next.CheckedAt = nil
		next.CheckerFeedback = ""
	}
	next.LastHistoryAt = at
	next.Sync()

	entry := HistoryEntry{
		RecordType: rec.Type,
		RecordID:   rec.ID,
		Action:     applied.action,
		FromStatus: from,
		ToStatus:   target,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  applied.actor,
		Comment:    comment,
		CreatedAt:  at,
	}
	evt := Event{
		RecordType: rec.Type,
		RecordID:   rec.ID,
		EmployeeID: rec.EmployeeID,
		CheckerID:  rec.CheckerID,
		ApproverID: rec.ApproverID,
		Action:     applied.action,
		From:       from,
		To:         target,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Comment:    comment,
		At:         at,
	}
	return next, entry, evt, nil
}

// Created is the first history entry of a new record.
func Created(rec Record, actor Actor, now time.Time) HistoryEntry {
	role := StepSelf
	if len(actor.Roles) > 0 {
		role = actor.Roles[0]
	}
	return HistoryEntry{
		RecordType: rec.Type,
		RecordID:   rec.ID,
		Action:     ActionCreated,
		FromStatus: StatusDraft,
		ToStatus:   StatusDraft,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  role,
		CreatedAt:  now.UTC(),
	}
}

// Available lists the statuses actor may move rec to.
func Available(rec Record, actor Actor) []Status {
	var out []Status
	seen := map[Status]bool{}
	for _, r := range rules {
		if seen[r.to] || !r.allows(rec.Status) || !actor.Has(r.actor) {
			continue
		}
		seen[r.to] = true
		out = append(out, r.to)
	}
	return out
}
