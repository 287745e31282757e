package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"pms/internal/domain/workflow"
)

// WorkflowNotifier tells the next actor, or the record owner, about approval workflow changes.
type WorkflowNotifier struct {
	svc *Service
}

func NewWorkflowNotifier(svc *Service) *WorkflowNotifier {
	return &WorkflowNotifier{svc: svc}
}

type delivery struct {
	employeeID string
	ntype      string
	title      string
	body       string
}

func (n *WorkflowNotifier) RecordChanged(ctx context.Context, evt workflow.Event) {
	for _, d := range deliveriesFor(evt) {
		if d.employeeID == "" || d.employeeID == evt.ActorID {
			continue
		}
		if err := n.svc.NotifyEmployee(ctx, evt.TenantID, d.employeeID, d.ntype, d.title, d.body); err != nil {
			slog.Warn("workflow notification failed", "recordType", evt.RecordType, "recordId", evt.RecordID, "employeeId", d.employeeID, "err", err)
		}
	}
}

func deliveriesFor(evt workflow.Event) []delivery {
	label := recordLabel(evt.RecordType)
	switch evt.Action {
	case workflow.ActionSubmitted:
		return []delivery{{
			employeeID: evt.CheckerID,
			ntype:      TypeKPISubmitted,
			title:      label + " awaiting your review",
			body:       fmt.Sprintf("%s submitted a %s for checking.", actorName(evt), label),
		}}
	case workflow.ActionChecked:
		return []delivery{
			{
				employeeID: evt.ApproverID,
				ntype:      TypeKPIChecked,
				title:      label + " awaiting your approval",
				body:       fmt.Sprintf("%s checked a %s and sent it for approval.", actorName(evt), label),
			},
			{
				employeeID: evt.EmployeeID,
				ntype:      TypeKPIChecked,
				title:      label + " checked",
				body:       withComment(fmt.Sprintf("Your %s was checked by %s.", label, actorName(evt)), evt.Comment),
			},
		}
	case workflow.ActionApproved:
		return []delivery{{
			employeeID: evt.EmployeeID,
			ntype:      TypeKPIApproved,
			title:      label + " approved",
			body:       withComment(fmt.Sprintf("Your %s was approved by %s.", label, actorName(evt)), evt.Comment),
		}}
	case workflow.ActionRejected:
		return []delivery{{
			employeeID: evt.EmployeeID,
			ntype:      TypeKPIRejected,
			title:      label + " rejected",
			body:       withComment(fmt.Sprintf("Your %s was rejected by %s.", label, actorName(evt)), evt.Comment),
		}}
	case workflow.ActionReopened:
		return []delivery{{
			employeeID: evt.CheckerID,
			ntype:      TypeKPIReopened,
			title:      label + " reopened",
			body:       fmt.Sprintf("%s reopened a rejected %s.", actorName(evt), label),
		}}
	}
	return nil
}

func recordLabel(t workflow.RecordType) string {
	switch t {
	case workflow.RecordKPIBonus:
		return "KPI bonus record"
	case workflow.RecordKPIMerit:
		return "KPI merit record"
	}
	return "record"
}

func actorName(evt workflow.Event) string {
	if evt.ActorName != "" {
		return evt.ActorName
	}
	return "A reviewer"
}

func withComment(body, comment string) string {
	if comment == "" {
		return body
	}
	return body + " Comment: " + comment
}
