package notifications

const (
	TypeKPISubmitted      = "kpi_submitted"
	TypeKPIChecked        = "kpi_checked"
	TypeKPIApproved       = "kpi_approved"
	TypeKPIRejected       = "kpi_rejected"
	TypeKPIReopened       = "kpi_reopened"
	TypeFeedbackRequested = "feedback_requested"
	TypeFeedbackReceived  = "feedback_received"
	TypeAppraisalComputed = "appraisal_computed"
	TypeCycleClosed       = "appraisal_cycle_closed"
)
