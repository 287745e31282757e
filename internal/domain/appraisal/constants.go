package appraisal

const (
	CycleStatusDraft  = "draft"
	CycleStatusActive = "active"
	CycleStatusClosed = "closed"

	StatusDraft    = "draft"
	StatusComputed = "computed"

	ReviewerRolePeer    = "peer"
	ReviewerRoleManager = "manager"

	JobTypeComputeCycle = "appraisal.compute_cycle"
	JobTypeCloseCycles  = "appraisal.close_cycles"

	DefaultMaxRating = 5
)

var cycleTransitions = map[string]string{
	CycleStatusDraft:  CycleStatusActive,
	CycleStatusActive: CycleStatusClosed,
}
