package scoring

const (
	EvaluationMethodManual    = "Manual"
	EvaluationMethodAutomatic = "Automatic"

	FeedbackStatusDraft     = "Draft"
	FeedbackStatusSubmitted = "Submitted"

	FinalScoreMethodAverage = "average"
	FinalScoreMethodFormula = "formula"

	FullWeight = 100

	VarGoalScore            = "goal_score"
	VarSelfAppraisalScore   = "self_appraisal_score"
	VarAverageFeedbackScore = "average_feedback_score"
)

// FormulaVariables are the only identifiers a final score formula may reference.
var FormulaVariables = []string{VarGoalScore, VarSelfAppraisalScore, VarAverageFeedbackScore}
