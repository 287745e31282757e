package scoring

import (
	"strconv"
	"strings"
)

// KRA is one weighted goal area of an appraisal.
type KRA struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Weightage   float64 `json:"weightage"`
	Achievement string  `json:"achievement"`
	Score       float64 `json:"score"`
}

type SelfRating struct {
	ID        string  `json:"id"`
	Criterion string  `json:"criterion"`
	Rating    float64 `json:"rating"`
	MaxRating float64 `json:"maxRating"`
	Weightage float64 `json:"weightage"`
}

type Feedback struct {
	ID         string  `json:"id"`
	ReviewerID string  `json:"reviewerId"`
	Status     string  `json:"status"`
	TotalScore float64 `json:"totalScore"`
}

type FeedbackScore struct {
	FeedbackID string  `json:"feedbackId"`
	ReviewerID string  `json:"reviewerId"`
	TotalScore float64 `json:"totalScore"`
}

type FeedbackResult struct {
	AverageScore   float64         `json:"averageScore"`
	FeedbackScores []FeedbackScore `json:"feedbackScores"`
}

type FinalScoreInput struct {
	GoalScore     float64
	SelfScore     float64
	FeedbackScore float64
	UseFormula    bool
	Formula       string
}

type FinalScore struct {
	Score        float64 `json:"score"`
	Method       string  `json:"method"`
	FormulaError string  `json:"formulaError,omitempty"`
}

// CalculateGoalScore weights KRAs by weightage. Automatic evaluation reads the achievement
// percentage and rescales the weighted percentage to a 5 point score; any other method uses
// the manually assigned KRA scores as-is.
func CalculateGoalScore(kras []KRA, method string) float64 {
	total := 0.0
	for _, kra := range kras {
		if method == EvaluationMethodAutomatic {
			total += parseAchievement(kra.Achievement) * kra.Weightage / 100
			continue
		}
		total += kra.Score * kra.Weightage / 100
	}
	if method == EvaluationMethodAutomatic {
		total /= 20
	}
	return Round2(total)
}

func parseAchievement(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
	if err != nil {
		return 0
	}
	return value
}

// CalculateSelfScore normalizes each rating to a 5 point scale. Ratings without a max rating
// contribute nothing.
func CalculateSelfScore(ratings []SelfRating) float64 {
	total := 0.0
	for _, rating := range ratings {
		if rating.MaxRating <= 0 {
			continue
		}
		total += rating.Rating / rating.MaxRating * 5 * rating.Weightage / 100
	}
	return Round2(total)
}

// CalculateFeedbackScore averages submitted feedback. No submitted feedback is a zero score.
func CalculateFeedbackScore(feedbacks []Feedback) FeedbackResult {
	result := FeedbackResult{FeedbackScores: []FeedbackScore{}}
	total := 0.0
	for _, fb := range feedbacks {
		if fb.Status != FeedbackStatusSubmitted {
			continue
		}
		result.FeedbackScores = append(result.FeedbackScores, FeedbackScore{
			FeedbackID: fb.ID,
			ReviewerID: fb.ReviewerID,
			TotalScore: fb.TotalScore,
		})
		total += fb.TotalScore
	}
	if len(result.FeedbackScores) == 0 {
		return result
	}
	result.AverageScore = Round2(total / float64(len(result.FeedbackScores)))
	return result
}

// CalculateFinalScore returns the mean of the three scores unless formula mode is enabled.
// A formula that fails to parse or evaluate falls back to the mean.
func CalculateFinalScore(in FinalScoreInput) FinalScore {
	average := Round2((in.GoalScore + in.SelfScore + in.FeedbackScore) / 3)
	if !in.UseFormula || strings.TrimSpace(in.Formula) == "" {
		return FinalScore{Score: average, Method: FinalScoreMethodAverage}
	}

	formula, err := ParseFormula(in.Formula)
	if err != nil {
		return FinalScore{Score: average, Method: FinalScoreMethodAverage, FormulaError: err.Error()}
	}
	value, err := formula.Eval(map[string]float64{
		VarGoalScore:            in.GoalScore,
		VarSelfAppraisalScore:   in.SelfScore,
		VarAverageFeedbackScore: in.FeedbackScore,
	})
	if err != nil {
		return FinalScore{Score: average, Method: FinalScoreMethodAverage, FormulaError: err.Error()}
	}
	return FinalScore{Score: Round2(value), Method: FinalScoreMethodFormula}
}
