package scoring

import "github.com/shopspring/decimal"

var (
	meritKPIWeight        = decimal.RequireFromString("0.4")
	meritCompetencyWeight = decimal.RequireFromString("0.3")
	meritCultureWeight    = decimal.RequireFromString("0.3")
)

// WeightedItem is a KPI item or merit criterion as seen by the scorers.
type WeightedItem struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

type Achievement struct {
	AchievementPercentage float64 `json:"achievementPercentage"`
}

type LevelRating struct {
	Level int `json:"level"`
}

type KPIItemScore struct {
	ItemID                string  `json:"itemId"`
	Weight                float64 `json:"weight"`
	AchievementPercentage float64 `json:"achievementPercentage"`
	Score                 float64 `json:"score"`
}

type KPIBonusScore struct {
	Items         []KPIItemScore `json:"items"`
	TotalScore    float64        `json:"totalScore"`
	TotalWeight   float64        `json:"totalWeight"`
	IsWeightValid bool           `json:"isWeightValid"`
}

type RatingItemScore struct {
	ItemID          string  `json:"itemId"`
	Weight          float64 `json:"weight"`
	Level           int     `json:"level"`
	Score           int     `json:"score"`
	Percentage      float64 `json:"percentage"`
	CalculatedScore float64 `json:"calculatedScore"`
}

type RatingScore struct {
	Items         []RatingItemScore `json:"items"`
	TotalScore    float64           `json:"totalScore"`
	TotalWeight   float64           `json:"totalWeight"`
	IsWeightValid bool              `json:"isWeightValid"`
}

type MeritScore struct {
	KPIAchievementScore float64 `json:"kpiAchievementScore"`
	CompetencyScore     float64 `json:"competencyScore"`
	CultureScore        float64 `json:"cultureScore"`
	TotalScore          float64 `json:"totalScore"`
}

// CalculateKPIBonusScore weights each item's achievement percentage. Items without an
// evaluation count as 0% achieved. Weight validity is exact: the weights must sum to 100.
func CalculateKPIBonusScore(items []WeightedItem, evaluations map[string]Achievement) KPIBonusScore {
	result := KPIBonusScore{Items: make([]KPIItemScore, 0, len(items))}
	weights := make([]float64, 0, len(items))
	for _, item := range items {
		achievement := evaluations[item.ID].AchievementPercentage
		score := achievement * item.Weight / 100
		result.Items = append(result.Items, KPIItemScore{
			ItemID:                item.ID,
			Weight:                item.Weight,
			AchievementPercentage: achievement,
			Score:                 score,
		})
		result.TotalScore += score
		weights = append(weights, item.Weight)
	}
	result.TotalWeight = sumWeights(weights)
	result.IsWeightValid = result.TotalWeight == FullWeight
	return result
}

// CalculateRatingScore scores 1-5 level ratings against weighted criteria. The level score is
// normalized by the top level so a full-weight criterion rated 5 contributes its whole weight.
func CalculateRatingScore(items []WeightedItem, evaluations map[string]LevelRating) RatingScore {
	result := RatingScore{Items: make([]RatingItemScore, 0, len(items))}
	weights := make([]float64, 0, len(items))
	for _, item := range items {
		level := evaluations[item.ID].Level
		converted := ConvertLevelToScore(level)
		calculated := float64(converted.Score) * item.Weight / 5
		result.Items = append(result.Items, RatingItemScore{
			ItemID:          item.ID,
			Weight:          item.Weight,
			Level:           level,
			Score:           converted.Score,
			Percentage:      converted.Percentage,
			CalculatedScore: calculated,
		})
		result.TotalScore += calculated
		weights = append(weights, item.Weight)
	}
	result.TotalWeight = sumWeights(weights)
	result.IsWeightValid = result.TotalWeight == FullWeight
	return result
}

func CalculateCompetencyScore(items []WeightedItem, evaluations map[string]LevelRating) RatingScore {
	return CalculateRatingScore(items, evaluations)
}

func CalculateCultureScore(items []WeightedItem, evaluations map[string]LevelRating) RatingScore {
	return CalculateRatingScore(items, evaluations)
}

// CalculateKPIMeritScore combines the three merit components as 40/30/30.
func CalculateKPIMeritScore(kpiBonusScore, competencyScore, cultureScore float64) MeritScore {
	kpi := decimal.NewFromFloat(kpiBonusScore).Mul(meritKPIWeight)
	competency := decimal.NewFromFloat(competencyScore).Mul(meritCompetencyWeight)
	culture := decimal.NewFromFloat(cultureScore).Mul(meritCultureWeight)
	return MeritScore{
		KPIAchievementScore: kpi.InexactFloat64(),
		CompetencyScore:     competency.InexactFloat64(),
		CultureScore:        culture.InexactFloat64(),
		TotalScore:          kpi.Add(competency).Add(culture).InexactFloat64(),
	}
}
