package scoring

// LevelScore is the result of converting a 1-5 rating level.
type LevelScore struct {
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
}

var levelPercentages = map[int]float64{
	1: 50,
	2: 65,
	3: 75,
	4: 85,
	5: 95,
}

// ConvertLevelToScore maps a rating level to its score and reference percentage.
// Levels outside 1-5 (including 0) are unrated and yield a zero result.
func ConvertLevelToScore(level int) LevelScore {
	pct, ok := levelPercentages[level]
	if !ok {
		return LevelScore{}
	}
	return LevelScore{Score: level, Percentage: pct}
}

// ConvertPercentageToLevel is the inverse threshold mapping of ConvertLevelToScore.
func ConvertPercentageToLevel(percentage float64) int {
	switch {
	case percentage >= 90:
		return 5
	case percentage >= 80:
		return 4
	case percentage >= 70:
		return 3
	case percentage >= 60:
		return 2
	default:
		return 1
	}
}
