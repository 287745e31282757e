package kpi

const (
	LevelCorporate  = "corporate"
	LevelDepartment = "department"
	LevelIndividual = "individual"

	CriterionCompetency = "competency"
	CriterionCulture    = "culture"
)

var ItemLevels = []string{LevelCorporate, LevelDepartment, LevelIndividual}

var CriterionKinds = []string{CriterionCompetency, CriterionCulture}
