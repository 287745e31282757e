package db

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultCriteriaWeightsSumPerKind(t *testing.T) {
	sums := map[string]decimal.Decimal{}
	for _, c := range defaultCriteria {
		sums[c.Kind] = sums[c.Kind].Add(decimal.NewFromFloat(c.Weight))
	}
	for _, kind := range []string{"competency", "culture"} {
		if !sums[kind].Equal(decimal.NewFromInt(100)) {
			t.Fatalf("%s criteria weights sum to %s, expected 100", kind, sums[kind])
		}
	}
}
