package scoring

import "github.com/shopspring/decimal"

// Round2 rounds half away from zero to two decimal places.
func Round2(value float64) float64 {
	return decimal.NewFromFloat(value).Round(2).InexactFloat64()
}

func sumWeights(weights []float64) float64 {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(decimal.NewFromFloat(w))
	}
	return total.InexactFloat64()
}
