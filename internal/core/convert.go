package core

// Convert moves amount from one currency to another through the base
// currency. Identical currencies return amount untouched. A missing or
// non-positive rate also returns amount untouched rather than NaN or Inf.
func Convert(amount float64, from, to Currency, rates RateTable) float64 {
	if from == to {
		return amount
	}
	fromRate, toRate := rates[from], rates[to]
	if fromRate <= 0 || toRate <= 0 {
		return amount
	}
	return amount / fromRate * toRate
}
