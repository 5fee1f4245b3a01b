package core

import "github.com/shopspring/decimal"

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name    string
	Amount  decimal.Decimal
	Count   int
	Percent decimal.Decimal // share of the summary total, 0 when the total is 0
}

// Summary aggregates one filtered set of expenses.
type Summary struct {
	Count      int
	Total      decimal.Decimal
	ByCategory []CategoryAmount
}
