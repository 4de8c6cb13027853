package models

import "github.com/shopspring/decimal"

// WholeCents reports whether d has no digits past the second decimal place.
// Money columns are decimal(20,2); anything finer is rejected rather than rounded.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
