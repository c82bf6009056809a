package fieldconfig

import (
	"sort"

	"leads-dashboard/internal/fields"
)

// Change is one column_order rewrite produced by Renumber.
type Change struct {
	ID   string
	From int
	To   int
}

// Renumber orders defs by column_order and reassigns 1..N. When two
// definitions share an order, savedID goes first. Only definitions whose
// order actually moves are returned.
func Renumber(defs []fields.Definition, savedID string) []Change {
	sorted := make([]fields.Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if (a.ID == savedID) != (b.ID == savedID) {
			return a.ID == savedID
		}
		return a.Key < b.Key
	})

	var changes []Change
	for i, d := range sorted {
		if want := i + 1; d.Order != want {
			changes = append(changes, Change{ID: d.ID, From: d.Order, To: want})
		}
	}
	return changes
}
