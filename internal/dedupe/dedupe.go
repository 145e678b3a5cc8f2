// Package dedupe collapses duplicate customer records.
package dedupe

import (
	"strconv"

	"retl/internal/diag"
	"retl/internal/model"
)

// Customers groups records by normalized email and keeps one per group: the
// record with the highest customer_id, the recency indicator since IDs are
// assigned in registration order. Ties keep the last-seen record in input
// order, so the result is deterministic and stable. Records without an
// email pass through; there is nothing to group them on. Output preserves
// the input order of the surviving records.
func Customers(in []model.Customer, dc *diag.Collector) []model.Customer {
	winner := make(map[string]int, len(in)) // email -> input index of survivor
	for i, c := range in {
		if c.Email == "" {
			continue
		}
		prev, seen := winner[c.Email]
		if !seen || newerOrEqual(c.CustomerID, in[prev].CustomerID) {
			winner[c.Email] = i
		}
	}

	out := make([]model.Customer, 0, len(winner))
	var discarded []string
	for i, c := range in {
		if c.Email == "" || winner[c.Email] == i {
			out = append(out, c)
			continue
		}
		dc.Record(diag.StageDedupe, "duplicate_email", c.CustomerID, "discarded, newer record wins")
		discarded = append(discarded, c.CustomerID)
	}

	dc.Summary(diag.StageDedupe, "duplicate_email", len(discarded), discarded)
	return out
}

// newerOrEqual compares IDs numerically when both parse, lexically otherwise.
func newerOrEqual(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na >= nb
	}
	return a >= b
}
