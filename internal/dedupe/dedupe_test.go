package dedupe

import (
	"testing"

	"go.uber.org/zap"

	"retl/internal/diag"
	"retl/internal/model"
)

func collector() *diag.Collector {
	return diag.NewCollector(zap.NewNop().Sugar())
}

func TestCustomers_OnePerEmail(t *testing.T) {
	in := []model.Customer{
		{CustomerID: "1", Email: "a@x.io"},
		{CustomerID: "2", Email: "b@x.io"},
		{CustomerID: "9", Email: "a@x.io"},
		{CustomerID: "10", Email: "a@x.io"},
	}
	out := Customers(in, collector())
	if len(out) != 2 {
		t.Fatalf("want 2 records, got %d: %+v", len(out), out)
	}
	seen := map[string]string{}
	for _, c := range out {
		if prev, dup := seen[c.Email]; dup {
			t.Fatalf("email %s appears twice (%s and %s)", c.Email, prev, c.CustomerID)
		}
		seen[c.Email] = c.CustomerID
	}
	// "10" is newest numerically even though "9" > "10" lexically.
	if seen["a@x.io"] != "10" {
		t.Fatalf("want customer 10 to survive for a@x.io, got %s", seen["a@x.io"])
	}
}

func TestCustomers_TieKeepsLastSeen(t *testing.T) {
	in := []model.Customer{
		{CustomerID: "5", Email: "a@x.io", FirstName: "First"},
		{CustomerID: "5", Email: "a@x.io", FirstName: "Second"},
	}
	out := Customers(in, collector())
	if len(out) != 1 {
		t.Fatalf("want 1 record, got %d", len(out))
	}
	if out[0].FirstName != "Second" {
		t.Fatalf("tie must keep the last-seen record, got %q", out[0].FirstName)
	}
}

func TestCustomers_EmptyEmailPassesThrough(t *testing.T) {
	in := []model.Customer{
		{CustomerID: "1", Email: ""},
		{CustomerID: "2", Email: ""},
	}
	out := Customers(in, collector())
	if len(out) != 2 {
		t.Fatalf("records without email must not be grouped, got %d", len(out))
	}
}

func TestCustomers_DiscardsLogged(t *testing.T) {
	dc := collector()
	in := []model.Customer{
		{CustomerID: "1", Email: "a@x.io"},
		{CustomerID: "2", Email: "a@x.io"},
	}
	Customers(in, dc)
	events := dc.Events()
	if len(events) != 1 {
		t.Fatalf("want 1 discard event, got %d", len(events))
	}
	if events[0].Key != "1" {
		t.Fatalf("want discarded key 1, got %s", events[0].Key)
	}
}

func TestCustomers_Deterministic(t *testing.T) {
	in := []model.Customer{
		{CustomerID: "3", Email: "c@x.io"},
		{CustomerID: "1", Email: "a@x.io"},
		{CustomerID: "2", Email: "a@x.io"},
	}
	first := Customers(in, collector())
	second := Customers(in, collector())
	if len(first) != len(second) {
		t.Fatalf("length differs between runs")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}
