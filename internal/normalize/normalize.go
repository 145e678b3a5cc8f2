// Package normalize cleans the raw row sets: canonical categories, price
// correction and fill, date parsing, name splitting, and dropping rows with
// missing critical keys. Every correction is recorded on the diagnostics
// collector.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"retl/internal/diag"
	"retl/internal/model"
)

// canonicalCategories maps the case-folded form to the canonical one.
var canonicalCategories = map[string]string{
	"electronics": "Electronics",
	"clothing":    "Clothing",
	"books":       "Books",
	"food":        "Food",
	"toys":        "Toys",
	"home":        "Home",
}

// dateFormats is the ordered list of accepted transaction date layouts.
// First match wins.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var titleCaser = cases.Title(language.English)

// Category returns the canonical category for any casing or padding of a
// known category. Unknown categories come back title-cased with ok=false.
// Idempotent: normalizing an already-normalized value is a no-op.
func Category(raw string) (string, bool) {
	folded := strings.ToLower(strings.TrimSpace(raw))
	if canon, ok := canonicalCategories[folded]; ok {
		return canon, true
	}
	if folded == "" {
		return "Other", false
	}
	return titleCaser.String(folded), false
}

// ParseDate tries each accepted layout in order.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SplitName splits a full name on the first whitespace boundary. A single
// token yields an empty last name.
func SplitName(full string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

// Products cleans the raw product rows. Price fill uses the mean of valid
// prices in the same normalized category, falling back to the global mean
// when the category has none.
func Products(rows []model.RawRow, dc *diag.Collector) []model.Product {
	type pending struct {
		p            model.Product
		priceMissing bool
	}

	var out []pending
	catSum := make(map[string]float64)
	catN := make(map[string]int)
	var globalSum float64
	var globalN int
	var droppedKeys, unknownCats []string

	for _, row := range rows {
		id := row.Get("product_id")
		if id == "" {
			dc.Record(diag.StageNormalize, "missing_product_id", lineKey(row), "row dropped")
			droppedKeys = append(droppedKeys, lineKey(row))
			continue
		}

		name := row.Get("product_name")
		if name == "" {
			name = row.Get("name")
		}
		if name == "" {
			name = "Unknown"
			dc.Record(diag.StageNormalize, "missing_product_name", id, "filled with Unknown")
		}

		category, known := Category(row.Get("category"))
		if !known {
			dc.Record(diag.StageNormalize, "unknown_category", id, "passed through as "+category)
			unknownCats = append(unknownCats, id)
		}

		p := pending{p: model.Product{ProductID: id, Name: name, Category: category}}
		rawPrice := row.Get("price")
		price, err := strconv.ParseFloat(rawPrice, 64)
		switch {
		case rawPrice == "":
			p.priceMissing = true
			dc.Record(diag.StageNormalize, "missing_price", id, "marked for category mean fill")
		case err != nil:
			p.priceMissing = true
			dc.Record(diag.StageNormalize, "non_numeric_price", id, "marked for category mean fill")
		case price < 0:
			p.p.Price = -price
			dc.Record(diag.StageNormalize, "negative_price", id, "converted to absolute value")
		default:
			p.p.Price = price
		}
		if !p.priceMissing {
			catSum[category] += p.p.Price
			catN[category]++
			globalSum += p.p.Price
			globalN++
		}
		out = append(out, p)
	}

	var globalMean float64
	if globalN > 0 {
		globalMean = globalSum / float64(globalN)
	}

	products := make([]model.Product, 0, len(out))
	seen := make(map[string]bool, len(out))
	var filled []string
	for _, p := range out {
		if seen[p.p.ProductID] {
			dc.Record(diag.StageNormalize, "duplicate_product_id", p.p.ProductID, "later row dropped")
			continue
		}
		seen[p.p.ProductID] = true
		if p.priceMissing {
			if n := catN[p.p.Category]; n > 0 {
				p.p.Price = catSum[p.p.Category] / float64(n)
			} else {
				p.p.Price = globalMean
			}
			p.p.PriceFilled = true
			dc.Record(diag.StageNormalize, "price_filled", p.p.ProductID, "filled with mean price")
			filled = append(filled, p.p.ProductID)
		}
		products = append(products, p.p)
	}

	dc.Summary(diag.StageNormalize, "products_dropped", len(droppedKeys), droppedKeys)
	dc.Summary(diag.StageNormalize, "unknown_category", len(unknownCats), unknownCats)
	dc.Summary(diag.StageNormalize, "price_filled", len(filled), filled)
	return products
}

// Customers cleans the raw customer rows. Email stays on the record even
// when malformed so dedup remains deterministic; malformed addresses are
// only flagged.
func Customers(rows []model.RawRow, dc *diag.Collector) []model.Customer {
	var out []model.Customer
	var dropped []string
	for _, row := range rows {
		id := row.Get("customer_id")
		if id == "" {
			dc.Record(diag.StageNormalize, "missing_customer_id", lineKey(row), "row dropped")
			dropped = append(dropped, lineKey(row))
			continue
		}
		first, last := SplitName(row.Get("name"))
		email := strings.ToLower(row.Get("email"))
		if email != "" && (!strings.Contains(email, "@") || !strings.Contains(email, ".")) {
			dc.Record(diag.StageNormalize, "invalid_email", id, "kept as-is, flagged")
		}
		country := row.Get("country")
		if country == "" {
			country = "Unknown"
		}
		out = append(out, model.Customer{
			CustomerID: id,
			FirstName:  first,
			LastName:   last,
			Email:      email,
			Country:    country,
		})
	}
	dc.Summary(diag.StageNormalize, "customers_dropped", len(dropped), dropped)
	return out
}

// Sales cleans the raw sales rows. Rows with unparseable dates are dropped
// rather than defaulted so the incremental watermark never sees a fabricated
// date. Non-positive quantities are corrected to 1.
func Sales(rows []model.RawRow, dc *diag.Collector) []model.Sale {
	var out []model.Sale
	var dropped, badDates []string
	for _, row := range rows {
		txID := row.Get("transaction_id")
		productID := row.Get("product_id")
		customerID := row.Get("customer_id")
		if txID == "" || productID == "" || customerID == "" {
			dc.Record(diag.StageNormalize, "missing_critical_field", lineKey(row), "row dropped")
			dropped = append(dropped, lineKey(row))
			continue
		}

		ts, ok := ParseDate(row.Get("transaction_date"))
		if !ok {
			dc.Record(diag.StageNormalize, "unparseable_date", txID, "row dropped")
			badDates = append(badDates, txID)
			continue
		}

		qty, err := strconv.ParseInt(row.Get("quantity"), 10, 64)
		if err != nil || qty <= 0 {
			dc.Record(diag.StageNormalize, "invalid_quantity", txID, "corrected to 1")
			qty = 1
		}

		out = append(out, model.Sale{
			TransactionID:   txID,
			ProductID:       productID,
			CustomerID:      customerID,
			TransactionDate: ts,
			Quantity:        qty,
		})
	}
	dc.Summary(diag.StageNormalize, "sales_dropped", len(dropped), dropped)
	dc.Summary(diag.StageNormalize, "unparseable_date", len(badDates), badDates)
	return out
}

func lineKey(row model.RawRow) string {
	return "line:" + strconv.Itoa(row.Line)
}
