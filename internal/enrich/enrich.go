// Package enrich produces the final record sets: metadata merge and
// popularity for products, derived columns for sales, and purchase
// categorization for customers.
package enrich

import (
	"fmt"
	"time"

	"retl/internal/diag"
	"retl/internal/model"
)

// Options control the behaviors the source material leaves open.
type Options struct {
	// BuyerWindowDays bounds the transaction window used for customer
	// categorization. Zero means all-time.
	BuyerWindowDays int
	// DropUnknownCustomerSales drops sales rows whose customer reference
	// does not resolve instead of keeping them flagged.
	DropUnknownCustomerSales bool
}

// MergeMetadata left-joins products to fetched metadata on the canonical
// string key. Products without a match get the default-filled metadata.
func MergeMetadata(products []model.Product, meta map[string]model.Metadata, dc *diag.Collector) []model.Product {
	out := make([]model.Product, len(products))
	var unmatched []string
	for i, p := range products {
		if m, ok := meta[p.ProductID]; ok {
			p.Description = m.Description
			p.Rating = m.Rating
			p.AvailabilityStatus = m.AvailabilityStatus
		} else {
			p.Description = model.DefaultDescription
			p.Rating = model.DefaultRating
			p.AvailabilityStatus = model.AvailabilityUnknown
			dc.Record(diag.StageEnrich, "metadata_missing", p.ProductID, "defaults applied")
			unmatched = append(unmatched, p.ProductID)
		}
		out[i] = p
	}
	dc.Summary(diag.StageEnrich, "metadata_missing", len(unmatched), unmatched)
	return out
}

// ScorePopularity sets each product's popularity to its share of the
// highest total sold quantity, scaled to 0-100. With no sales at all every
// product scores 0.
func ScorePopularity(products []model.Product, sales []model.Sale) []model.Product {
	totals := make(map[string]int64)
	var max int64
	for _, s := range sales {
		totals[s.ProductID] += s.Quantity
		if totals[s.ProductID] > max {
			max = totals[s.ProductID]
		}
	}
	out := make([]model.Product, len(products))
	for i, p := range products {
		if max > 0 {
			p.PopularityScore = float64(totals[p.ProductID]) / float64(max) * 100
		} else {
			p.PopularityScore = 0
		}
		out[i] = p
	}
	return out
}

// TransformSales left-joins sales to cleaned products and derives
// total_sales_value and purchase_month. Rows with an unresolved product
// reference are kept with PriceMissing set; they never contribute to
// revenue aggregates. Unresolved customer references are dropped or kept
// flagged per Options.
func TransformSales(sales []model.Sale, products []model.Product, customers []model.Customer, opts Options, dc *diag.Collector) []model.Sale {
	prices := make(map[string]float64, len(products))
	for _, p := range products {
		prices[p.ProductID] = p.Price
	}
	knownCustomers := make(map[string]bool, len(customers))
	for _, c := range customers {
		knownCustomers[c.CustomerID] = true
	}

	out := make([]model.Sale, 0, len(sales))
	var noProduct, noCustomer []string
	for _, s := range sales {
		price, ok := prices[s.ProductID]
		if ok {
			s.Price = price
			s.TotalSalesValue = float64(s.Quantity) * price
		} else {
			s.PriceMissing = true
			dc.Record(diag.StageEnrich, "unknown_product_ref", s.ProductID,
				fmt.Sprintf("transaction %s kept with price_missing flag", s.TransactionID))
			noProduct = append(noProduct, s.ProductID)
		}
		if !knownCustomers[s.CustomerID] {
			noCustomer = append(noCustomer, s.CustomerID)
			if opts.DropUnknownCustomerSales {
				dc.Record(diag.StageEnrich, "unknown_customer_ref", s.CustomerID,
					fmt.Sprintf("transaction %s dropped", s.TransactionID))
				continue
			}
			dc.Record(diag.StageEnrich, "unknown_customer_ref", s.CustomerID,
				fmt.Sprintf("transaction %s kept", s.TransactionID))
		}
		s.PurchaseMonth = s.TransactionDate.Format("2006-01")
		out = append(out, s)
	}
	dc.Summary(diag.StageEnrich, "unknown_product_ref", len(noProduct), noProduct)
	dc.Summary(diag.StageEnrich, "unknown_customer_ref", len(noCustomer), noCustomer)
	return out
}

// CategorizeCustomers assigns the purchase category from transaction counts
// over the configured window: more than 10 is Frequent, 5 to 10 is
// Occasional, fewer is Rare. The window trails back from the latest
// transaction date in the set so re-running over historical data is
// deterministic.
func CategorizeCustomers(customers []model.Customer, sales []model.Sale, opts Options) []model.Customer {
	var cutoff time.Time
	if opts.BuyerWindowDays > 0 {
		var latest time.Time
		for _, s := range sales {
			if s.TransactionDate.After(latest) {
				latest = s.TransactionDate
			}
		}
		cutoff = latest.AddDate(0, 0, -opts.BuyerWindowDays)
	}

	counts := make(map[string]int)
	for _, s := range sales {
		if !cutoff.IsZero() && !s.TransactionDate.After(cutoff) {
			continue
		}
		counts[s.CustomerID]++
	}

	out := make([]model.Customer, len(customers))
	for i, c := range customers {
		switch n := counts[c.CustomerID]; {
		case n > 10:
			c.PurchaseCategory = model.BuyerFrequent
		case n >= 5:
			c.PurchaseCategory = model.BuyerOccasional
		default:
			c.PurchaseCategory = model.BuyerRare
		}
		out[i] = c
	}
	return out
}

// MonthlyRevenue aggregates total_sales_value by purchase month and
// category, skipping rows flagged price-missing.
func MonthlyRevenue(sales []model.Sale, products []model.Product) map[string]map[string]float64 {
	categories := make(map[string]string, len(products))
	for _, p := range products {
		categories[p.ProductID] = p.Category
	}
	out := make(map[string]map[string]float64)
	for _, s := range sales {
		if s.PriceMissing {
			continue
		}
		cat, ok := categories[s.ProductID]
		if !ok {
			continue
		}
		if out[s.PurchaseMonth] == nil {
			out[s.PurchaseMonth] = make(map[string]float64)
		}
		out[s.PurchaseMonth][cat] += s.TotalSalesValue
	}
	return out
}
