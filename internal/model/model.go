package model

import (
	"strings"
	"time"
)

// Availability values carried on enriched products.
const (
	AvailabilityInStock    = "In Stock"
	AvailabilityOutOfStock = "Out of Stock"
	AvailabilityUnknown    = "Unknown"
)

// Purchase categories assigned to customers from their transaction counts.
const (
	BuyerFrequent   = "Frequent"
	BuyerOccasional = "Occasional"
	BuyerRare       = "Rare"
)

// Defaults applied when external metadata is missing a field.
const (
	DefaultDescription = "No description available"
	DefaultRating      = 0.0
)

// RawRow is a single CSV row keyed by header name.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// Get returns a trimmed field value.
func (r RawRow) Get(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Product is a cleaned and enriched product record.
type Product struct {
	ProductID          string  `json:"product_id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	Price              float64 `json:"price"`
	PriceFilled        bool    `json:"price_filled"`
	Description        string  `json:"description"`
	Rating             float64 `json:"rating"`
	AvailabilityStatus string  `json:"availability_status"`
	PopularityScore    float64 `json:"popularity_score"`
}

// Customer is a cleaned customer record. Email is the dedup key and is
// stored lower-cased and trimmed.
type Customer struct {
	CustomerID       string `json:"customer_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Country          string `json:"country"`
	PurchaseCategory string `json:"purchase_category"`
}

// Sale is a cleaned sales transaction. PriceMissing marks rows whose
// product reference did not resolve; they stay in the sales table but are
// excluded from revenue aggregates.
type Sale struct {
	TransactionID   string    `json:"transaction_id"`
	ProductID       string    `json:"product_id"`
	CustomerID      string    `json:"customer_id"`
	TransactionDate time.Time `json:"transaction_date"`
	Quantity        int64     `json:"quantity"`
	Price           float64   `json:"price"`
	PriceMissing    bool      `json:"price_missing"`
	TotalSalesValue float64   `json:"total_sales_value"`
	PurchaseMonth   string    `json:"purchase_month"`
}

// Metadata is one record from the external product metadata source, with
// the remote identifier already coerced to a trimmed string.
type Metadata struct {
	ProductID          string  `json:"product_id"`
	Description        string  `json:"description"`
	Rating             float64 `json:"rating"`
	AvailabilityStatus string  `json:"availability_status"`
}
