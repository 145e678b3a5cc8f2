// gendata writes sample products.csv, sales.csv and customers.csv with the
// same kinds of injected quality issues the pipeline is built to correct:
// inconsistent category casings, negative and non-numeric prices, duplicate
// customers, invalid dates and quantities, missing keys.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func main() {
	var (
		outDir    string
		products  int
		customers int
		sales     int
		seed      int64
	)
	flag.StringVar(&outDir, "out", ".", "output directory")
	flag.IntVar(&products, "products", 150, "number of product rows")
	flag.IntVar(&customers, "customers", 600, "number of customer rows")
	flag.IntVar(&sales, "sales", 1500, "number of sales rows")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "rng seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(seed))
	if err := generate(outDir, products, customers, sales, rng); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
	log.Printf("generated %d products, %d customers, %d sales under %s (seed=%d)",
		products, customers, sales, outDir, seed)
}

func generate(outDir string, nProducts, nCustomers, nSales int, rng *rand.Rand) error {
	if err := writeProducts(filepath.Join(outDir, "products.csv"), nProducts, rng); err != nil {
		return err
	}
	if err := writeCustomers(filepath.Join(outDir, "customers.csv"), nCustomers, rng); err != nil {
		return err
	}
	return writeSales(filepath.Join(outDir, "sales.csv"), nSales, nProducts, nCustomers, rng)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	return w.Error()
}

var categories = []string{
	"Electronics", "electronics", "ELECTRONICS",
	"Clothing", "clothing",
	"Books", "Food", "Gadgets", "",
}

var firstNames = []string{"Jane", "John", "Maria", "Wei", "Ayo", "Lena", "Igor", "Sara"}
var lastNames = []string{"Doe", "Smith", "Garcia", "Chen", "Okafor", "Novak", ""}

func writeProducts(path string, n int, rng *rand.Rand) error {
	rows := make([][]string, 0, n)
	for i := 1; i <= n; i++ {
		price := strconv.FormatFloat(5+rng.Float64()*495, 'f', 2, 64)
		switch {
		case rng.Intn(100) < 5:
			price = "-" + price
		case rng.Intn(100) < 5:
			price = "notaprice"
		case rng.Intn(100) < 5:
			price = ""
		}
		name := "product-" + strconv.Itoa(i)
		if rng.Intn(100) < 8 {
			name = ""
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			name,
			categories[rng.Intn(len(categories))],
			price,
		})
	}
	return writeCSV(path, []string{"product_id", "product_name", "category", "price"}, rows)
}

func writeCustomers(path string, n int, rng *rand.Rand) error {
	rows := make([][]string, 0, n+n/10)
	for i := 1; i <= n; i++ {
		name := firstNames[rng.Intn(len(firstNames))]
		if last := lastNames[rng.Intn(len(lastNames))]; last != "" {
			name += " " + last
		}
		email := fmt.Sprintf("user%d@example.com", i)
		if rng.Intn(100) < 10 {
			email = "not-an-email"
		}
		country := "US"
		if rng.Intn(100) < 20 {
			country = ""
		}
		rows = append(rows, []string{strconv.Itoa(i), name, email, country})
	}
	// Reuse an existing email under a new customer_id: a duplicate for dedup.
	for i := 0; i < n/10; i++ {
		src := rows[rng.Intn(len(rows))]
		rows = append(rows, []string{strconv.Itoa(n + i + 1), src[1], src[2], src[3]})
	}
	return writeCSV(path, []string{"customer_id", "name", "email", "country"}, rows)
}

func writeSales(path string, n, nProducts, nCustomers int, rng *rand.Rand) error {
	base := time.Now().UTC().AddDate(0, -6, 0)
	rows := make([][]string, 0, n)
	for i := 1; i <= n; i++ {
		productID := strconv.Itoa(1 + rng.Intn(nProducts))
		if rng.Intn(100) < 5 {
			productID = "" // missing critical field
		} else if rng.Intn(100) < 3 {
			productID = strconv.Itoa(nProducts + 1000) // dangling reference
		}
		customerID := strconv.Itoa(1 + rng.Intn(nCustomers))
		if rng.Intn(100) < 5 {
			customerID = ""
		}
		qty := strconv.Itoa(1 + rng.Intn(10))
		if rng.Intn(100) < 10 {
			qty = strconv.Itoa(-rng.Intn(10))
		}
		date := base.AddDate(0, 0, rng.Intn(180)).Format("2006-01-02")
		switch rng.Intn(30) {
		case 0:
			date = "2024/13/40"
		case 1:
			date = "InvalidDate"
		}
		rows = append(rows, []string{strconv.Itoa(i), productID, customerID, date, qty})
	}
	return writeCSV(path, []string{"transaction_id", "product_id", "customer_id", "transaction_date", "quantity"}, rows)
}
