// Package tabular reads and writes the CSV interchange files for orders and
// products. Writing what was just read produces byte-identical output, so a
// load/save round trip is safe to run repeatedly.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"loomline/internal/domain"
)

var orderHeader = []string{
	"id", "name", "product", "urgency", "cost", "production_hours",
	"score", "deadline", "status", "created_at", "completed_at",
}

var productHeader = []string{"name", "standard_hours", "created_at"}

// WriteOrders encodes orders with a fixed header row.
func WriteOrders(w io.Writer, orders []domain.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return err
	}
	for _, o := range orders {
		completed := ""
		if o.CompletedAt != nil {
			completed = *o.CompletedAt
		}
		record := []string{
			o.ID, o.Name, o.Product,
			strconv.Itoa(o.Urgency),
			formatFloat(o.Cost),
			formatFloat(o.ProductionHours),
			formatFloat(o.Score),
			o.Deadline, o.Status, o.CreatedAt, completed,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadOrders decodes orders, validating the header first.
func ReadOrders(r io.Reader) ([]domain.Order, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read orders CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("orders CSV is empty; want header %v", orderHeader)
	}
	if !headerMatches(records[0], orderHeader) {
		return nil, fmt.Errorf("orders CSV header mismatch: want %v, got %v", orderHeader, records[0])
	}
	var orders []domain.Order
	for i, record := range records[1:] {
		o, err := parseOrder(record)
		if err != nil {
			return nil, fmt.Errorf("orders CSV row %d: %w", i+2, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// WriteProducts encodes the catalog with a fixed header row.
func WriteProducts(w io.Writer, products []domain.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(productHeader); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write([]string{p.Name, formatFloat(p.StandardHours), p.CreatedAt}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadProducts decodes the catalog, validating the header first.
func ReadProducts(r io.Reader) ([]domain.Product, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read products CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("products CSV is empty; want header %v", productHeader)
	}
	if !headerMatches(records[0], productHeader) {
		return nil, fmt.Errorf("products CSV header mismatch: want %v, got %v", productHeader, records[0])
	}
	var products []domain.Product
	for i, record := range records[1:] {
		if len(record) != len(productHeader) {
			return nil, fmt.Errorf("products CSV row %d: want %d columns, got %d", i+2, len(productHeader), len(record))
		}
		hours, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("products CSV row %d: standard_hours: %w", i+2, err)
		}
		products = append(products, domain.Product{Name: record[0], StandardHours: hours, CreatedAt: record[2]})
	}
	return products, nil
}

func parseOrder(record []string) (domain.Order, error) {
	if len(record) != len(orderHeader) {
		return domain.Order{}, fmt.Errorf("want %d columns, got %d", len(orderHeader), len(record))
	}
	urgency, err := strconv.Atoi(record[3])
	if err != nil {
		return domain.Order{}, fmt.Errorf("urgency: %w", err)
	}
	cost, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("cost: %w", err)
	}
	hours, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("production_hours: %w", err)
	}
	score, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("score: %w", err)
	}
	o := domain.Order{
		ID:              record[0],
		Name:            record[1],
		Product:         record[2],
		Urgency:         urgency,
		Cost:            cost,
		ProductionHours: hours,
		Score:           score,
		Deadline:        record[7],
		Status:          record[8],
		CreatedAt:       record[9],
	}
	if record[10] != "" {
		completed := record[10]
		o.CompletedAt = &completed
	}
	return o, nil
}

func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// formatFloat uses the shortest representation that round-trips, which keeps
// re-encoded files byte-identical.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
