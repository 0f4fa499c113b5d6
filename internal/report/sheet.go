// Package report renders the printable production order sheet handed to the
// shop floor.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"loomline/internal/domain"
)

// RenderOrderSheet renders one line per order in the order given; the caller
// is expected to pass the queue in score-descending order.
func RenderOrderSheet(orders []domain.Order, generatedAt time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Production Order - Open Orders\n")
	fmt.Fprintf(&buf, "Generated %s\n\n", generatedAt.UTC().Format("2006-01-02 15:04 MST"))

	tw := table.NewWriter()
	tw.SetOutputMirror(&buf)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Order", "Product", "Urgency", "Cost", "Hours", "Deadline"})
	var totalHours float64
	for _, o := range orders {
		tw.AppendRow(table.Row{o.Name, o.Product, o.Urgency, formatNumber(o.Cost), formatNumber(o.ProductionHours), o.Deadline})
		totalHours += o.ProductionHours
	}
	tw.AppendFooter(table.Row{"Total", "", "", "", formatNumber(totalHours), ""})
	tw.Render()
	return buf.Bytes()
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
