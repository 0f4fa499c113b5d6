// Package chart renders small summary tables as SVG bar charts.
package chart

import (
	"bytes"
	"fmt"
	"html"
	"math"
)

// Bar is one row of a summary table.
type Bar struct {
	Label string
	Value float64
	Color string // CSS color; empty picks from the default palette
}

var palette = []string{"#4c78a8", "#f58518", "#54a24b", "#e45756", "#72b7b2", "#b279a2"}

const (
	chartWidth   = 720
	chartHeight  = 360
	marginLeft   = 60
	marginRight  = 20
	marginTop    = 50
	marginBottom = 70
)

// RenderSVG draws a vertical bar chart. Negative values are clipped to the
// baseline; the score chart never goes negative for catalog products under
// ten hours, but extreme inputs can.
func RenderSVG(title string, bars []Bar) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif">`+"\n",
		chartWidth, chartHeight)
	fmt.Fprintf(&buf, `<text x="%d" y="28" font-size="18">%s</text>`+"\n", marginLeft, html.EscapeString(title))

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBottom
	baseline := marginTop + plotH

	maxVal := 0.0
	for _, b := range bars {
		if b.Value > maxVal {
			maxVal = b.Value
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	// axis
	fmt.Fprintf(&buf, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#666"/>`+"\n",
		marginLeft, baseline, marginLeft+plotW, baseline)

	n := len(bars)
	if n > 0 {
		slot := float64(plotW) / float64(n)
		barW := slot * 0.6
		for i, b := range bars {
			v := math.Max(b.Value, 0)
			h := v / maxVal * float64(plotH)
			x := float64(marginLeft) + slot*float64(i) + (slot-barW)/2
			y := float64(baseline) - h
			color := b.Color
			if color == "" {
				color = palette[i%len(palette)]
			}
			fmt.Fprintf(&buf, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
				x, y, barW, h, html.EscapeString(color))
			fmt.Fprintf(&buf, `<text x="%.1f" y="%.1f" font-size="12" text-anchor="middle">%s</text>`+"\n",
				x+barW/2, y-6, trimNumber(b.Value))
			fmt.Fprintf(&buf, `<text x="%.1f" y="%d" font-size="12" text-anchor="end" transform="rotate(-35 %.1f %d)">%s</text>`+"\n",
				x+barW/2, baseline+16, x+barW/2, baseline+16, html.EscapeString(b.Label))
		}
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func trimNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
