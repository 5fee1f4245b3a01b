package view

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

// Geometry of the rendered pie, in SVG user units.
const (
	ChartSize   = 200
	chartCenter = ChartSize / 2
	chartRadius = 90
)

var palette = []string{
	"#36a2eb", "#ff6384", "#ff9f40", "#ffcd56", "#4bc0c0",
	"#9966ff", "#c9cbcf", "#2e7d32", "#8d6e63", "#d81b60",
}

// Slice is one category wedge of the pie chart.
type Slice struct {
	Label      string
	Value      decimal.Decimal
	Percent    decimal.Decimal
	Color      string
	StartAngle float64 // degrees, clockwise from 12 o'clock
	EndAngle   float64
	Path       string // SVG path data; empty when Full
	Full       bool   // the only slice, drawn as a circle
}

type Chart struct {
	Slices []Slice
}

// Empty reports whether there is nothing to draw.
func (c Chart) Empty() bool { return len(c.Slices) == 0 }

func (Chart) Size() int   { return ChartSize }
func (Chart) Center() int { return chartCenter }
func (Chart) Radius() int { return chartRadius }

// NewChart lays out one wedge per category with a positive subtotal. It
// reads from the same summary the totals panel shows.
func NewChart(sum core.Summary) Chart {
	var positive []core.CategoryAmount
	total := decimal.Zero
	for _, c := range sum.ByCategory {
		if c.Amount.IsPositive() {
			positive = append(positive, c)
			total = total.Add(c.Amount)
		}
	}
	if !total.IsPositive() {
		return Chart{}
	}

	totalF := total.InexactFloat64()
	chart := Chart{Slices: make([]Slice, 0, len(positive))}
	angle := 0.0
	for i, c := range positive {
		sweep := 360 * c.Amount.InexactFloat64() / totalF
		end := angle + sweep
		if i == len(positive)-1 {
			end = 360
		}
		s := Slice{
			Label:      c.Name,
			Value:      c.Amount,
			Percent:    c.Percent,
			Color:      palette[i%len(palette)],
			StartAngle: angle,
			EndAngle:   end,
		}
		if len(positive) == 1 {
			s.Full = true
		} else {
			s.Path = wedgePath(angle, end)
		}
		chart.Slices = append(chart.Slices, s)
		angle = end
	}
	return chart
}

func wedgePath(start, end float64) string {
	x1, y1 := polar(start)
	x2, y2 := polar(end)
	large := 0
	if end-start > 180 {
		large = 1
	}
	return fmt.Sprintf("M %d %d L %.3f %.3f A %d %d 0 %d 1 %.3f %.3f Z",
		chartCenter, chartCenter, x1, y1, chartRadius, chartRadius, large, x2, y2)
}

func polar(deg float64) (float64, float64) {
	rad := (deg - 90) * math.Pi / 180
	return chartCenter + chartRadius*math.Cos(rad), chartCenter + chartRadius*math.Sin(rad)
}
