package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const axisWidth = 5

var fillLevels = []rune(" ▁▂▃▄▅▆▇█")

// series is one metric drawn as an area chart.
type series struct {
	label  string
	unit   string
	values []float64 // oldest first
	max    float64   // top of the y axis; the bottom is 0
	color  func(v float64) lipgloss.Style
}

// render draws the series in a box of the given width, height rows tall,
// with the time span under the x axis:
//
//	CPU  now: 42.0%
//	 100│
//	  50│    ▂▅█▇▃
//	   0│▁▃▆██████████▆▃▁
//	    └────────────────
//	    16:30:00  16:31:00
func (s series) render(width, height int, start, end time.Time) string {
	height = max(height, 2)
	top := s.max
	if top <= 0 {
		top = 1
	}
	cols := resampleData(s.values, max(width-axisWidth-1, 10))

	var sb strings.Builder
	now := 0.0
	if n := len(s.values); n > 0 {
		now = s.values[n-1]
	}
	sb.WriteString(titleStyle.Render(s.label))
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  now: %.1f%s", now, s.unit)))
	sb.WriteByte('\n')

	for row := height; row >= 1; row-- {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%4.0f│", top*float64(row)/float64(height))))
		for _, v := range cols {
			r := cellRune(v/top*float64(height), row)
			if r == ' ' {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(s.color(v).Render(string(r)))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(dimStyle.Render(strings.Repeat(" ", axisWidth-1) + "└" + strings.Repeat("─", len(cols))))
	sb.WriteByte('\n')

	if start.IsZero() || end.IsZero() {
		return sb.String()
	}
	from, to := start.Format("15:04:05"), end.Format("15:04:05")
	gap := max(len(cols)-len(from)-len(to), 1)
	sb.WriteString(dimStyle.Render(strings.Repeat(" ", axisWidth) + from + strings.Repeat(" ", gap) + to))
	return sb.String()
}

// cellRune picks the glyph for row (1 = bottom) given a value already scaled
// to rows.
func cellRune(scaled float64, row int) rune {
	fill := scaled - float64(row-1)
	switch {
	case fill >= 1:
		return fillLevels[len(fillLevels)-1]
	case fill <= 0:
		return ' '
	}
	return fillLevels[int(fill*float64(len(fillLevels)-1))]
}

// resampleData averages data down to at most width columns.
func resampleData(data []float64, width int) []float64 {
	if width <= 0 || len(data) <= width {
		return data
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(data) / width
		hi := max((i+1)*len(data)/width, lo+1)
		var sum float64
		for _, v := range data[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func pctChartColor(v float64) lipgloss.Style { return pctColor(v) }

// diskChartColor colors throughput in MB/s.
func diskChartColor(v float64) lipgloss.Style {
	switch {
	case v >= 100:
		return critStyle
	case v >= 50:
		return warnStyle
	}
	return okStyle
}

var scaleSteps = []float64{1, 2, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100}

// autoScale returns a y-axis top with roughly 30% headroom over the largest
// value: the next step up to 100, then the next multiple of 100.
func autoScale(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		peak = math.Max(peak, v)
	}
	if peak <= 0 {
		return 5
	}
	want := peak * 1.3
	for _, step := range scaleSteps {
		if want <= step {
			return step
		}
	}
	return math.Ceil(want/100) * 100
}
