// Package chartimage rasterizes chart drawables to PNG for downloads and
// embedding outside the browser.
package chartimage

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/duckmesh/reportdesk/internal/chart"
)

// ErrNotPlottable is returned for drawables without an x/y plot: KPI tiles,
// tables and charts whose points carry no usable values.
var ErrNotPlottable = errors.New("chartimage: drawable is not plottable")

const (
	DefaultWidth  = 960
	DefaultHeight = 480
	MinDimension  = 200
	MaxDimension  = 4096
)

type Options struct {
	Width  int
	Height int
}

func (o Options) normalized() Options {
	o.Width = clampDimension(o.Width, DefaultWidth)
	o.Height = clampDimension(o.Height, DefaultHeight)
	return o
}

func clampDimension(value, fallback int) int {
	switch {
	case value <= 0:
		return fallback
	case value < MinDimension:
		return MinDimension
	case value > MaxDimension:
		return MaxDimension
	}
	return value
}

// Render draws d as a PNG image.
func Render(d chart.Drawable, opts Options) ([]byte, error) {
	opts = opts.normalized()
	switch d.Mark {
	case "", "kpi", "table":
		return nil, fmt.Errorf("%w: template %s has no plot", ErrNotPlottable, d.Template)
	case "bar":
		return renderBars(d, opts)
	default:
		return renderSeries(d, opts)
	}
}

func encodingFor(d chart.Drawable, role chart.Role) (chart.Encoding, bool) {
	for _, encoding := range d.Encodings {
		if encoding.Role == role {
			return encoding, true
		}
	}
	return chart.Encoding{}, false
}

func renderBars(d chart.Drawable, opts Options) ([]byte, error) {
	x, okX := encodingFor(d, chart.RoleX)
	y, okY := encodingFor(d, chart.RoleY)
	if !okX || !okY {
		return nil, fmt.Errorf("%w: bar chart needs x and y", ErrNotPlottable)
	}
	color, stacked := encodingFor(d, chart.RoleColor)

	var (
		labels []string
		groups []string
		sums   = map[string]map[string]float64{}
	)
	for _, point := range d.Points {
		value, ok := chart.NumericValue(point[y.Column])
		if !ok {
			continue
		}
		label := labelOf(point[x.Column])
		group := y.Column
		if stacked {
			group = labelOf(point[color.Column])
		}
		if _, seen := sums[label]; !seen {
			sums[label] = map[string]float64{}
			labels = append(labels, label)
		}
		if !containsString(groups, group) {
			groups = append(groups, group)
		}
		sums[label][group] += value
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no numeric %s values", ErrNotPlottable, y.Column)
	}

	var buf bytes.Buffer
	if !stacked {
		bars := make([]gochart.Value, 0, len(labels))
		lo, hi := 0.0, 0.0
		for _, label := range labels {
			lo, hi = math.Min(lo, sums[label][y.Column]), math.Max(hi, sums[label][y.Column])
			bars = append(bars, gochart.Value{
				Label: label,
				Value: sums[label][y.Column],
				Style: fillStyle(colorAt(d.Palette, 0)),
			})
		}
		bc := gochart.BarChart{
			Title:        d.Title,
			Width:        opts.Width,
			Height:       opts.Height,
			Background:   gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
			BarWidth:     barWidth(opts.Width, len(bars)),
			UseBaseValue: true,
			BaseValue:    0,
			Bars:         bars,
		}
		if r := flatRange(lo, hi, 1); r != nil {
			bc.YAxis.Range = r
		}
		if err := bc.Render(gochart.PNG, &buf); err != nil {
			return nil, renderFailure("bar", err)
		}
		return buf.Bytes(), nil
	}

	stacks := make([]gochart.StackedBar, 0, len(labels))
	total := 0.0
	for _, label := range labels {
		for _, value := range sums[label] {
			total += math.Abs(value)
		}
	}
	// Segment heights are shares of each bar's total.
	if total == 0 {
		return nil, fmt.Errorf("%w: every %s value is zero", ErrNotPlottable, y.Column)
	}
	for _, label := range labels {
		values := make([]gochart.Value, 0, len(groups))
		for index, group := range groups {
			value, ok := sums[label][group]
			if !ok {
				continue
			}
			values = append(values, gochart.Value{Label: group, Value: value, Style: fillStyle(colorAt(d.Palette, index))})
		}
		stacks = append(stacks, gochart.StackedBar{Name: label, Values: values})
	}
	sbc := gochart.StackedBarChart{
		Title:      d.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		BarSpacing: 8,
		Bars:       stacks,
	}
	if err := sbc.Render(gochart.PNG, &buf); err != nil {
		return nil, renderFailure("stacked bar", err)
	}
	return buf.Bytes(), nil
}

type plotSeries struct {
	name      string
	times     []time.Time
	xs        []float64
	ys        []float64
	secondary bool
}

func renderSeries(d chart.Drawable, opts Options) ([]byte, error) {
	x, okX := encodingFor(d, chart.RoleX)
	y, okY := encodingFor(d, chart.RoleY)
	if !okX || !okY {
		return nil, fmt.Errorf("%w: %s chart needs x and y", ErrNotPlottable, d.Mark)
	}
	y2, hasY2 := encodingFor(d, chart.RoleY2)
	color, grouped := encodingFor(d, chart.RoleColor)
	measures := []chart.Encoding{y}
	if hasY2 {
		measures = append(measures, y2)
	}

	var (
		order      []string
		byKey      = map[string]*plotSeries{}
		categories []string
		minX, minY, minY2 = math.Inf(1), math.Inf(1), math.Inf(1)
		maxX, maxY, maxY2 = math.Inf(-1), math.Inf(-1), math.Inf(-1)
	)
	for _, point := range d.Points {
		group := ""
		if grouped {
			group = labelOf(point[color.Column])
		}
		var (
			at     time.Time
			xValue float64
			ok     bool
		)
		switch x.Field {
		case chart.FieldTemporal:
			at, ok = timeOf(point[x.Column])
		case chart.FieldQuantitative:
			xValue, ok = chart.NumericValue(point[x.Column])
		default:
			label := labelOf(point[x.Column])
			index := indexOf(categories, label)
			if index < 0 {
				index = len(categories)
				categories = append(categories, label)
			}
			xValue, ok = float64(index), true
		}
		if !ok {
			continue
		}
		if x.Field == chart.FieldTemporal {
			xValue = gochart.TimeToFloat64(at)
		}
		for _, measure := range measures {
			yValue, ok := chart.NumericValue(point[measure.Column])
			if !ok {
				continue
			}
			key := group + "\x1f" + measure.Column
			s, seen := byKey[key]
			if !seen {
				s = &plotSeries{name: seriesName(group, measure.Column, grouped, hasY2), secondary: measure.Role == chart.RoleY2}
				byKey[key] = s
				order = append(order, key)
			}
			s.times = append(s.times, at)
			s.xs = append(s.xs, xValue)
			s.ys = append(s.ys, yValue)
			minX, maxX = math.Min(minX, xValue), math.Max(maxX, xValue)
			if s.secondary {
				minY2, maxY2 = math.Min(minY2, yValue), math.Max(maxY2, yValue)
			} else {
				minY, maxY = math.Min(minY, yValue), math.Max(maxY, yValue)
			}
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no numeric %s values", ErrNotPlottable, y.Column)
	}

	series := make([]gochart.Series, 0, len(order))
	for index, key := range order {
		s := byKey[key]
		padSinglePoint(s)
		style := seriesStyle(d, colorAt(d.Palette, index))
		axis := gochart.YAxisPrimary
		if s.secondary {
			axis = gochart.YAxisSecondary
		}
		if x.Field == chart.FieldTemporal {
			series = append(series, gochart.TimeSeries{Name: s.name, XValues: s.times, YValues: s.ys, Style: style, YAxis: axis})
		} else {
			series = append(series, gochart.ContinuousSeries{Name: s.name, XValues: s.xs, YValues: s.ys, Style: style, YAxis: axis})
		}
	}

	xAxis := gochart.XAxis{Name: x.Column}
	xPad := 1.0
	if x.Field == chart.FieldTemporal {
		xPad = float64(24 * time.Hour)
	}
	if r := flatRange(minX, maxX, xPad); r != nil {
		xAxis.Range = r
	}
	switch {
	case x.Field == chart.FieldTemporal:
		xAxis.ValueFormatter = gochart.TimeDateValueFormatter
	case len(categories) > 0:
		ticks := make([]gochart.Tick, 0, len(categories))
		for index, label := range categories {
			ticks = append(ticks, gochart.Tick{Value: float64(index), Label: label})
		}
		xAxis.Ticks = ticks
	}
	yAxis := gochart.YAxis{Name: y.Column}
	if r := flatRange(minY, maxY, 1); r != nil {
		yAxis.Range = r
	}

	ch := gochart.Chart{
		Title:      d.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      yAxis,
		Series:     series,
	}
	if hasY2 {
		ch.YAxisSecondary = gochart.YAxis{Name: y2.Column}
		if r := flatRange(minY2, maxY2, 1); r != nil {
			ch.YAxisSecondary.Range = r
		}
	}
	if len(series) > 1 {
		ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return nil, renderFailure(d.Mark, err)
	}
	return buf.Bytes(), nil
}

// flatRange widens a zero-width axis by pad on both sides. It returns nil
// when lo < hi or when no value was seen.
func flatRange(lo, hi, pad float64) *gochart.ContinuousRange {
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo < hi {
		return nil
	}
	return &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// renderFailure reports data go-chart cannot lay out as not plottable.
func renderFailure(kind string, err error) error {
	return fmt.Errorf("%w: render %s chart: %v", ErrNotPlottable, kind, err)
}

// padSinglePoint gives a one-point series a second point so the axis range
// is never zero wide.
func padSinglePoint(s *plotSeries) {
	if len(s.ys) != 1 {
		return
	}
	s.times = append(s.times, s.times[0].Add(24*time.Hour))
	s.xs = append(s.xs, s.xs[0]+1)
	s.ys = append(s.ys, s.ys[0])
}

func seriesName(group, measure string, grouped, dual bool) string {
	switch {
	case grouped && dual:
		return group + " " + measure
	case grouped:
		return group
	}
	return measure
}

func seriesStyle(d chart.Drawable, color drawing.Color) gochart.Style {
	if d.Mark == "line" {
		return gochart.Style{StrokeWidth: 2, StrokeColor: color}
	}
	dot := d.PointSize
	if dot <= 0 {
		dot = 4
	}
	return gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: dot, DotColor: color}
}

func fillStyle(color drawing.Color) gochart.Style {
	return gochart.Style{FillColor: color, StrokeColor: color, StrokeWidth: 1}
}

// colorAt prefers palette overrides and falls back to the default series
// colors.
func colorAt(palette []string, index int) drawing.Color {
	if index < len(palette) {
		hex := strings.TrimPrefix(strings.TrimSpace(palette[index]), "#")
		if len(hex) == 3 || len(hex) == 6 {
			return drawing.ColorFromHex(hex)
		}
	}
	return gochart.GetDefaultColor(index)
}

func barWidth(width, bars int) int {
	if bars <= 0 {
		return 40
	}
	w := (width - 120) / (bars * 2)
	switch {
	case w < 4:
		return 4
	case w > 60:
		return 60
	}
	return w
}

func labelOf(value any) string {
	switch v := value.(type) {
	case nil:
		return "(null)"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	case string:
		return v
	}
	return fmt.Sprint(value)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func timeOf(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case []byte:
		return timeOf(string(v))
	case string:
		for _, layout := range timeLayouts {
			if at, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return at, true
			}
		}
	}
	return time.Time{}, false
}

func indexOf(values []string, target string) int {
	for index, value := range values {
		if value == target {
			return index
		}
	}
	return -1
}

func containsString(values []string, target string) bool {
	return indexOf(values, target) >= 0
}
