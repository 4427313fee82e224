// Package render draws dashboard widgets as SVG charts.
//
// Rendering is a pure collaborator of the fetch pipeline: it receives an
// already reshaped [widget.Widget] and writes an image. It never fetches.
package render

import (
	"errors"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/jpalmerr/stitchboard/widget"
)

// ContentType is the media type of rendered charts.
const ContentType = "image/svg+xml"

const (
	defaultWidth    = 640
	defaultHeight   = 360
	defaultBarWidth = 40
	barSpacing      = 12
	horizontalPad   = 80
)

var (
	// ErrUnsupportedKind is returned for widgets that are not charts.
	ErrUnsupportedKind = errors.New("widget kind cannot be charted")

	// ErrNoData is returned for charts with nothing to draw.
	ErrNoData = errors.New("widget has no data")
)

// Renderer turns a widget into an image written to w.
//
// The widget carries its container id, chart kind and shaped data.
type Renderer interface {
	Render(w io.Writer, wg widget.Widget) error
}

// ChartRenderer renders bar and donut widgets with go-chart.
type ChartRenderer struct {
	// Width and Height are the minimum canvas size in pixels.
	Width  int
	Height int
}

// NewChartRenderer returns a renderer with the default canvas size.
func NewChartRenderer() *ChartRenderer {
	return &ChartRenderer{Width: defaultWidth, Height: defaultHeight}
}

// Render implements [Renderer].
func (r *ChartRenderer) Render(w io.Writer, wg widget.Widget) error {
	switch wg.Kind {
	case widget.KindBar:
		return r.renderBar(w, wg)
	case widget.KindDonut:
		return r.renderDonut(w, wg)
	default:
		return fmt.Errorf("%s: %w: %q", wg.ID, ErrUnsupportedKind, wg.Kind)
	}
}

func (r *ChartRenderer) renderBar(w io.Writer, wg widget.Widget) error {
	if len(wg.Bars) == 0 {
		return fmt.Errorf("%s: %w", wg.ID, ErrNoData)
	}

	bars := make([]chart.Value, len(wg.Bars))
	maxY := 0.0
	for i, p := range wg.Bars {
		bars[i] = chart.Value{Label: p.X, Value: p.Y}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if maxY <= 0 {
		// go-chart cannot draw an empty value range
		maxY = 1
	}

	width := r.Width
	if need := len(bars)*(defaultBarWidth+barSpacing) + horizontalPad; need > width {
		width = need
	}

	bc := chart.BarChart{
		Title:      wg.Title,
		Width:      width,
		Height:     r.Height,
		BarWidth:   defaultBarWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		YAxis: chart.YAxis{
			Name:  wg.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: maxY},
		},
		Bars: bars,
	}

	if err := bc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("%s: render bar chart: %w", wg.ID, err)
	}
	return nil
}

func (r *ChartRenderer) renderDonut(w io.Writer, wg widget.Widget) error {
	values := make([]chart.Value, 0, len(wg.Slices))
	total := 0.0
	for _, s := range wg.Slices {
		if s.Value <= 0 {
			continue
		}
		values = append(values, chart.Value{Label: s.Label, Value: s.Value})
		total += s.Value
	}
	if len(values) == 0 || total <= 0 {
		return fmt.Errorf("%s: %w", wg.ID, ErrNoData)
	}

	size := r.Height
	if r.Width < size {
		size = r.Width
	}

	dc := chart.DonutChart{
		Title:  wg.Title,
		Width:  size,
		Height: size,
		Values: values,
	}

	if err := dc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("%s: render donut chart: %w", wg.ID, err)
	}
	return nil
}
