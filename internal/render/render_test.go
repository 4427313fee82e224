package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jpalmerr/stitchboard/widget"
)

func TestChartRenderer_Bar(t *testing.T) {
	var buf bytes.Buffer
	wg := widget.Widget{
		ID:     widget.EntityDistID,
		Title:  "Entity size distribution",
		Kind:   widget.KindBar,
		Bars:   []widget.BarPoint{{X: "a", Y: 3}, {X: "b", Y: 7}},
		YLabel: "Count",
	}

	if err := NewChartRenderer().Render(&buf, wg); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Errorf("Render() output is not SVG: %.80s", buf.String())
	}
}

func TestChartRenderer_BarAllZero(t *testing.T) {
	var buf bytes.Buffer
	wg := widget.Widget{ID: "z", Kind: widget.KindBar, Bars: []widget.BarPoint{{X: "a", Y: 0}}}

	if err := NewChartRenderer().Render(&buf, wg); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestChartRenderer_ManyBarsWidenCanvas(t *testing.T) {
	bars := make([]widget.BarPoint, 40)
	for i := range bars {
		bars[i] = widget.BarPoint{X: strings.Repeat("x", i%3+1), Y: float64(i + 1)}
	}

	var buf bytes.Buffer
	err := NewChartRenderer().Render(&buf, widget.Widget{ID: "wide", Kind: widget.KindBar, Bars: bars})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestChartRenderer_Donut(t *testing.T) {
	var buf bytes.Buffer
	wg := widget.Widget{
		ID:     widget.DataSourcePlotID,
		Kind:   widget.KindDonut,
		Slices: []widget.Slice{{Label: "S2", Value: 4}, {Label: "S3", Value: 6}},
	}

	if err := NewChartRenderer().Render(&buf, wg); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Errorf("Render() output is not SVG: %.80s", buf.String())
	}
}

func TestChartRenderer_Errors(t *testing.T) {
	tests := []struct {
		name string
		wg   widget.Widget
		want error
	}{
		{"counter", widget.Widget{ID: "c", Kind: widget.KindCounter, Value: 3}, ErrUnsupportedKind},
		{"unknown kind", widget.Widget{ID: "u", Kind: "sparkline"}, ErrUnsupportedKind},
		{"empty bars", widget.Widget{ID: "b", Kind: widget.KindBar}, ErrNoData},
		{"empty donut", widget.Widget{ID: "d", Kind: widget.KindDonut}, ErrNoData},
		{"zero donut", widget.Widget{ID: "d", Kind: widget.KindDonut, Slices: []widget.Slice{{Label: "a", Value: 0}}}, ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := NewChartRenderer().Render(&buf, tt.wg)
			if !errors.Is(err, tt.want) {
				t.Errorf("Render() error = %v, want %v", err, tt.want)
			}
			if buf.Len() != 0 {
				t.Errorf("Render() wrote %d bytes on error", buf.Len())
			}
		})
	}
}
