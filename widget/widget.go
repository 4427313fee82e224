// Package widget reshapes stitcher payloads into plot-ready dashboard widgets.
//
// The stitcher exposes two summary endpoints. The metrics endpoint returns
// entity counters plus three histograms. The data-source endpoint returns an
// ordered list of per-source record counts. This package decodes both and
// turns them into [Widget] values that a renderer can draw:
//
//   - histograms become bar widgets of [BarPoint] values ({x, y})
//   - data-source counts become a donut widget of [Slice] values ({label, value})
//   - scalar counters become counter widgets
//
// The functions here are pure. They perform no I/O and keep the input order.
package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies how a widget should be drawn.
type Kind string

const (
	// KindCounter is a single number displayed as text.
	KindCounter Kind = "counter"

	// KindBar is a bar chart over ordered {x, y} points.
	KindBar Kind = "bar"

	// KindDonut is a proportion chart over {label, value} slices.
	KindDonut Kind = "donut"
)

// Source kinds understood by [Decode].
const (
	SourceMetrics     = "metrics"
	SourceDataSources = "datasources"
)

// Container ids used by the dashboard page.
const (
	EntityCountID     = "entity-count"
	SingletonCountID  = "singleton-count"
	ComponentCountID  = "component-count"
	StitchCountID     = "stitch-count"
	EntityDistID      = "entity-dist-plot"
	StitchDistID      = "stitch-dist-plot"
	ComponentDistID   = "component-dist-plot"
	DataSourcePlotID  = "datasource-plot"
	defaultBarYLabel  = "Count"
	defaultDonutTitle = "Data sources"
)

// BarPoint is one bar of a distribution plot.
type BarPoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// Slice is one segment of a proportion plot.
type Slice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Widget is a single renderable dashboard element.
//
// Exactly one of Value, Bars or Slices is meaningful, selected by Kind.
type Widget struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Kind   Kind       `json:"kind"`
	Value  float64    `json:"value,omitempty"`
	Bars   []BarPoint `json:"bars,omitempty"`
	Slices []Slice    `json:"slices,omitempty"`
	YLabel string     `json:"y_label,omitempty"`
}

// MetricsSummary is the payload of the stitcher metrics endpoint.
type MetricsSummary struct {
	EntityCount                 float64 `json:"entityCount"`
	SingletonCount              float64 `json:"singletonCount"`
	ConnectedComponentCount     float64 `json:"connectedComponentCount"`
	StitchCount                 float64 `json:"stitchCount"`
	EntitySizeDistribution      Counts  `json:"entitySizeDistribution"`
	StitchHistogram             Counts  `json:"stitchHistogram"`
	ConnectedComponentHistogram Counts  `json:"connectedComponentHistogram"`
}

// DataSource is one entry of the data-source endpoint payload.
type DataSource struct {
	Name  string  `json:"name"`
	Count float64 `json:"count"`
}

// ToBarPoints converts an ordered mapping into bar points, one per key,
// preserving the mapping's order.
func ToBarPoints(c Counts) []BarPoint {
	points := make([]BarPoint, 0, len(c))
	for _, entry := range c {
		points = append(points, BarPoint{X: entry.Key, Y: entry.Value})
	}
	return points
}

// ToSlices converts data-source counts into proportion slices.
// Entries with a zero count are dropped.
func ToSlices(sources []DataSource) []Slice {
	slices := make([]Slice, 0, len(sources))
	for _, s := range sources {
		if s.Count == 0 {
			continue
		}
		slices = append(slices, Slice{Label: s.Name, Value: s.Count})
	}
	return slices
}

// DecodeMetrics parses a metrics endpoint payload.
func DecodeMetrics(payload []byte) (MetricsSummary, error) {
	var m MetricsSummary
	if err := json.Unmarshal(payload, &m); err != nil {
		return MetricsSummary{}, fmt.Errorf("decode metrics: %w", err)
	}
	return m, nil
}

// DecodeDataSources parses a data-source endpoint payload.
func DecodeDataSources(payload []byte) ([]DataSource, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("decode data sources: %w", errNotArray)
	}
	var sources []DataSource
	if err := json.Unmarshal(trimmed, &sources); err != nil {
		return nil, fmt.Errorf("decode data sources: %w", err)
	}
	return sources, nil
}

// FromMetrics builds the counter and distribution widgets of a metrics summary.
func FromMetrics(m MetricsSummary) []Widget {
	return []Widget{
		{ID: EntityCountID, Title: "Entities", Kind: KindCounter, Value: m.EntityCount},
		{ID: SingletonCountID, Title: "Singletons", Kind: KindCounter, Value: m.SingletonCount},
		{ID: ComponentCountID, Title: "Connected components", Kind: KindCounter, Value: m.ConnectedComponentCount},
		{ID: StitchCountID, Title: "Stitches", Kind: KindCounter, Value: m.StitchCount},
		{
			ID:     EntityDistID,
			Title:  "Entity size distribution",
			Kind:   KindBar,
			Bars:   ToBarPoints(m.EntitySizeDistribution),
			YLabel: defaultBarYLabel,
		},
		{
			ID:     StitchDistID,
			Title:  "Stitch histogram",
			Kind:   KindBar,
			Bars:   ToBarPoints(m.StitchHistogram),
			YLabel: defaultBarYLabel,
		},
		{
			ID:     ComponentDistID,
			Title:  "Connected component histogram",
			Kind:   KindBar,
			Bars:   ToBarPoints(m.ConnectedComponentHistogram),
			YLabel: defaultBarYLabel,
		},
	}
}

// FromDataSources builds the donut widget for a data-source listing.
// An empty id falls back to [DataSourcePlotID].
func FromDataSources(id string, sources []DataSource) []Widget {
	if id == "" {
		id = DataSourcePlotID
	}
	return []Widget{{
		ID:     id,
		Title:  defaultDonutTitle,
		Kind:   KindDonut,
		Slices: ToSlices(sources),
	}}
}

// Prefix returns a copy of widgets whose ids are prefixed with prefix and a
// dash. An empty prefix returns widgets unchanged.
func Prefix(prefix string, widgets []Widget) []Widget {
	if prefix == "" {
		return widgets
	}
	out := make([]Widget, len(widgets))
	for i, w := range widgets {
		w.ID = prefix + "-" + w.ID
		out[i] = w
	}
	return out
}

// Decode parses a payload of the given source kind and returns its widgets.
//
// For data-source payloads the donut widget takes id as its container id.
// For metrics payloads a non-empty id prefixes the fixed widget ids, so that
// several metrics sources can share a dashboard.
func Decode(kind, id string, payload []byte) ([]Widget, error) {
	switch kind {
	case SourceMetrics:
		m, err := DecodeMetrics(payload)
		if err != nil {
			return nil, err
		}
		return Prefix(id, FromMetrics(m)), nil
	case SourceDataSources:
		sources, err := DecodeDataSources(payload)
		if err != nil {
			return nil, err
		}
		return FromDataSources(id, sources), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// IDs returns the widget ids that [Decode] publishes for a source of the
// given kind and id, without needing a payload.
func IDs(kind, id string) ([]string, error) {
	var widgets []Widget
	switch kind {
	case SourceMetrics:
		widgets = Prefix(id, FromMetrics(MetricsSummary{}))
	case SourceDataSources:
		widgets = FromDataSources(id, nil)
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}

	ids := make([]string, len(widgets))
	for i, w := range widgets {
		ids[i] = w.ID
	}
	return ids, nil
}
