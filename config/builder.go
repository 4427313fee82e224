package config

import (
	"sort"

	"github.com/jpalmerr/stitchboard"
)

// BuildSources converts parsed configuration into SDK Source values.
//
// It processes both direct sources and grids, returning a combined slice.
// Grids are expanded by [stitchboard.NewSourceGrid].
func BuildSources(cfg *Config) ([]stitchboard.Source, error) {
	var sources []stitchboard.Source

	for _, sc := range cfg.Sources {
		src, err := buildSource(sc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	for _, gc := range cfg.Grids {
		gridSources, err := buildGridSources(gc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, gridSources...)
	}

	return sources, nil
}

// BoardOptions converts the board-level settings into SDK options.
// Sources are not included; pass the result of [BuildSources] separately.
func BoardOptions(cfg *Config) []stitchboard.Option {
	opts := []stitchboard.Option{
		stitchboard.WithPort(cfg.Port),
		stitchboard.WithRefreshInterval(cfg.RefreshInterval.Duration()),
	}
	if cfg.Title != "" {
		opts = append(opts, stitchboard.WithTitle(cfg.Title))
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, stitchboard.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	return opts
}

// buildSource converts a single SourceConfig to an SDK Source.
func buildSource(sc SourceConfig) (stitchboard.Source, error) {
	var opts []stitchboard.SourceOption

	if sc.Timeout != 0 {
		opts = append(opts, stitchboard.WithTimeout(sc.Timeout.Duration()))
	}
	if len(sc.Headers) > 0 {
		opts = append(opts, stitchboard.WithHeaders(mapToKeyValuePairs(sc.Headers)...))
	}
	if sc.WidgetID != "" {
		opts = append(opts, stitchboard.WithWidgetID(sc.WidgetID))
	}
	if sc.Retry.Limit != nil {
		opts = append(opts, stitchboard.WithRetryLimit(*sc.Retry.Limit))
	}
	if sc.Retry.Backoff != nil {
		opts = append(opts, stitchboard.WithBackoff(sc.Retry.Backoff.Duration()))
	}

	return stitchboard.NewSource(sc.Name, sc.Kind, sc.URL, opts...)
}

// buildGridSources expands a GridConfig into one source per dimension combination.
func buildGridSources(gc GridConfig) ([]stitchboard.Source, error) {
	opts := []stitchboard.GridOption{
		stitchboard.WithURLTemplate(gc.URLTemplate),
		stitchboard.WithDimensions(gc.Dimensions),
	}

	if gc.Timeout != 0 {
		opts = append(opts, stitchboard.WithGridTimeout(gc.Timeout.Duration()))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, stitchboard.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}
	if gc.Retry.Limit != nil {
		opts = append(opts, stitchboard.WithGridRetryLimit(*gc.Retry.Limit))
	}
	if gc.Retry.Backoff != nil {
		opts = append(opts, stitchboard.WithGridBackoff(gc.Retry.Backoff.Duration()))
	}

	return stitchboard.NewSourceGrid(gc.Name, gc.Kind, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
