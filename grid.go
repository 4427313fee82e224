package stitchboard

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewSourceGrid creates one source per combination of dimension values,
// using cartesian product expansion over a URL template.
//
// The stitcher serves metrics per stitch label, so a grid is the usual way
// to chart several labels on one dashboard:
//
//	sources, err := stitchboard.NewSourceGrid("Metrics", stitchboard.KindMetrics,
//	    stitchboard.WithURLTemplate("http://stitcher:9000/api/stitches/latest/metrics/{{.label}}"),
//	    stitchboard.WithDimensions(map[string][]string{
//	        "label": {"S_DRUGBANK", "S_GSRS"},
//	    }),
//	)
//
// The URL template uses text/template syntax. Dimension values are
// URL-encoded before interpolation, and a missing key is an error.
//
// Each source is named "Base Name (val1/val2)", with values ordered by
// sorted key. Its widget id is derived from the same values
// ("s_drugbank-s_gsrs"), so the generated sources never collide on the
// dashboard. See [WithWidgetID].
func NewSourceGrid(baseName, kind string, opts ...GridOption) ([]Source, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{headers: make(map[string]string)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	sources := make([]Source, 0, len(combinations))
	for _, combo := range combinations {
		urlStr, err := executeTemplate(tmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		values := sortedValues(combo)
		name := fmt.Sprintf("%s (%s)", baseName, strings.Join(values, "/"))

		srcOpts := []SourceOption{WithWidgetID(widgetIDFor(values))}
		if len(cfg.headers) > 0 {
			srcOpts = append(srcOpts, WithHeaders(flattenMap(cfg.headers)...))
		}
		if cfg.timeout > 0 {
			srcOpts = append(srcOpts, WithTimeout(cfg.timeout))
		}
		if cfg.retryLimit != nil {
			srcOpts = append(srcOpts, WithRetryLimit(*cfg.retryLimit))
		}
		if cfg.backoff != nil {
			srcOpts = append(srcOpts, WithBackoff(*cfg.backoff))
		}

		src, err := NewSource(name, kind, urlStr, srcOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create source '%s': %w", name, err)
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	result := []map[string]string{{}}
	for _, key := range keys {
		next := make([]map[string]string, 0, len(result)*len(dims[key]))
		for _, combo := range result {
			for _, val := range dims[key] {
				c := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					c[k] = v
				}
				c[key] = val
				next = append(next, c)
			}
		}
		result = next
	}
	return result
}

// widgetIDFor builds a widget id from dimension values: lower case, with
// anything but letters, digits, '_' and '-' replaced by '_'.
func widgetIDFor(values []string) string {
	id := strings.ToLower(strings.Join(values, "-"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.PathEscape(v)
	}
	return result
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sortedValues returns the values of m ordered by key.
func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flattenMap converts a map to a slice of key-value pairs for variadic functions.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(m)*2)
	for _, k := range keys {
		result = append(result, k, m[k])
	}
	return result
}
