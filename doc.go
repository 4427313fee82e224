// Package stitchboard provides an embeddable metrics dashboard for a
// record-stitching service.
//
// The stitcher computes its metrics summary in the background and answers
// 404 until the summary is ready. Stitchboard polls it with a bounded retry,
// reshapes the JSON payload into plot-ready widgets (counters, bar charts,
// a data-source donut) and serves them as a live dashboard.
//
// # Quick Start
//
//	metrics, _ := stitchboard.NewSource("metrics", stitchboard.KindMetrics,
//	    "http://stitcher:9000/api/stitches/latest/metrics")
//	sources, _ := stitchboard.NewSource("datasources", stitchboard.KindDataSources,
//	    "http://stitcher:9000/api/datasources")
//
//	b, _ := stitchboard.New(stitchboard.WithSources(metrics, sources))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// # Retry
//
// A 404 means "not ready yet". Metrics sources retry it up to 5 times, 2
// seconds apart, so a fetch issues at most 6 requests. Any other error
// status, a transport error or a body that is not JSON ends the fetch at
// once. When every retry answers 404 the error wraps [ErrRetriesExhausted].
// Data-source sources do not retry by default.
//
// [Fetch] exposes the same fetch-with-retry on its own, with success and
// error callbacks and a cancellable [Pending] handle.
//
// # Architecture
//
//   - widget: payload decoding and reshaping into widgets
//   - internal/poller: the retrying fetcher, its resty transport and the refresh scheduler
//   - internal/store: latest result per source with pub/sub
//   - internal/render: SVG charts drawn with go-chart
//   - internal/server: dashboard, JSON API, SSE, charts and Prometheus metrics
//   - dashboard: embedded web UI assets
package stitchboard
