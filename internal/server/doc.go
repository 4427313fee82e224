// Package server provides the HTTP server for the Stitchboard dashboard and API.
//
// This package is internal to Stitchboard and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded HTML page at "/"
//   - REST API: "/api/widgets" for the current snapshot
//   - Charts: "/api/charts/{id}" renders a bar or donut widget as SVG
//   - Server-Sent Events: real-time updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server shuts down gracefully on context cancellation, with a
// 5-second timeout for in-flight requests. It is started by
// [stitchboard.Board.Start].
package server
