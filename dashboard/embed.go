// Package dashboard provides the embedded web UI assets for Stitchboard.
//
// The page shows the four stitcher counters and one image per chart widget.
// It loads the snapshot from /api/widgets and refreshes on /api/sse events.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
