package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockSummary tracks when a metrics summary finishes computing.
type mockSummary struct {
	readyAt time.Time
	stitch  int
}

// StartMockStitcher runs a mock stitcher on addr.
//
// Each metrics summary answers 404 until warmup has passed since it was
// first requested, like a stitcher computing the summary in the background.
// Once ready, the counts grow a little on every request so the dashboard
// has something to redraw.
// Call this in a goroutine before starting the board.
func StartMockStitcher(addr string, warmup time.Duration) {
	var (
		summaries = make(map[string]*mockSummary)
		mu        sync.Mutex
	)

	metrics := func(w http.ResponseWriter, r *http.Request) {
		label := r.PathValue("label")

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		s, exists := summaries[label]
		if !exists {
			s = &mockSummary{readyAt: time.Now().Add(warmup)}
			summaries[label] = s
			slog.Info("summary requested", "label", label, "ready_in", warmup.String())
		}
		if time.Now().Before(s.readyAt) {
			mu.Unlock()
			http.Error(w, "Metrics are not yet available!", http.StatusNotFound)
			return
		}
		s.stitch += rand.Intn(25)
		stitch := s.stitch
		mu.Unlock()

		writeJSON(w, mockMetrics(stitch))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stitches/latest/metrics", metrics)
	mux.HandleFunc("GET /api/stitches/latest/metrics/{label}", metrics)
	mux.HandleFunc("GET /api/datasources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"name": "DrugBank", "count": 11000 + rand.Intn(50)},
			{"name": "GSRS", "count": 9000 + rand.Intn(50)},
			{"name": "NCATS Pharmaceutical Collection", "count": 3200},
			{"name": "Withdrawn", "count": 0},
		})
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock stitcher error", "error", err)
	}
}

// mockMetrics builds a metrics summary whose histogram keys arrive in the
// order the stitcher emits them, which is not sorted.
func mockMetrics(extra int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
	"entityCount": %d,
	"singletonCount": 310,
	"connectedComponentCount": 540,
	"stitchCount": %d,
	"entitySizeDistribution": {"1": 310, "2": 120, "10": 4, "3": 55},
	"stitchHistogram": {"N_Name": 4100, "I_UNII": 2600, "I_CAS": %d},
	"connectedComponentHistogram": {"1": 310, "2": 140, "5": 12}
}`, 1200+extra, 8000+extra*3, 1300+extra*3))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
