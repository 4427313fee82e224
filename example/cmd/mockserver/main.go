// Standalone mock stitcher for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/stitchboard serve -c example/config.yaml
//	go run ./cmd/stitchboard fetch http://localhost:9999/api/stitches/latest/metrics -v
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
)

// notReadyRequests is how many metrics requests answer 404 before the
// summary is available.
const notReadyRequests = 3

const summary = `{
	"entityCount": 1200,
	"singletonCount": 310,
	"connectedComponentCount": 540,
	"stitchCount": 8000,
	"entitySizeDistribution": {"1": 310, "2": 120, "10": 4, "3": 55},
	"stitchHistogram": {"N_Name": 4100, "I_UNII": 2600, "I_CAS": 1300},
	"connectedComponentHistogram": {"1": 310, "2": 140, "5": 12}
}`

func main() {
	fmt.Println("Mock stitcher starting on :9999")
	fmt.Printf("Metrics answer 404 for the first %d requests\n", notReadyRequests)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var requests atomic.Int64

	metrics := func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n <= notReadyRequests {
			slog.Info("summary not ready", "request", n, "label", r.PathValue("label"))
			http.Error(w, "Metrics are not yet available!", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(summary))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stitches/latest/metrics", metrics)
	mux.HandleFunc("GET /api/stitches/latest/metrics/{label}", metrics)
	mux.HandleFunc("GET /api/datasources", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"name": "DrugBank", "count": 11000},
			{"name": "GSRS", "count": 9000},
			{"name": "NCATS Pharmaceutical Collection", "count": 3200},
		})
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
