package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/stitchboard/internal/render"
	"github.com/jpalmerr/stitchboard/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Stitchboard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Server handles HTTP requests for the Stitchboard dashboard and API.
//
// Routes:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/widgets: Returns every source result as JSON
//   - GET /api/sse: Server-Sent Events stream of source results
//   - GET /api/charts/{id}: A chart widget rendered as SVG
//   - GET /metrics: Prometheus exposition (only when a gatherer is set)
type Server struct {
	store      store.Store
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	renderer   render.Renderer
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Config holds the collaborators of a [Server].
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// Assets contains assets/index.html. May be nil.
	Assets fs.FS

	// Title replaces the title placeholder; defaults to "Stitchboard".
	Title string

	// Renderer draws chart widgets. Defaults to [render.NewChartRenderer].
	Renderer render.Renderer

	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewServer creates a new HTTP [Server] backed by st.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, cfg Config) *Server {
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewChartRenderer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		store:    st,
		port:     cfg.Port,
		assets:   cfg.Assets,
		title:    cfg.Title,
		renderer: cfg.Renderer,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/widgets", s.handleWidgets)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/charts/{id}", s.handleChart)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		}))
	}

	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until ctx is cancelled, then shuts down gracefully with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape the title, it comes from config
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleWidgets returns every source result as JSON.
func (s *Server) handleWidgets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.GetAll()); err != nil {
		s.logger.Error("failed to encode widgets response", "error", err)
	}
}

// handleChart renders one chart widget as SVG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wg, ok := s.store.Widget(id)
	if !ok {
		http.Error(w, "Widget not found", http.StatusNotFound)
		return
	}

	// render into a buffer so a failed chart does not leave a half-written body
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, wg); err != nil {
		switch {
		case errors.Is(err, render.ErrUnsupportedKind):
			http.Error(w, "Widget is not a chart", http.StatusUnsupportedMediaType)
		case errors.Is(err, render.ErrNoData):
			http.Error(w, "Widget has no data", http.StatusNotFound)
		default:
			s.logger.Error("failed to render chart", "widget", id, "error", err)
			http.Error(w, "Render failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", render.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error("failed to write chart response", "widget", id, "error", err)
	}
}

// handleSSE streams source results via Server-Sent Events.
//
// Every write carries a deadline so a slow or gone client cannot pin the
// handler past a shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations cannot set deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, result := range s.store.GetAll() {
		data, err := json.Marshal(result)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case result, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(result)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
