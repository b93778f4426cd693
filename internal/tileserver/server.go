package tileserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"roadgrid/internal/extractor"
	"roadgrid/internal/roadgraph"
	"roadgrid/internal/vectortile"
	"roadgrid/pkg/tiles"
)

// Prefetcher warms the tile cache around a location
type Prefetcher interface {
	PrefetchArea(centerLat, centerLon float64, zoom, radius int) int
}

// Server provides HTTP endpoints for tiles, extracted roads and road graphs
type Server struct {
	fetcher    vectortile.Fetcher
	prefetcher Prefetcher
	graphs     *GraphStore
	overlay    *Overlay
	addr       string
	server     *http.Server
}

// NewServer creates a new server. Roads are extracted per opts from tiles
// served by fetcher; prefetcher may be nil.
func NewServer(fetcher vectortile.Fetcher, prefetcher Prefetcher, opts extractor.Options, addr string) *Server {
	overlay := NewOverlay()
	s := &Server{
		fetcher:    fetcher,
		prefetcher: prefetcher,
		overlay:    overlay,
		graphs:     NewGraphStore(vectortile.NewSource(fetcher), opts, overlay),
		addr:       addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Graphs exposes the per-tile graph store
func (s *Server) Graphs() *GraphStore {
	return s.graphs
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tile/", s.handleTile)
	mux.HandleFunc("/roads/", s.handleRoads)
	mux.HandleFunc("/graph/", s.handleGraph)
	mux.HandleFunc("/walk/", s.handleWalk)
	mux.HandleFunc("/prefetch", s.handlePrefetch)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the server and blocks until it stops. It returns nil at
// once if Stop was called first.
func (s *Server) Start() error {
	slog.Info("road server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// parseTilePath parses {prefix}{zoom}/{x}/{y}[.ext]
func parseTilePath(prefix, path string) (tiles.TileCoord, error) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 3 {
		return tiles.TileCoord{}, fmt.Errorf("invalid tile path")
	}

	zoom, err := strconv.Atoi(parts[0])
	if err != nil {
		return tiles.TileCoord{}, fmt.Errorf("invalid zoom")
	}

	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return tiles.TileCoord{}, fmt.Errorf("invalid x")
	}

	// Remove extension if present
	yStr := parts[2]
	if dot := strings.IndexByte(yStr, '.'); dot >= 0 {
		yStr = yStr[:dot]
	}
	y, err := strconv.Atoi(yStr)
	if err != nil {
		return tiles.TileCoord{}, fmt.Errorf("invalid y")
	}

	coord := tiles.TileCoord{X: x, Y: y, Zoom: zoom}
	if !coord.Valid() {
		return tiles.TileCoord{}, fmt.Errorf("tile %s out of range", coord)
	}
	return coord, nil
}

func writeJSON(w http.ResponseWriter, contentType string, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(data)
}

// handleTile serves raw vector tiles: /tile/{zoom}/{x}/{y}
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	coord, err := parseTilePath("/tile/", r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.fetcher.Fetch(r.Context(), coord)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get tile: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Cache-Control", "max-age=86400")
	w.Write(data)
}

func (s *Server) tileGraph(w http.ResponseWriter, r *http.Request, prefix string) (*TileGraph, bool) {
	coord, err := parseTilePath(prefix, r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	tg, err := s.graphs.Get(r.Context(), coord)
	switch {
	case errors.Is(err, roadgraph.ErrInvariant):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return nil, false
	case err != nil:
		http.Error(w, fmt.Sprintf("Failed to extract roads: %v", err), http.StatusBadGateway)
		return nil, false
	}
	return tg, true
}

// handleRoads serves the extracted roads of a tile as GeoJSON: /roads/{zoom}/{x}/{y}
func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	tg, ok := s.tileGraph(w, r, "/roads/")
	if !ok {
		return
	}
	writeJSON(w, "application/geo+json", http.StatusOK, s.overlay.FeatureCollection(tg.Coord))
}

// GraphResponse describes the road graph of a tile
type GraphResponse struct {
	Tile  string          `json:"tile"`
	Roads int             `json:"roads"`
	Stats roadgraph.Stats `json:"stats"`
}

// handleGraph serves graph statistics: /graph/{zoom}/{x}/{y}
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	tg, ok := s.tileGraph(w, r, "/graph/")
	if !ok {
		return
	}
	writeJSON(w, "application/json", http.StatusOK, GraphResponse{
		Tile:  tg.Coord.String(),
		Roads: len(tg.Roads),
		Stats: tg.Graph.Stats(),
	})
}

// PrefetchRequest represents a prefetch request
type PrefetchRequest struct {
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      int     `json:"zoom"`
	Radius    int     `json:"radius"`
}

// handlePrefetch handles prefetch requests
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.prefetcher == nil {
		http.Error(w, "Prefetching disabled", http.StatusNotImplemented)
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queued := s.prefetcher.PrefetchArea(req.CenterLat, req.CenterLon, req.Zoom, req.Radius)
	writeJSON(w, "application/json", http.StatusAccepted, map[string]interface{}{
		"status": "prefetching",
		"queued": queued,
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
