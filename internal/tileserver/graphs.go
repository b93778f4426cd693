package tileserver

import (
	"context"
	"sync"
	"time"

	"roadgrid/internal/extractor"
	"roadgrid/internal/geo"
	"roadgrid/internal/roadgraph"
	"roadgrid/pkg/tiles"
)

// TileGraph is the extraction result of one tile, built once and kept
type TileGraph struct {
	Coord tiles.TileCoord
	Roads []geo.Polyline
	Graph *roadgraph.RoadGraph
}

// DefaultBuildTimeout bounds a single tile extraction
const DefaultBuildTimeout = 30 * time.Second

type graphEntry struct {
	once  sync.Once
	graph *TileGraph
	err   error
}

// GraphStore builds road graphs on first request and keeps them.
// Failed builds are forgotten so a later request retries. A build outlives
// the request that started it, up to BuildTimeout.
type GraphStore struct {
	source  extractor.TileSource
	opts    extractor.Options
	overlay *Overlay

	BuildTimeout time.Duration

	mu      sync.Mutex
	entries map[tiles.TileCoord]*graphEntry
}

func NewGraphStore(source extractor.TileSource, opts extractor.Options, overlay *Overlay) *GraphStore {
	return &GraphStore{
		source:  source,
		opts:    opts,
		overlay: overlay,
		entries: make(map[tiles.TileCoord]*graphEntry),

		BuildTimeout: DefaultBuildTimeout,
	}
}

// Get returns the graph of a tile, extracting it if necessary
func (s *GraphStore) Get(ctx context.Context, coord tiles.TileCoord) (*TileGraph, error) {
	s.mu.Lock()
	entry, ok := s.entries[coord]
	if !ok {
		entry = &graphEntry{}
		s.entries[coord] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.BuildTimeout)
		defer cancel()
		entry.graph, entry.err = s.build(buildCtx, coord)
	})

	if entry.err != nil {
		s.mu.Lock()
		if s.entries[coord] == entry {
			delete(s.entries, coord)
		}
		s.mu.Unlock()
	}
	return entry.graph, entry.err
}

func (s *GraphStore) build(ctx context.Context, coord tiles.TileCoord) (*TileGraph, error) {
	var sink extractor.LineSink
	if s.overlay != nil {
		s.overlay.Reset(coord)
		sink = s.overlay
	}

	roads, err := extractor.ExtractArea(ctx, s.source, []tiles.TileCoord{coord}, s.opts, sink, 1)
	if err != nil {
		return nil, err
	}

	g, err := roadgraph.Build(roads)
	if err != nil {
		return nil, err
	}
	return &TileGraph{Coord: coord, Roads: roads, Graph: g}, nil
}
