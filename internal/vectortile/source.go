package vectortile

import (
	"context"
	"sync"

	"github.com/paulmach/orb/encoding/mvt"

	"roadgrid/pkg/tiles"
)

// Fetcher returns the raw payload of a tile
type Fetcher interface {
	Fetch(ctx context.Context, coord tiles.TileCoord) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, coord tiles.TileCoord) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	return f(ctx, coord)
}

type call struct {
	done   chan struct{}
	layers mvt.Layers
	err    error
}

// Source manages fetching, decoding and caching vector tiles.
// Concurrent requests for the same tile share one fetch.
type Source struct {
	fetcher Fetcher

	tiles   map[string]mvt.Layers
	tilesMu sync.RWMutex

	inFlight   map[string]*call
	inFlightMu sync.Mutex
}

// NewSource creates a new vector tile source
func NewSource(fetcher Fetcher) *Source {
	return &Source{
		fetcher:  fetcher,
		tiles:    make(map[string]mvt.Layers),
		inFlight: make(map[string]*call),
	}
}

// GetTile returns the decoded layers of a tile, fetching if necessary
func (s *Source) GetTile(ctx context.Context, coord tiles.TileCoord) (mvt.Layers, error) {
	key := coord.String()

	// Check cache
	s.tilesMu.RLock()
	if layers, ok := s.tiles[key]; ok {
		s.tilesMu.RUnlock()
		return layers, nil
	}
	s.tilesMu.RUnlock()

	// Check if fetch is in progress
	s.inFlightMu.Lock()
	if c, exists := s.inFlight[key]; exists {
		s.inFlightMu.Unlock()
		select {
		case <-c.done:
			return c.layers, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Mark as in-flight
	c := &call{done: make(chan struct{})}
	s.inFlight[key] = c
	s.inFlightMu.Unlock()

	c.layers, c.err = s.fetchAndDecode(ctx, coord)

	if c.err == nil {
		s.tilesMu.Lock()
		s.tiles[key] = c.layers
		s.tilesMu.Unlock()
	}

	s.inFlightMu.Lock()
	delete(s.inFlight, key)
	close(c.done)
	s.inFlightMu.Unlock()

	return c.layers, c.err
}

// HasTile checks if a tile is cached
func (s *Source) HasTile(coord tiles.TileCoord) bool {
	s.tilesMu.RLock()
	defer s.tilesMu.RUnlock()
	_, ok := s.tiles[coord.String()]
	return ok
}

func (s *Source) fetchAndDecode(ctx context.Context, coord tiles.TileCoord) (mvt.Layers, error) {
	data, err := s.fetcher.Fetch(ctx, coord)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
