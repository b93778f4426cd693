package tileserver

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"roadgrid/pkg/tiles"
)

// TileCache manages vector tile fetching and on-disk caching
type TileCache struct {
	cacheDir    string
	urlTemplate string
	client      *http.Client
	inFlight    map[string]chan struct{}
	inFlightMu  sync.Mutex
	fetchQueue  chan tiles.TileCoord
	wg          sync.WaitGroup
	closed      bool
	closeMu     sync.RWMutex
}

// NewTileCache creates a new tile cache
func NewTileCache(cacheDir, urlTemplate string, timeout time.Duration, workers int) (*TileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	tc := &TileCache{
		cacheDir:    cacheDir,
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout: timeout,
		},
		inFlight:   make(map[string]chan struct{}),
		fetchQueue: make(chan tiles.TileCoord, 1000),
	}

	// Start background workers for prefetching
	for i := 0; i < workers; i++ {
		tc.wg.Add(1)
		go tc.worker()
	}

	return tc, nil
}

func (tc *TileCache) worker() {
	defer tc.wg.Done()
	for coord := range tc.fetchQueue {
		if _, err := tc.fetchTile(context.Background(), coord); err != nil {
			slog.Debug("prefetch failed", "tile", coord.String(), "err", err)
		}
	}
}

// Close shuts down the tile cache
func (tc *TileCache) Close() {
	tc.closeMu.Lock()
	if !tc.closed {
		tc.closed = true
		close(tc.fetchQueue)
	}
	tc.closeMu.Unlock()
	tc.wg.Wait()
}

// tilePath returns the file path for a cached tile
func (tc *TileCache) tilePath(coord tiles.TileCoord) string {
	return filepath.Join(tc.cacheDir, fmt.Sprintf("%d_%d_%d.pbf", coord.Zoom, coord.X, coord.Y))
}

// Fetch returns tile data, fetching and caching if necessary. Adjacent
// tiles are queued for prefetching after a miss.
func (tc *TileCache) Fetch(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("invalid tile %s", coord)
	}

	// Check cache first
	if data, err := os.ReadFile(tc.tilePath(coord)); err == nil {
		return data, nil
	}

	data, err := tc.fetchTile(ctx, coord)
	if err != nil {
		return nil, err
	}

	tc.queuePrefetch(coord)

	return data, nil
}

// fetchTile downloads a tile and caches it
func (tc *TileCache) fetchTile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	key := coord.String()
	path := tc.tilePath(coord)

	// Check if already cached
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	// Check if fetch is already in progress
	tc.inFlightMu.Lock()
	if ch, exists := tc.inFlight[key]; exists {
		tc.inFlightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tile %s unavailable after shared fetch: %w", key, err)
		}
		return data, nil
	}

	// Mark as in-flight
	ch := make(chan struct{})
	tc.inFlight[key] = ch
	tc.inFlightMu.Unlock()

	defer func() {
		tc.inFlightMu.Lock()
		delete(tc.inFlight, key)
		close(ch)
		tc.inFlightMu.Unlock()
	}()

	data, err := tc.download(ctx, coord)
	if err != nil {
		return nil, err
	}

	// Cache to disk
	if err := os.WriteFile(path, data, 0644); err != nil {
		// we still have the data
		slog.Warn("failed to cache tile", "tile", key, "err", err)
	}

	return data, nil
}

func (tc *TileCache) download(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coord.URL(tc.urlTemplate), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "roadgrid/1.0")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip error: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	slog.Debug("downloaded tile", "tile", coord.String(), "bytes", len(data))
	return data, nil
}

// queuePrefetch adds adjacent tiles to the prefetch queue
func (tc *TileCache) queuePrefetch(coord tiles.TileCoord) {
	for _, adj := range tiles.GetAdjacentTiles(coord) {
		tc.enqueue(adj)
	}
}

// PrefetchArea queues the tiles around a lat/lon for background download
func (tc *TileCache) PrefetchArea(centerLat, centerLon float64, zoom, radius int) int {
	queued := 0
	for _, coord := range tiles.GetPrefetchTiles(centerLat, centerLon, zoom, radius) {
		if tc.enqueue(coord) {
			queued++
		}
	}
	return queued
}

// enqueue is a non-blocking send; a full queue drops the tile
func (tc *TileCache) enqueue(coord tiles.TileCoord) bool {
	tc.closeMu.RLock()
	defer tc.closeMu.RUnlock()
	if tc.closed {
		return false
	}
	select {
	case tc.fetchQueue <- coord:
		return true
	default:
		return false
	}
}

// IsCached checks if a tile is already cached
func (tc *TileCache) IsCached(coord tiles.TileCoord) bool {
	_, err := os.Stat(tc.tilePath(coord))
	return err == nil
}
