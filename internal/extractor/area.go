package extractor

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"
	"golang.org/x/sync/errgroup"

	"roadgrid/internal/geo"
	"roadgrid/pkg/tiles"
)

// TileSource returns the decoded layers of a tile
type TileSource interface {
	GetTile(ctx context.Context, coord tiles.TileCoord) (mvt.Layers, error)
}

// ExtractArea fetches and extracts several tiles concurrently. Each tile is
// collected on its own; the results are concatenated in the order of coords
// so that a later build sees the same sequence on every run. sink, if set,
// is called from several goroutines.
func ExtractArea(ctx context.Context, source TileSource, coords []tiles.TileCoord, opts Options, sink LineSink, workers int) ([]geo.Polyline, error) {
	perTile := make([][]geo.Polyline, len(coords))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, coord := range coords {
		i, coord := i, coord
		g.Go(func() error {
			layers, err := source.GetTile(ctx, coord)
			if err != nil {
				return fmt.Errorf("tile %s: %w", coord, err)
			}
			perTile[i] = ExtractTile(layers, coord, opts, sink)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, roads := range perTile {
		total += len(roads)
	}
	roads := make([]geo.Polyline, 0, total)
	for _, r := range perTile {
		roads = append(roads, r...)
	}
	return roads, nil
}
