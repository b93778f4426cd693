package tileserver

import (
	"sync"

	"github.com/paulmach/orb/geojson"

	"roadgrid/internal/geo"
	"roadgrid/pkg/tiles"
)

// Overlay collects extracted roads as lon/lat GeoJSON features, per tile.
// It stands in for drawing the roads on a map.
type Overlay struct {
	mu       sync.Mutex
	features map[tiles.TileCoord][]*geojson.Feature
}

func NewOverlay() *Overlay {
	return &Overlay{features: make(map[tiles.TileCoord][]*geojson.Feature)}
}

// AddLine implements extractor.LineSink
func (o *Overlay) AddLine(coord tiles.TileCoord, road geo.Polyline, props geojson.Properties) {
	f := geojson.NewFeature(road.ToOrb())
	for k, v := range props {
		f.Properties[k] = v
	}
	f.Properties["tile"] = coord.String()
	f.Properties["vertices"] = len(road)

	o.mu.Lock()
	o.features[coord] = append(o.features[coord], f)
	o.mu.Unlock()
}

// FeatureCollection returns the roads collected for a tile
func (o *Overlay) FeatureCollection(coord tiles.TileCoord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.features[coord] {
		fc.Append(f)
	}
	return fc
}

// Reset drops the roads collected for a tile
func (o *Overlay) Reset(coord tiles.TileCoord) {
	o.mu.Lock()
	delete(o.features, coord)
	o.mu.Unlock()
}
