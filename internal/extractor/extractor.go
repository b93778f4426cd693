package extractor

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/exp/slog"

	"roadgrid/internal/geo"
	"roadgrid/internal/vectortile"
	"roadgrid/pkg/tiles"
)

// DefaultLayer is the semantic layer holding road geometry
const DefaultLayer = "roads"

// RoadFilter accepts line features of a single layer and nothing else
type RoadFilter struct {
	Layer string
}

func (f RoadFilter) layer() string {
	if f.Layer == "" {
		return DefaultLayer
	}
	return f.Layer
}

func (f RoadFilter) WantsLayer(layer string, level int) bool {
	return layer == f.layer()
}

func (f RoadFilter) WantsPointFeature(layer string, level int) bool {
	return false
}

func (f RoadFilter) WantsLineFeature(layer string, level int) bool {
	return layer == f.layer()
}

func (f RoadFilter) WantsPolygonFeature(layer string, level int) bool {
	return false
}

// Options selects what a tile extraction collects
type Options struct {
	// Layer holds the roads; empty means DefaultLayer
	Layer string
	// Extent is assumed for layers that declare none; 0 means geo.DefaultExtent
	Extent int
}

// LineSink receives every polyline after it has been collected, e.g. to draw it
type LineSink interface {
	AddLine(coord tiles.TileCoord, road geo.Polyline, props geojson.Properties)
}

// RoadExtractor converts the line features of one tile into world-space polylines
type RoadExtractor struct {
	// Roads holds the collected polylines in arrival order
	Roads []geo.Polyline

	coord tiles.TileCoord
	box   tiles.GeoBox
	sink  LineSink
}

// NewRoadExtractor creates an extractor for a tile. sink may be nil.
func NewRoadExtractor(coord tiles.TileCoord, sink LineSink) *RoadExtractor {
	return &RoadExtractor{
		coord: coord,
		box:   tiles.TileBox(coord),
		sink:  sink,
	}
}

func (e *RoadExtractor) ProcessPointFeature(layer string, extent int, points []orb.Point, props geojson.Properties, level int) {
}

func (e *RoadExtractor) ProcessLineFeature(layer string, extent int, lines []orb.LineString, props geojson.Properties, level int) {
	for _, line := range lines {
		road := make(geo.Polyline, 0, len(line))
		for _, p := range line {
			road = append(road, geo.TileToWorld(extent, e.box, level, false, p))
		}
		e.Roads = append(e.Roads, road)

		if e.sink != nil {
			e.sink.AddLine(e.coord, road, props)
		}
	}
}

func (e *RoadExtractor) ProcessPolygonFeature(layer string, extent int, polygons []orb.Polygon, props geojson.Properties, level int) {
}

// ExtractTile collects the roads of one decoded tile
func ExtractTile(layers mvt.Layers, coord tiles.TileCoord, opts Options, sink LineSink) []geo.Polyline {
	extractor := NewRoadExtractor(coord, sink)
	adapter := vectortile.NewAdapter(extractor, RoadFilter{Layer: opts.Layer})
	adapter.DefaultExtent = opts.Extent
	adapter.Process(layers, coord.Zoom)

	slog.Debug("extracted roads", "tile", coord.String(), "layer", opts.Layer, "roads", len(extractor.Roads))
	return extractor.Roads
}
