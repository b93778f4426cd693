package vectortile

import (
	"bytes"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"roadgrid/internal/geo"
)

// GeometryType tags a feature by the shape of its geometry
type GeometryType int

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLine
	GeometryPolygon
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "point"
	case GeometryLine:
		return "line"
	case GeometryPolygon:
		return "polygon"
	}
	return "unknown"
}

// TypeOf classifies an orb geometry
func TypeOf(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return GeometryPoint
	case orb.LineString, orb.MultiLineString:
		return GeometryLine
	case orb.Polygon, orb.MultiPolygon:
		return GeometryPolygon
	}
	return GeometryUnknown
}

// FeatureFilter decides which layers and features reach a GeometryProcessor
type FeatureFilter interface {
	WantsLayer(layer string, level int) bool
	WantsPointFeature(layer string, level int) bool
	WantsLineFeature(layer string, level int) bool
	WantsPolygonFeature(layer string, level int) bool
}

// GeometryProcessor receives decoded features in tile-local units.
// extent is the layer's coordinate extent, level the tile zoom.
type GeometryProcessor interface {
	ProcessPointFeature(layer string, extent int, points []orb.Point, props geojson.Properties, level int)
	ProcessLineFeature(layer string, extent int, lines []orb.LineString, props geojson.Properties, level int)
	ProcessPolygonFeature(layer string, extent int, polygons []orb.Polygon, props geojson.Properties, level int)
}

// Adapter walks decoded layers and hands every accepted feature to the processor
type Adapter struct {
	Processor GeometryProcessor
	Filter    FeatureFilter

	// DefaultExtent replaces a missing layer extent; 0 means geo.DefaultExtent
	DefaultExtent int
}

// NewAdapter creates an adapter; a nil filter accepts everything
func NewAdapter(processor GeometryProcessor, filter FeatureFilter) *Adapter {
	return &Adapter{Processor: processor, Filter: filter}
}

// Process dispatches the features of all wanted layers, in layer and feature order
func (a *Adapter) Process(layers mvt.Layers, level int) {
	for _, layer := range layers {
		if a.Filter != nil && !a.Filter.WantsLayer(layer.Name, level) {
			continue
		}

		extent := int(layer.Extent)
		if extent == 0 {
			extent = a.defaultExtent()
		}

		for _, f := range layer.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			a.dispatch(layer.Name, extent, f, level)
		}
	}
}

func (a *Adapter) defaultExtent() int {
	if a.DefaultExtent > 0 {
		return a.DefaultExtent
	}
	return geo.DefaultExtent
}

func (a *Adapter) dispatch(layer string, extent int, f *geojson.Feature, level int) {
	switch g := f.Geometry.(type) {
	case orb.Point:
		if a.Filter == nil || a.Filter.WantsPointFeature(layer, level) {
			a.Processor.ProcessPointFeature(layer, extent, []orb.Point{g}, f.Properties, level)
		}
	case orb.MultiPoint:
		if a.Filter == nil || a.Filter.WantsPointFeature(layer, level) {
			a.Processor.ProcessPointFeature(layer, extent, []orb.Point(g), f.Properties, level)
		}
	case orb.LineString:
		if a.Filter == nil || a.Filter.WantsLineFeature(layer, level) {
			a.Processor.ProcessLineFeature(layer, extent, []orb.LineString{g}, f.Properties, level)
		}
	case orb.MultiLineString:
		if a.Filter == nil || a.Filter.WantsLineFeature(layer, level) {
			a.Processor.ProcessLineFeature(layer, extent, []orb.LineString(g), f.Properties, level)
		}
	case orb.Polygon:
		if a.Filter == nil || a.Filter.WantsPolygonFeature(layer, level) {
			a.Processor.ProcessPolygonFeature(layer, extent, []orb.Polygon{g}, f.Properties, level)
		}
	case orb.MultiPolygon:
		if a.Filter == nil || a.Filter.WantsPolygonFeature(layer, level) {
			a.Processor.ProcessPolygonFeature(layer, extent, []orb.Polygon(g), f.Properties, level)
		}
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses a raw or gzipped MVT payload. Geometry stays in tile-local units.
func Decode(data []byte) (mvt.Layers, error) {
	var (
		layers mvt.Layers
		err    error
	)
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("mvt parse error: %w", err)
	}
	return layers, nil
}
