package osmsource

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type recorder struct {
	extent int
	lines  []orb.LineString
}

func (r *recorder) ProcessPointFeature(string, int, []orb.Point, geojson.Properties, int) {}

func (r *recorder) ProcessLineFeature(layer string, extent int, lines []orb.LineString, props geojson.Properties, level int) {
	r.extent = extent
	r.lines = append(r.lines, lines...)
}

func (r *recorder) ProcessPolygonFeature(string, int, []orb.Polygon, geojson.Properties, int) {}
