package osmsource

import (
	"fmt"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadgrid/internal/extractor"
	"roadgrid/internal/geo"
	"roadgrid/internal/roadgraph"
	"roadgrid/pkg/tiles"
)

var coord = tiles.LatLonToTile(40.70398928, -74.01, 16)

// at returns the lat/lon at fractions of the tile's width and height from its north-west corner
func at(fx, fy float64) (lat, lon float64) {
	box := tiles.TileBox(coord)
	return box.North - fy*(box.North-box.South), box.West + fx*(box.East-box.West)
}

func fixtureXML() string {
	node := func(id int, fx, fy float64) string {
		lat, lon := at(fx, fy)
		return fmt.Sprintf(`<node id="%d" lat="%.9f" lon="%.9f"/>`, id, lat, lon)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
` + node(1, 0.25, 0.5) + node(2, 0.5, 0.5) + node(3, 0.75, 0.5) +
		node(4, 0.5, 0.25) + node(5, 0.5, 0.75) + node(6, 0.1, 0.1) + `
<node id="7" lat="10.0" lon="10.0"/>
<node id="8" lat="10.001" lon="10.001"/>
<way id="100"><nd ref="1"/><nd ref="2"/><nd ref="3"/><tag k="highway" v="primary"/><tag k="name" v="Broad St"/></way>
<way id="101"><nd ref="4"/><nd ref="2"/><nd ref="5"/><tag k="highway" v="residential"/></way>
<way id="102"><nd ref="1"/><nd ref="6"/><tag k="building" v="yes"/></way>
<way id="103"><nd ref="6"/><nd ref="999"/><tag k="highway" v="service"/></way>
<way id="104"><nd ref="7"/><nd ref="8"/><tag k="highway" v="primary"/></way>
</osm>`
}

func TestReadXML_KeepsResolvedHighways(t *testing.T) {
	ways, err := ReadXML(strings.NewReader(fixtureXML()))
	require.NoError(t, err)
	require.Len(t, ways, 3)

	assert.Equal(t, int64(100), ways[0].ID)
	assert.Equal(t, "Broad St", ways[0].Tags["name"])
	assert.Len(t, ways[0].Line, 3)
	assert.Equal(t, int64(101), ways[1].ID)
	assert.Equal(t, int64(104), ways[2].ID)
}

func TestReadXML_Malformed(t *testing.T) {
	_, err := ReadXML(strings.NewReader("<osm><node"))
	assert.Error(t, err)
}

func TestProcess_FeedsExtractorAndGraph(t *testing.T) {
	ways, err := ReadXML(strings.NewReader(fixtureXML()))
	require.NoError(t, err)

	ex := extractor.NewRoadExtractor(coord, nil)
	Process(ways, coord, 4096, "roads", extractor.RoadFilter{}, ex)

	// way 104 lies outside the tile
	require.Len(t, ex.Roads, 2)
	assert.Len(t, ex.Roads[0], 3)

	g, err := roadgraph.Build(ex.Roads)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	shared := ways[0].Line[1]
	box := tiles.TileBox(coord)
	center, ok := g.Lookup(geo.TileToWorld(4096, box, coord.Zoom, false, geo.GeoToTile(4096, box, coord.Zoom, shared.Lat(), shared.Lon())))
	require.True(t, ok)
	assert.Equal(t, 4, center.Degree())

	lat, lon := at(0.5, 0.5)
	gotLat, gotLon := geo.WorldToGeo(center.Position)
	assert.InDelta(t, lat, gotLat, 1e-7)
	assert.InDelta(t, lon, gotLon, 1e-7)
}

func TestProcess_FilterRejectsLayer(t *testing.T) {
	ways, err := ReadXML(strings.NewReader(fixtureXML()))
	require.NoError(t, err)

	ex := extractor.NewRoadExtractor(coord, nil)
	Process(ways, coord, 4096, "highways", extractor.RoadFilter{}, ex)
	assert.Empty(t, ex.Roads)
}

func TestProcess_TileLocalUnits(t *testing.T) {
	lat, lon := at(0.25, 0.5)
	lat2, lon2 := at(0.75, 0.5)
	ways := []Way{{ID: 1, Line: orb.LineString{{lon, lat}, {lon2, lat2}}}}

	rec := &recorder{}
	Process(ways, coord, 512, "roads", nil, rec)
	require.Len(t, rec.lines, 1)
	assert.Equal(t, 512, rec.extent)

	line := rec.lines[0]
	assert.InDelta(t, 128, line[0].X(), 0.5)
	assert.InDelta(t, 256, line[0].Y(), 0.5)
	assert.InDelta(t, 384, line[1].X(), 0.5)
}
