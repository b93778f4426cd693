package vectortile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadgrid/pkg/tiles"
)

type recorded struct {
	kind   GeometryType
	layer  string
	extent int
	count  int
}

type recorder struct {
	got []recorded
}

func (r *recorder) ProcessPointFeature(layer string, extent int, points []orb.Point, _ geojson.Properties, _ int) {
	r.got = append(r.got, recorded{GeometryPoint, layer, extent, len(points)})
}

func (r *recorder) ProcessLineFeature(layer string, extent int, lines []orb.LineString, _ geojson.Properties, _ int) {
	r.got = append(r.got, recorded{GeometryLine, layer, extent, len(lines)})
}

func (r *recorder) ProcessPolygonFeature(layer string, extent int, polygons []orb.Polygon, _ geojson.Properties, _ int) {
	r.got = append(r.got, recorded{GeometryPolygon, layer, extent, len(polygons)})
}

type linesOnly struct{ layer string }

func (f linesOnly) WantsLayer(layer string, _ int) bool { return layer == f.layer }
func (f linesOnly) WantsPointFeature(string, int) bool { return false }
func (f linesOnly) WantsLineFeature(layer string, _ int) bool { return layer == f.layer }
func (f linesOnly) WantsPolygonFeature(string, int) bool { return false }

func fixtureLayers() mvt.Layers {
	roads := geojson.NewFeatureCollection()
	roads.Append(geojson.NewFeature(orb.LineString{{0, 0}, {10, 0}, {20, 0}}))
	roads.Append(geojson.NewFeature(orb.MultiLineString{{{0, 5}, {0, 15}}, {{30, 30}, {40, 30}}}))
	roads.Append(geojson.NewFeature(orb.Point{3, 3}))

	water := geojson.NewFeatureCollection()
	water.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}))
	water.Append(geojson.NewFeature(orb.LineString{{1, 1}, {2, 2}}))

	return mvt.Layers{
		mvt.NewLayer("roads", roads),
		mvt.NewLayer("water", water),
	}
}

func TestAdapter_NilFilterDispatchesEverything(t *testing.T) {
	rec := &recorder{}
	NewAdapter(rec, nil).Process(fixtureLayers(), 16)

	assert.Equal(t, []recorded{
		{GeometryLine, "roads", 4096, 1},
		{GeometryLine, "roads", 4096, 2},
		{GeometryPoint, "roads", 4096, 1},
		{GeometryPolygon, "water", 4096, 1},
		{GeometryLine, "water", 4096, 1},
	}, rec.got)
}

func TestAdapter_FilterRejectsOtherLayersAndTypes(t *testing.T) {
	rec := &recorder{}
	NewAdapter(rec, linesOnly{"roads"}).Process(fixtureLayers(), 16)

	assert.Equal(t, []recorded{
		{GeometryLine, "roads", 4096, 1},
		{GeometryLine, "roads", 4096, 2},
	}, rec.got)
}

func TestAdapter_ZeroExtentFallsBack(t *testing.T) {
	layers := fixtureLayers()
	layers[0].Extent = 0

	rec := &recorder{}
	NewAdapter(rec, linesOnly{"roads"}).Process(layers, 16)
	require.NotEmpty(t, rec.got)
	assert.Equal(t, 4096, rec.got[0].extent)
}

func TestAdapter_ZeroExtentUsesConfiguredDefault(t *testing.T) {
	layers := fixtureLayers()
	layers[0].Extent = 0

	rec := &recorder{}
	a := NewAdapter(rec, linesOnly{"roads"})
	a.DefaultExtent = 512
	a.Process(layers, 16)
	require.NotEmpty(t, rec.got)
	assert.Equal(t, 512, rec.got[0].extent)
}

func TestDecode_PlainAndGzipped(t *testing.T) {
	plain, err := mvt.Marshal(fixtureLayers())
	require.NoError(t, err)
	gz, err := mvt.MarshalGzipped(fixtureLayers())
	require.NoError(t, err)

	for name, data := range map[string][]byte{"plain": plain, "gzip": gz} {
		layers, err := Decode(data)
		require.NoError(t, err, name)
		require.Len(t, layers, 2, name)
		assert.Equal(t, "roads", layers[0].Name, name)

		ls, ok := layers[0].Features[0].Geometry.(orb.LineString)
		require.True(t, ok, name)
		assert.Equal(t, orb.LineString{{0, 0}, {10, 0}, {20, 0}}, ls, name)
	}
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte{0x1f, 0x8b, 0x00, 0x01})
	assert.Error(t, err)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, GeometryPoint, TypeOf(orb.Point{}))
	assert.Equal(t, GeometryLine, TypeOf(orb.MultiLineString{}))
	assert.Equal(t, GeometryPolygon, TypeOf(orb.MultiPolygon{}))
	assert.Equal(t, GeometryUnknown, TypeOf(orb.Collection{}))
	assert.Equal(t, "line", GeometryLine.String())
}

func TestSource_CachesAndSharesFetches(t *testing.T) {
	payload, err := mvt.Marshal(fixtureLayers())
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	src := NewSource(FetcherFunc(func(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return payload, nil
	}))

	coord := tiles.TileCoord{X: 1, Y: 2, Zoom: 3}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			layers, err := src.GetTile(context.Background(), coord)
			assert.NoError(t, err)
			assert.Len(t, layers, 2)
		}()
	}
	close(release)
	wg.Wait()

	assert.True(t, src.HasTile(coord))
	_, err = src.GetTile(context.Background(), coord)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestSource_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	payload, err := mvt.Marshal(fixtureLayers())
	require.NoError(t, err)

	src := NewSource(FetcherFunc(func(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
		if fail {
			return nil, boom
		}
		return payload, nil
	}))

	coord := tiles.TileCoord{Zoom: 0}
	_, err = src.GetTile(context.Background(), coord)
	assert.ErrorIs(t, err, boom)
	assert.False(t, src.HasTile(coord))

	fail = false
	layers, err := src.GetTile(context.Background(), coord)
	require.NoError(t, err)
	assert.Len(t, layers, 2)
}
