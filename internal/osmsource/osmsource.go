// Package osmsource turns OpenStreetMap highways into tile line features, so
// an OSM extract can stand in for a vector tile server.
package osmsource

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"golang.org/x/exp/slog"

	"roadgrid/internal/geo"
	"roadgrid/internal/vectortile"
	"roadgrid/pkg/tiles"
)

// Way is a highway with resolved lon/lat geometry
type Way struct {
	ID   int64
	Tags map[string]string
	Line orb.LineString
}

func isHighway(tags osm.Tags) bool {
	return tags.Find("highway") != ""
}

// ReadPBF reads all highways of a PBF extract. The file is scanned twice:
// once for ways, once for the nodes they reference.
func ReadPBF(ctx context.Context, r io.ReadSeeker) ([]Way, error) {
	var (
		ways   []*osm.Way
		needed = make(map[osm.NodeID]orb.Point)
	)

	scanner := osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		way, ok := scanner.Object().(*osm.Way)
		if !ok || !isHighway(way.Tags) {
			continue
		}
		ways = append(ways, way)
		for _, wn := range way.Nodes {
			needed[wn.ID] = orb.Point{}
		}
	}
	err := scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, fmt.Errorf("scan ways: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	resolved := make(map[osm.NodeID]bool, len(needed))
	scanner = osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, want := needed[node.ID]; want {
			needed[node.ID] = orb.Point{node.Lon, node.Lat}
			resolved[node.ID] = true
		}
	}
	err = scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}

	slog.Debug("read osm extract", "highways", len(ways), "nodes", len(resolved))
	return resolveWays(ways, func(id osm.NodeID) (orb.Point, bool) {
		if !resolved[id] {
			return orb.Point{}, false
		}
		return needed[id], true
	}), nil
}

// ReadXML reads all highways of an .osm XML document
func ReadXML(r io.Reader) ([]Way, error) {
	var doc osm.OSM
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode osm xml: %w", err)
	}
	return FromOSM(&doc), nil
}

// FromOSM extracts highways from an in-memory OSM document
func FromOSM(doc *osm.OSM) []Way {
	nodes := make(map[osm.NodeID]orb.Point, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodes[n.ID] = orb.Point{n.Lon, n.Lat}
	}

	var ways []*osm.Way
	for _, w := range doc.Ways {
		if isHighway(w.Tags) {
			ways = append(ways, w)
		}
	}

	return resolveWays(ways, func(id osm.NodeID) (orb.Point, bool) {
		p, ok := nodes[id]
		return p, ok
	})
}

// resolveWays drops unresolved nodes; ways left with fewer than two points are skipped
func resolveWays(ways []*osm.Way, lookup func(osm.NodeID) (orb.Point, bool)) []Way {
	out := make([]Way, 0, len(ways))
	for _, w := range ways {
		line := make(orb.LineString, 0, len(w.Nodes))
		for _, wn := range w.Nodes {
			if p, ok := lookup(wn.ID); ok {
				line = append(line, p)
			}
		}
		if len(line) < 2 {
			continue
		}
		out = append(out, Way{ID: int64(w.ID), Tags: w.Tags.Map(), Line: line})
	}
	return out
}

// Process hands every way touching the tile to processor as a line feature
// on layer, in tile-local units. Geometry is not clipped to the tile.
func Process(ways []Way, coord tiles.TileCoord, extent int, layer string, filter vectortile.FeatureFilter, processor vectortile.GeometryProcessor) {
	level := coord.Zoom
	if filter != nil && (!filter.WantsLayer(layer, level) || !filter.WantsLineFeature(layer, level)) {
		return
	}
	if extent <= 0 {
		extent = geo.DefaultExtent
	}

	box := tiles.TileBox(coord)
	tileBound := orb.Bound{Min: orb.Point{box.West, box.South}, Max: orb.Point{box.East, box.North}}

	for _, w := range ways {
		if !w.Line.Bound().Intersects(tileBound) {
			continue
		}

		local := make(orb.LineString, 0, len(w.Line))
		for _, p := range w.Line {
			local = append(local, geo.GeoToTile(extent, box, level, p.Lat(), p.Lon()))
		}

		props := geojson.Properties{"osm_id": w.ID}
		for k, v := range w.Tags {
			props[k] = v
		}
		processor.ProcessLineFeature(layer, extent, []orb.LineString{local}, props, level)
	}
}
