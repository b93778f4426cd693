package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"roadgrid/internal/config"
	"roadgrid/internal/extractor"
	"roadgrid/internal/geo"
	"roadgrid/internal/logging"
	"roadgrid/internal/osmsource"
	"roadgrid/internal/roadgraph"
	"roadgrid/internal/tileserver"
	"roadgrid/internal/vectortile"
	"roadgrid/pkg/tiles"
)

type extractOpts struct {
	configPath string
	lat        float64
	lon        float64
	zoom       int
	radius     int
	layer      string
	osmPath    string
	geojson    bool
	logLevel   string
}

func newExtractCommand() *cobra.Command {
	opts := extractOpts{}

	cmd := &cobra.Command{
		Use:   "roadextract",
		Short: "Extract the roads around a location and build their road graph",
		Long: `Extract the roads around a location and build their road graph.

Roads are read from vector tiles (fetched and cached on disk) or, with --osm,
from an OpenStreetMap .pbf or .osm file. The graph summary is printed unless
--geojson asks for the extracted roads instead.

Roads are read from the "roads" layer by default. OpenFreeMap tiles (the
default tile source) keep them in "transportation": pass --layer
transportation or set extract.layer in the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (.json or .yaml)")
	flags.Float64Var(&opts.lat, "lat", 0, "center latitude, overrides extract.start_lat")
	flags.Float64Var(&opts.lon, "lon", 0, "center longitude, overrides extract.start_lon")
	flags.IntVar(&opts.zoom, "zoom", 0, "tile zoom level, overrides extract.zoom")
	flags.IntVar(&opts.radius, "radius", 0, "tiles around the center tile, overrides extract.radius")
	flags.StringVar(&opts.layer, "layer", "", "layer holding the roads, overrides extract.layer")
	flags.StringVar(&opts.osmPath, "osm", "", "read ways from an OpenStreetMap .pbf or .osm file")
	flags.BoolVar(&opts.geojson, "geojson", false, "print the extracted roads as a GeoJSON FeatureCollection")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts extractOpts) (*config.Config, error) {
	cfg := config.Get()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("lat") {
		cfg.Extract.StartLat = opts.lat
	}
	if flags.Changed("lon") {
		cfg.Extract.StartLon = opts.lon
	}
	if flags.Changed("zoom") {
		cfg.Extract.Zoom = opts.zoom
	}
	if flags.Changed("radius") {
		cfg.Extract.Radius = opts.radius
	}
	if opts.layer != "" {
		cfg.Extract.Layer = opts.layer
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := logging.Setup(cfg.Log.Level, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runExtract(ctx context.Context, cfg *config.Config, opts extractOpts) error {
	center := tiles.LatLonToTile(cfg.Extract.StartLat, cfg.Extract.StartLon, cfg.Extract.Zoom)
	coords := tiles.GetNeighborhood(center, cfg.Extract.Radius)
	overlay := tileserver.NewOverlay()

	var (
		roads []geo.Polyline
		err   error
	)
	if opts.osmPath != "" {
		roads, err = extractOSM(ctx, opts.osmPath, coords, cfg, overlay)
	} else {
		roads, err = extractTiles(ctx, coords, cfg, overlay)
	}
	if err != nil {
		return err
	}

	g, err := roadgraph.Build(roads)
	if err != nil {
		return fmt.Errorf("build road graph: %w", err)
	}
	slog.Info("road graph built", "tiles", len(coords), "roads", len(roads), "nodes", g.Len())

	if opts.geojson {
		fc := geojson.NewFeatureCollection()
		for _, coord := range coords {
			fc.Features = append(fc.Features, overlay.FeatureCollection(coord).Features...)
		}
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSummary(center, coords, roads, g)
	return nil
}

func extractTiles(ctx context.Context, coords []tiles.TileCoord, cfg *config.Config, overlay *tileserver.Overlay) ([]geo.Polyline, error) {
	// no prefetch workers
	cache, err := tileserver.NewTileCache(cfg.Tiles.CacheDir, cfg.Tiles.URLTemplate, cfg.Tiles.Timeout.Duration, 0)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	return extractor.ExtractArea(ctx, vectortile.NewSource(cache), coords, extractOptions(cfg), overlay, cfg.Tiles.Workers)
}

func extractOptions(cfg *config.Config) extractor.Options {
	return extractor.Options{Layer: cfg.Extract.Layer, Extent: cfg.Extract.Extent}
}

func extractOSM(ctx context.Context, path string, coords []tiles.TileCoord, cfg *config.Config, overlay *tileserver.Overlay) ([]geo.Polyline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ways []osmsource.Way
	if strings.EqualFold(filepath.Ext(path), ".pbf") {
		ways, err = osmsource.ReadPBF(ctx, f)
	} else {
		ways, err = osmsource.ReadXML(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	slog.Info("loaded osm ways", "file", path, "ways", len(ways))

	filter := extractor.RoadFilter{Layer: cfg.Extract.Layer}
	var roads []geo.Polyline
	for _, coord := range coords {
		ex := extractor.NewRoadExtractor(coord, overlay)
		osmsource.Process(ways, coord, cfg.Extract.Extent, cfg.Extract.Layer, filter, ex)
		roads = append(roads, ex.Roads...)
	}
	return roads, nil
}

func printSummary(center tiles.TileCoord, coords []tiles.TileCoord, roads []geo.Polyline, g *roadgraph.RoadGraph) {
	stats := g.Stats()

	fmt.Printf("Center tile: %s (%d tiles)\n", center, len(coords))
	fmt.Printf("Roads:       %d\n", len(roads))
	fmt.Printf("Nodes:       %d\n", stats.Nodes)
	fmt.Printf("Links:       %d\n", stats.Links)
	fmt.Printf("Isolated:    %d\n", stats.Isolated)

	slots := make([]string, 0, len(stats.BySlot))
	for slot := range stats.BySlot {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		fmt.Printf("  %-6s %d\n", slot, stats.BySlot[slot])
	}

	if first, ok := g.Node(0); ok {
		lat, lon := geo.WorldToGeo(first.Position)
		fmt.Printf("First node:  %s at (%.6f, %.6f)\n", first, lat, lon)
	}
}

func main() {
	if err := newExtractCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
