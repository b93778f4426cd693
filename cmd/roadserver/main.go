package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"roadgrid/internal/config"
	"roadgrid/internal/extractor"
	"roadgrid/internal/logging"
	"roadgrid/internal/tileserver"
)

type serverOpts struct {
	configPath string
	addr       string
	logLevel   string
	layer      string
	warm       bool
}

func newServerCommand() *cobra.Command {
	opts := serverOpts{}

	cmd := &cobra.Command{
		Use:   "roadserver",
		Short: "Serve vector tiles, extracted roads and road graphs over HTTP",
		Long: `Serve vector tiles, extracted roads and road graphs over HTTP.

Routes:
  /tile/{z}/{x}/{y}    raw vector tile
  /roads/{z}/{x}/{y}   extracted roads as GeoJSON
  /graph/{z}/{x}/{y}   road graph statistics
  /walk/{z}/{x}/{y}    websocket walk over the road graph
  /prefetch            POST, warm the tile cache around a location
  /health              health check

Roads are read from the "roads" layer by default. OpenFreeMap tiles (the
default tile source) keep them in "transportation": pass --layer
transportation or set extract.layer in the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (.json or .yaml)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")
	cmd.Flags().StringVar(&opts.layer, "layer", "", "layer holding the roads, overrides extract.layer")
	cmd.Flags().BoolVar(&opts.warm, "warm", true, "prefetch the tiles around the configured start location")
	return cmd
}

// loadServerConfig applies flag overrides over the config file and validates the result
func loadServerConfig(opts serverOpts) (*config.Config, error) {
	base := *config.Get()
	cfg := &base
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		base = *loaded
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.layer != "" {
		cfg.Extract.Layer = opts.layer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, opts serverOpts) error {
	cfg, err := loadServerConfig(opts)
	if err != nil {
		return err
	}

	if _, err := logging.Setup(cfg.Log.Level, os.Stderr); err != nil {
		return err
	}

	cache, err := tileserver.NewTileCache(cfg.Tiles.CacheDir, cfg.Tiles.URLTemplate, cfg.Tiles.Timeout.Duration, cfg.Tiles.Workers)
	if err != nil {
		return err
	}
	defer cache.Close()

	if opts.warm {
		queued := cache.PrefetchArea(cfg.Extract.StartLat, cfg.Extract.StartLon, cfg.Extract.Zoom, cfg.Extract.Radius+1)
		slog.Info("warming tile cache", "tiles", queued, "zoom", cfg.Extract.Zoom)
	}

	server := tileserver.NewServer(cache, cache, extractor.Options{
		Layer:  cfg.Extract.Layer,
		Extent: cfg.Extract.Extent,
	}, cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func main() {
	if err := newServerCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
