package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Tiles   Tiles   `json:"tiles" yaml:"tiles"`
	Extract Extract `json:"extract" yaml:"extract"`
	Server  Server  `json:"server" yaml:"server"`
	Log     Log     `json:"log" yaml:"log"`
}

// Tiles configures where vector tiles come from
type Tiles struct {
	// URLTemplate takes zoom, x and y, in that order
	URLTemplate string `json:"url_template" yaml:"url_template"`

	// CacheDir holds downloaded tiles
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// Workers is the number of background prefetchers
	Workers int `json:"workers" yaml:"workers"`

	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// Extract configures road extraction
type Extract struct {
	// Layer is the tile layer holding road lines
	Layer string `json:"layer" yaml:"layer"`

	// Extent is the tile coordinate extent assumed when a layer declares none,
	// and the extent OSM ways are projected into
	Extent int `json:"extent" yaml:"extent"`

	Zoom int `json:"zoom" yaml:"zoom"`

	// Radius is the number of tile rings around the start tile; 0 = one tile
	Radius int `json:"radius" yaml:"radius"`

	StartLat float64 `json:"start_lat" yaml:"start_lat"`
	StartLon float64 `json:"start_lon" yaml:"start_lon"`
}

// Server configures the HTTP API
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Log configures logging
type Log struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`
}

// Duration is a time.Duration written as "30s" in config files
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Tiles: Tiles{
			URLTemplate: "https://tiles.openfreemap.org/planet/20251203_001001_pt/%d/%d/%d.pbf",
			CacheDir:    ".tile_cache",
			Workers:     4,
			Timeout:     Duration{30 * time.Second},
		},
		Extract: Extract{
			Layer:    "roads",
			Extent:   4096,
			Zoom:     16,
			Radius:   0,
			StartLat: 40.70398928, // lower Manhattan
			StartLon: -74.01,
		},
		Server: Server{
			Addr: ":8080",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Extract.Layer == "" {
		return fmt.Errorf("extract.layer must not be empty")
	}
	if e := c.Extract.Extent; e <= 0 || e&(e-1) != 0 {
		return fmt.Errorf("extract.extent must be a power of two, got %d", e)
	}
	if c.Extract.Zoom < 0 || c.Extract.Zoom > 22 {
		return fmt.Errorf("extract.zoom must be in 0..22, got %d", c.Extract.Zoom)
	}
	if c.Extract.Radius < 0 {
		return fmt.Errorf("extract.radius must not be negative, got %d", c.Extract.Radius)
	}
	if c.Extract.StartLat < -90 || c.Extract.StartLat > 90 {
		return fmt.Errorf("extract.start_lat out of range: %v", c.Extract.StartLat)
	}
	if c.Extract.StartLon < -180 || c.Extract.StartLon > 180 {
		return fmt.Errorf("extract.start_lon out of range: %v", c.Extract.StartLon)
	}
	if c.Tiles.Workers < 0 {
		return fmt.Errorf("tiles.workers must not be negative, got %d", c.Tiles.Workers)
	}
	if strings.Count(c.Tiles.URLTemplate, "%d") != 3 {
		return fmt.Errorf("tiles.url_template needs three %%d verbs (zoom, x, y)")
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Decode parses a config file over the defaults. The format follows the
// file extension: .yaml/.yml is YAML, anything else JSON.
func Decode(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance == nil {
			instance = DefaultConfig()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load loads configuration from a file into the global instance
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Decode(path, data)
	if err != nil {
		return nil, err
	}

	once.Do(func() {})
	mu.Lock()
	instance = cfg
	mu.Unlock()

	return cfg, nil
}

// Save saves the global configuration to a file
func Save(path string) error {
	cfg := Get()

	mu.RLock()
	defer mu.RUnlock()

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
