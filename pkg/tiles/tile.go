package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileCoord represents a tile coordinate in the slippy map format
type TileCoord struct {
	X    int
	Y    int
	Zoom int
}

func (t TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// URL fills a "%d/%d/%d" (zoom, x, y) endpoint template
func (t TileCoord) URL(template string) string {
	return fmt.Sprintf(template, t.Zoom, t.X, t.Y)
}

// Valid reports whether the coordinate addresses an existing tile
func (t TileCoord) Valid() bool {
	if t.Zoom < 0 || t.Zoom > 30 {
		return false
	}
	maxTile := 1 << uint(t.Zoom)
	return t.X >= 0 && t.X < maxTile && t.Y >= 0 && t.Y < maxTile
}

// MapTile converts to the orb maptile representation
func (t TileCoord) MapTile() maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom))
}

// FromMapTile converts an orb maptile back to a TileCoord
func FromMapTile(mt maptile.Tile) TileCoord {
	return TileCoord{X: int(mt.X), Y: int(mt.Y), Zoom: int(mt.Z)}
}

// GeoBox is the geographic bounding box of a tile, in degrees
type GeoBox struct {
	North float64
	West  float64
	South float64
	East  float64
}

// Contains reports whether the lat/lon lies inside the box (edges inclusive)
func (b GeoBox) Contains(lat, lon float64) bool {
	return lat <= b.North && lat >= b.South && lon >= b.West && lon <= b.East
}

// TileBox returns the geographic bounding box of a tile
func TileBox(t TileCoord) GeoBox {
	bound := t.MapTile().Bound()
	return GeoBox{
		North: bound.Top(),
		West:  bound.Left(),
		South: bound.Bottom(),
		East:  bound.Right(),
	}
}

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level
func LatLonToTile(lat, lon float64, zoom int) TileCoord {
	// maptile clamps latitude to the mercator limits
	return FromMapTile(maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom)))
}

// TileToLatLon converts tile coordinates to latitude/longitude (top-left corner)
func TileToLatLon(t TileCoord) (lat, lon float64) {
	n := math.Pow(2, float64(t.Zoom))
	lon = float64(t.X)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y)/n)))
	lat = latRad * 180.0 / math.Pi
	return lat, lon
}

// GetAdjacentTiles returns adjacent tiles in priority order for prefetching
// Order: right, left, down, up
func GetAdjacentTiles(t TileCoord) []TileCoord {
	maxTile := int(math.Pow(2, float64(t.Zoom))) - 1
	adjacent := make([]TileCoord, 0, 4)

	// Right
	if t.X+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X + 1, Y: t.Y, Zoom: t.Zoom})
	}
	// Left
	if t.X-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X - 1, Y: t.Y, Zoom: t.Zoom})
	}
	// Down
	if t.Y+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y + 1, Zoom: t.Zoom})
	}
	// Up
	if t.Y-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y - 1, Zoom: t.Zoom})
	}

	return adjacent
}

// GetNeighborhood returns the square block of tiles within radius of center,
// row by row from the north-west corner. Tiles off the map are skipped.
func GetNeighborhood(center TileCoord, radius int) []TileCoord {
	if radius < 0 {
		radius = 0
	}
	maxTile := int(math.Pow(2, float64(center.Zoom))) - 1
	side := 2*radius + 1
	tiles := make([]TileCoord, 0, side*side)

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x := center.X + dx
			y := center.Y + dy

			if x >= 0 && x <= maxTile && y >= 0 && y <= maxTile {
				tiles = append(tiles, TileCoord{X: x, Y: y, Zoom: center.Zoom})
			}
		}
	}

	return tiles
}

// GetPrefetchTiles returns the neighborhood around a lat/lon plus the
// enclosing tiles one zoom level out, for warming the disk cache
func GetPrefetchTiles(centerLat, centerLon float64, zoom int, radius int) []TileCoord {
	centerTile := LatLonToTile(centerLat, centerLon, zoom)
	tiles := GetNeighborhood(centerTile, radius)

	if zoom > 0 {
		parent := LatLonToTile(centerLat, centerLon, zoom-1)
		tiles = append(tiles, GetNeighborhood(parent, radius/2)...)
	}

	return tiles
}
