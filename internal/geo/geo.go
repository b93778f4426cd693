// Package geo maps tile-local vector geometry into a continuous world space.
//
// World space is the web mercator plane scaled to the earth's equatorial
// circumference: x grows eastwards from the antimeridian, y grows southwards
// from the northern mercator limit, z is always 0.
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"roadgrid/pkg/tiles"
)

// EquatorialCircumference is the world radius constant, in metres
const EquatorialCircumference = 40075016.6855785

// DefaultExtent is the tile coordinate extent used when a layer declares none
const DefaultExtent = 4096

// Point3D is a position in world space
type Point3D struct {
	X float64
	Y float64
	Z float64
}

// Sub returns p - o
func (p Point3D) Sub(o Point3D) Point3D {
	return Point3D{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Polyline is one continuous road segment in world space. Point order is
// the traversal order along the road.
type Polyline []Point3D

// mercatorY returns the normalised mercator row of a latitude, 0 at the
// northern limit and 1 at the southern one
func mercatorY(lat float64) float64 {
	latRad := lat * math.Pi / 180.0
	return (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0
}

// Lat2Tile returns the rounded mercator row of a latitude at the given level
func Lat2Tile(lat float64, level int) float64 {
	return math.Round(mercatorY(lat) * math.Pow(2, float64(level)))
}

// pixelOrigin returns the global scale and the pixel offsets of the tile's
// north-west corner at level + log2(extent). The level is fractional for
// extents that are not a power of two.
func pixelOrigin(extent int, box tiles.GeoBox, level int) (scale, top, left float64) {
	scale = math.Pow(2, float64(level)+math.Log2(float64(extent)))
	top = math.Round(mercatorY(box.North) * scale)
	left = ((box.West + 180) / 360) * scale
	return scale, top, left
}

// TileToWorld converts a tile-local point into world space. Points outside
// [0, extent) are not rejected; they land outside the tile's footprint.
func TileToWorld(extent int, box tiles.GeoBox, level int, flipY bool, p orb.Point) Point3D {
	scale, top, left := pixelOrigin(extent, box, level)

	y := p.Y()
	if flipY {
		y = -y
	}

	return Point3D{
		X: ((left + p.X()) / scale) * EquatorialCircumference,
		Y: ((top + y) / scale) * EquatorialCircumference,
		Z: 0,
	}
}

// GeoToTile is the inverse of TileToWorld (flipY=false) for a lat/lon:
// it returns the tile-local position of the coordinate.
func GeoToTile(extent int, box tiles.GeoBox, level int, lat, lon float64) orb.Point {
	scale, top, left := pixelOrigin(extent, box, level)

	py := mercatorY(lat) * scale
	px := ((lon + 180) / 360) * scale

	return orb.Point{px - left, py - top}
}

// WorldToGeo returns the latitude and longitude of a world position
func WorldToGeo(p Point3D) (lat, lon float64) {
	nx := p.X / EquatorialCircumference
	ny := p.Y / EquatorialCircumference

	lon = nx*360.0 - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1-2*ny))) * 180.0 / math.Pi
	return lat, lon
}

// ToOrb converts a polyline into lon/lat line geometry
func (l Polyline) ToOrb() orb.LineString {
	ls := make(orb.LineString, 0, len(l))
	for _, p := range l {
		lat, lon := WorldToGeo(p)
		ls = append(ls, orb.Point{lon, lat})
	}
	return ls
}
