package primitives

import (
	"fmt"
	"math"
)

// GridPoint is an integer grid-space coordinate.
type GridPoint struct {
	X, Y int
}

// EarthPoint is a (longitude, latitude) earth-space coordinate under an
// opaque, unparsed CRS tag. Coordinate-system transforms beyond this live
// with the external readers that produce earth-space data.
type EarthPoint struct {
	Lon, Lat float64
	CRS      string
}

// Geometry is the polymorphic capability set every spatial variant
// implements: point, circle, square, in grid or earth space.
type Geometry interface {
	CenterX() float64
	CenterY() float64
	OnGrid() bool
	OnEarth() bool
	Intersects(other Geometry) bool
	IntersectsXY(x, y float64) bool
}

// Point is a zero-radius geometry: a single cell in grid space, or a single
// coordinate in earth space.
type Point struct {
	Grid  GridPoint
	Earth EarthPoint
	grid  bool
	earth bool
}

// NewGridPoint builds a grid-space point.
func NewGridPoint(x, y int) *Point {
	return &Point{Grid: GridPoint{X: x, Y: y}, grid: true}
}

// NewEarthPoint builds an earth-space point.
func NewEarthPoint(lon, lat float64, crs string) *Point {
	return &Point{Earth: EarthPoint{Lon: lon, Lat: lat, CRS: crs}, earth: true}
}

func (p *Point) CenterX() float64 {
	if p.grid {
		return float64(p.Grid.X)
	}
	return p.Earth.Lon
}

func (p *Point) CenterY() float64 {
	if p.grid {
		return float64(p.Grid.Y)
	}
	return p.Earth.Lat
}

func (p *Point) OnGrid() bool  { return p.grid }
func (p *Point) OnEarth() bool { return p.earth }

func (p *Point) IntersectsXY(x, y float64) bool {
	return p.CenterX() == x && p.CenterY() == y
}

func (p *Point) Intersects(other Geometry) bool {
	switch o := other.(type) {
	case *Point:
		return p.IntersectsXY(o.CenterX(), o.CenterY())
	case *Circle:
		return o.Intersects(p)
	case *Square:
		return o.Intersects(p)
	default:
		return other.IntersectsXY(p.CenterX(), p.CenterY())
	}
}

// Circle is a center point plus radius (same units as the grid/earth space
// it was built in).
type Circle struct {
	Center *Point
	Radius float64
}

// NewCircle builds a circle geometry around center.
func NewCircle(center *Point, radius float64) *Circle {
	return &Circle{Center: center, Radius: radius}
}

func (c *Circle) CenterX() float64 { return c.Center.CenterX() }
func (c *Circle) CenterY() float64 { return c.Center.CenterY() }
func (c *Circle) OnGrid() bool     { return c.Center.OnGrid() }
func (c *Circle) OnEarth() bool    { return c.Center.OnEarth() }

func (c *Circle) IntersectsXY(x, y float64) bool {
	dx := c.CenterX() - x
	dy := c.CenterY() - y
	return math.Hypot(dx, dy) <= c.Radius
}

func (c *Circle) Intersects(other Geometry) bool {
	switch o := other.(type) {
	case *Point:
		return c.IntersectsXY(o.CenterX(), o.CenterY())
	case *Circle:
		dx := c.CenterX() - o.CenterX()
		dy := c.CenterY() - o.CenterY()
		return math.Hypot(dx, dy) <= c.Radius+o.Radius
	case *Square:
		return o.Intersects(c)
	default:
		return other.IntersectsXY(c.CenterX(), c.CenterY())
	}
}

// Square is an axis-aligned square, stored as center + half-width so
// center/intersects math stays symmetric regardless of which factory built
// it (center+width, or two opposite corners).
type Square struct {
	Center     *Point
	HalfWidth  float64
}

// NewSquareCentered builds a square from its center and full width.
func NewSquareCentered(center *Point, width float64) *Square {
	return &Square{Center: center, HalfWidth: width / 2}
}

// NewSquareFromCorners builds a square (bounding square, if the corners are
// not equidistant) from two opposite corners.
func NewSquareFromCorners(topLeft, bottomRight *Point) *Square {
	cx := (topLeft.CenterX() + bottomRight.CenterX()) / 2
	cy := (topLeft.CenterY() + bottomRight.CenterY()) / 2
	halfW := math.Abs(bottomRight.CenterX()-topLeft.CenterX()) / 2
	halfH := math.Abs(bottomRight.CenterY()-topLeft.CenterY()) / 2
	half := math.Max(halfW, halfH)
	var center *Point
	if topLeft.OnGrid() {
		center = NewGridPoint(int(cx), int(cy))
	} else {
		center = NewEarthPoint(cx, cy, topLeft.Earth.CRS)
	}
	return &Square{Center: center, HalfWidth: half}
}

func (s *Square) CenterX() float64 { return s.Center.CenterX() }
func (s *Square) CenterY() float64 { return s.Center.CenterY() }
func (s *Square) OnGrid() bool     { return s.Center.OnGrid() }
func (s *Square) OnEarth() bool    { return s.Center.OnEarth() }

func (s *Square) IntersectsXY(x, y float64) bool {
	return math.Abs(s.CenterX()-x) <= s.HalfWidth && math.Abs(s.CenterY()-y) <= s.HalfWidth
}

func (s *Square) Intersects(other Geometry) bool {
	switch o := other.(type) {
	case *Point:
		return s.IntersectsXY(o.CenterX(), o.CenterY())
	case *Circle:
		// Clamp the circle's center to the square, compare to radius.
		cx := clamp(o.CenterX(), s.CenterX()-s.HalfWidth, s.CenterX()+s.HalfWidth)
		cy := clamp(o.CenterY(), s.CenterY()-s.HalfWidth, s.CenterY()+s.HalfWidth)
		return math.Hypot(o.CenterX()-cx, o.CenterY()-cy) <= o.Radius
	case *Square:
		return math.Abs(s.CenterX()-o.CenterX()) <= s.HalfWidth+o.HalfWidth &&
			math.Abs(s.CenterY()-o.CenterY()) <= s.HalfWidth+o.HalfWidth
	default:
		return other.IntersectsXY(s.CenterX(), s.CenterY())
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GeoKey is a location-based identifier for spatial maps: (geometry,
// entity_name, sequence_id). Equality/hash use ONLY the grid-space
// projection; sequence_id participates in display only.
// This is intentionally not a well-behaved identity key — callers needing
// sequence_id in equality should use a distinct key type (see
// internal/production.IdentityKey).
type GeoKey struct {
	Geometry   Geometry
	EntityName string
	SequenceID uint64
}

// Equal compares two GeoKeys by grid-space location only.
func (k GeoKey) Equal(other GeoKey) bool {
	return k.Geometry.OnGrid() == other.Geometry.OnGrid() &&
		k.Geometry.CenterX() == other.Geometry.CenterX() &&
		k.Geometry.CenterY() == other.Geometry.CenterY()
}

// HashKey returns a comparable Go value usable as a map key with the same
// location-only equality semantics as Equal.
func (k GeoKey) HashKey() gridHashKey {
	return gridHashKey{x: k.Geometry.CenterX(), y: k.Geometry.CenterY()}
}

type gridHashKey struct {
	x, y float64
}

// String renders a debug/display form of the key, including sequence_id
// (display-only; it never enters Equal/HashKey).
func (k GeoKey) String() string {
	return fmt.Sprintf("%s#%d@(%.3f,%.3f)", k.EntityName, k.SequenceID, k.Geometry.CenterX(), k.Geometry.CenterY())
}
