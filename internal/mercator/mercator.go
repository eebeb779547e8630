// Package mercator implements the tile address resolver: parsing and
// validating z/x/y tile indices with an optional resolution suffix, and
// projecting them into WebMercator (EPSG:3857) envelopes.
package mercator

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"forest-tile-server/internal/errs"
)

const (
	// TileSize is the pixel edge of a rendered raster tile and the block
	// edge used to address windows inside super-tiles.
	TileSize = 256

	// BaseExtent is the number of internal coordinate units per vector
	// tile edge at scale 1.
	BaseExtent = 4096

	MaxZoom = 22

	// CE is the circumference of the earth at the equator in WebMercator
	// meters (2 * pi * 6378137).
	CE = 40075016.685578488
)

// Bounds is a WebMercator envelope in meters.
type Bounds struct {
	Left, Bottom, Right, Top float64
}

// Address is a fully resolved tile request location.
type Address struct {
	Z, X, Y int
	Scale   float64
	Extent  int
	Bounds  Bounds
}

// Resolve parses raw path parameters into an Address. The y parameter may
// carry a scale suffix (@2x, @0.5x or @0.25x) which adjusts the vector
// tile extent; the default scale is 1.
func Resolve(rawX, rawY, rawZ string) (Address, error) {
	z, err := strconv.Atoi(rawZ)
	if err != nil {
		return Address{}, errs.Malformedf("zoom level %q is not an integer", rawZ)
	}
	x, err := strconv.Atoi(rawX)
	if err != nil {
		return Address{}, errs.Malformedf("tile column %q is not an integer", rawX)
	}

	y, scale, err := parseRow(rawY)
	if err != nil {
		return Address{}, err
	}

	if z < 0 || z > MaxZoom {
		return Address{}, errs.Validationf("zoom level must be between 0 and %d, got %d", MaxZoom, z)
	}
	if x < 0 || y < 0 {
		return Address{}, errs.Validationf("tile indices must not be negative: x=%d y=%d", x, y)
	}

	bounds := TileBounds(z, x, y)
	if err := validateBounds(bounds); err != nil {
		return Address{}, err
	}

	return Address{
		Z:      z,
		X:      x,
		Y:      y,
		Scale:  scale,
		Extent: int(BaseExtent * scale),
		Bounds: bounds,
	}, nil
}

var allowedScales = map[string]float64{"2": 2, "0.5": 0.5, "0.25": 0.25}

func parseRow(raw string) (int, float64, error) {
	scale := 1.0
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		suffix := raw[i+1:]
		if !strings.HasSuffix(suffix, "x") {
			return 0, 0, errs.Malformedf("invalid scale suffix %q", suffix)
		}
		s, ok := allowedScales[strings.TrimSuffix(suffix, "x")]
		if !ok {
			return 0, 0, errs.Malformedf("scale must be one of @2x, @0.5x, @0.25x, got @%s", suffix)
		}
		scale = s
		raw = raw[:i]
	}

	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, 0, errs.Malformedf("tile row %q is not an integer", raw)
	}
	return y, scale, nil
}

// TileBounds returns the WebMercator envelope of a z/x/y tile.
func TileBounds(z, x, y int) Bounds {
	n := math.Exp2(float64(z))
	size := CE / n
	half := CE / 2

	left := float64(x)*size - half
	top := half - float64(y)*size
	return Bounds{
		Left:   left,
		Bottom: top - size,
		Right:  left + size,
		Top:    top,
	}
}

// GeographicBounds returns the lon/lat envelope of a z/x/y tile, used for
// the geostore envelope short-circuit test.
func GeographicBounds(z, x, y int) orb.Bound {
	n := math.Exp2(float64(z))
	lonLeft := float64(x)/n*360 - 180
	lonRight := float64(x+1)/n*360 - 180
	latTop := tileLat(float64(y), n)
	latBottom := tileLat(float64(y+1), n)
	return orb.Bound{
		Min: orb.Point{lonLeft, latBottom},
		Max: orb.Point{lonRight, latTop},
	}
}

func tileLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// worldEpsilon absorbs floating point drift at high tile indices.
const worldEpsilon = 1e-6

func validateBounds(b Bounds) error {
	half := CE/2 + worldEpsilon
	if b.Left < -half || b.Bottom < -half || b.Right > half || b.Top > half {
		return errs.Validationf("tile index is out of bounds")
	}
	return nil
}
