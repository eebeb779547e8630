package mercator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-tile-server/internal/errs"
)

func TestResolveDefaultScale(t *testing.T) {
	addr, err := Resolve("2", "3", "2")
	require.NoError(t, err)

	assert.Equal(t, 2, addr.Z)
	assert.Equal(t, 2, addr.X)
	assert.Equal(t, 3, addr.Y)
	assert.Equal(t, 1.0, addr.Scale)
	assert.Equal(t, BaseExtent, addr.Extent)
}

func TestResolveScaleSuffix(t *testing.T) {
	cases := []struct {
		rawY   string
		scale  float64
		extent int
	}{
		{"3@2x", 2, 8192},
		{"3@0.5x", 0.5, 2048},
		{"3@0.25x", 0.25, 1024},
	}
	for _, tc := range cases {
		addr, err := Resolve("2", tc.rawY, "2")
		require.NoError(t, err, tc.rawY)
		assert.Equal(t, 3, addr.Y, tc.rawY)
		assert.Equal(t, tc.scale, addr.Scale, tc.rawY)
		assert.Equal(t, tc.extent, addr.Extent, tc.rawY)
	}
}

func TestResolveRejectsUnknownScale(t *testing.T) {
	_, err := Resolve("2", "3@3x", "2")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Malformed))
}

func TestResolveRejectsMalformedIndices(t *testing.T) {
	for _, args := range [][3]string{
		{"a", "3", "2"},
		{"2", "b", "2"},
		{"2", "3", "c"},
		{"2", "3@x", "2"},
	} {
		_, err := Resolve(args[0], args[1], args[2])
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.Malformed), "%v", args)
	}
}

func TestResolveRejectsZoomRange(t *testing.T) {
	_, err := Resolve("0", "0", "23")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))

	_, err = Resolve("0", "0", "-1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
}

func TestResolveRejectsNegativeIndices(t *testing.T) {
	_, err := Resolve("-1", "0", "3")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
}

func TestResolveRejectsOutOfWorldIndex(t *testing.T) {
	// x = 4 does not exist at zoom 2
	_, err := Resolve("4", "0", "2")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
}

func TestTileBoundsWorld(t *testing.T) {
	b := TileBounds(0, 0, 0)
	half := CE / 2

	assert.InDelta(t, -half, b.Left, 1e-6)
	assert.InDelta(t, -half, b.Bottom, 1e-6)
	assert.InDelta(t, half, b.Right, 1e-6)
	assert.InDelta(t, half, b.Top, 1e-6)
}

func TestTileBoundsContainment(t *testing.T) {
	// Every tile must stay within its parent tile's envelope.
	for z := 1; z <= MaxZoom; z++ {
		x := (1 << z) - 1
		y := 1 << (z - 1)

		child := TileBounds(z, x, y)
		parent := TileBounds(z-1, x/2, y/2)

		assert.GreaterOrEqual(t, child.Left, parent.Left-1e-6, "z=%d", z)
		assert.LessOrEqual(t, child.Right, parent.Right+1e-6, "z=%d", z)
		assert.GreaterOrEqual(t, child.Bottom, parent.Bottom-1e-6, "z=%d", z)
		assert.LessOrEqual(t, child.Top, parent.Top+1e-6, "z=%d", z)
	}
}

func TestTileBoundsAdjacency(t *testing.T) {
	a := TileBounds(5, 10, 12)
	b := TileBounds(5, 11, 12)
	assert.InDelta(t, a.Right, b.Left, 1e-6)

	c := TileBounds(5, 10, 13)
	assert.InDelta(t, a.Bottom, c.Top, 1e-6)
}

func TestGeographicBoundsWorld(t *testing.T) {
	b := GeographicBounds(0, 0, 0)
	assert.InDelta(t, -180, b.Min[0], 1e-9)
	assert.InDelta(t, 180, b.Max[0], 1e-9)
	assert.InDelta(t, 85.0511, b.Max[1], 0.001)
	assert.InDelta(t, -85.0511, b.Min[1], 0.001)
}

func TestGeographicBoundsOrdered(t *testing.T) {
	b := GeographicBounds(4, 7, 5)
	assert.Less(t, b.Min[0], b.Max[0])
	assert.Less(t, b.Min[1], b.Max[1])
	assert.False(t, math.IsNaN(b.Min[1]))
}
