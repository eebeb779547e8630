package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-tile-server/internal/mercator"
)

type tiffSpec struct {
	width, height int
	bands         int
	bits          int
	tiled         bool
	compression   int
	pix           []uint16 // chunky interleaved, row-major
}

// buildTIFF assembles a minimal little-endian single-chunk TIFF.
func buildTIFF(t *testing.T, spec tiffSpec) []byte {
	t.Helper()

	raw := &bytes.Buffer{}
	for _, v := range spec.pix {
		if spec.bits == 8 {
			raw.WriteByte(uint8(v))
		} else {
			binary.Write(raw, binary.LittleEndian, v)
		}
	}

	chunk := raw.Bytes()
	if spec.compression == 8 {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		zw.Write(chunk)
		zw.Close()
		chunk = zbuf.Bytes()
	}

	compression := spec.compression
	if compression == 0 {
		compression = 1
	}

	type entry struct {
		tag, dtype uint16
		value      uint32
	}
	entries := []entry{
		{tagImageWidth, tiffLong, uint32(spec.width)},
		{tagImageLength, tiffLong, uint32(spec.height)},
		{tagBitsPerSample, tiffShort, uint32(spec.bits)},
		{tagCompression, tiffShort, uint32(compression)},
		{tagSamplesPerPixel, tiffShort, uint32(spec.bands)},
	}
	if spec.tiled {
		entries = append(entries,
			entry{tagTileWidth, tiffLong, uint32(spec.width)},
			entry{tagTileLength, tiffLong, uint32(spec.height)},
			entry{tagTileOffsets, tiffLong, 8},
			entry{tagTileByteCounts, tiffLong, uint32(len(chunk))},
		)
	} else {
		entries = append(entries,
			entry{tagStripOffsets, tiffLong, 8},
			entry{tagRowsPerStrip, tiffLong, uint32(spec.height)},
			entry{tagStripByteCounts, tiffLong, uint32(len(chunk))},
		)
	}

	out := &bytes.Buffer{}
	out.WriteString("II")
	binary.Write(out, binary.LittleEndian, uint16(42))
	binary.Write(out, binary.LittleEndian, uint32(8+len(chunk)))
	out.Write(chunk)

	binary.Write(out, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(out, binary.LittleEndian, e.tag)
		binary.Write(out, binary.LittleEndian, e.dtype)
		binary.Write(out, binary.LittleEndian, uint32(1))
		binary.Write(out, binary.LittleEndian, e.value)
	}
	binary.Write(out, binary.LittleEndian, uint32(0))
	return out.Bytes()
}

func TestParseGeoTIFFSingleBand(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 2, bands: 1, bits: 8,
		pix: []uint16{10, 20, 30, 40},
	})

	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, 1, g.Bands)

	out, err := g.ReadWindow(mercator.Window{Width: 2, Height: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), out.At(0, 0, 0))
	assert.Equal(t, uint16(20), out.At(0, 0, 1))
	assert.Equal(t, uint16(30), out.At(0, 1, 0))
	assert.Equal(t, uint16(40), out.At(0, 1, 1))
}

func TestParseGeoTIFFMultiBand16Bit(t *testing.T) {
	// 2x1 image with 3 interleaved bands of 16-bit samples.
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 1, bands: 3, bits: 16,
		pix: []uint16{1000, 2000, 3000, 4000, 5000, 6000},
	})

	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)
	require.Equal(t, 3, g.Bands)

	out, err := g.ReadWindow(mercator.Window{Width: 2, Height: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), out.At(0, 0, 0))
	assert.Equal(t, uint16(2000), out.At(1, 0, 0))
	assert.Equal(t, uint16(3000), out.At(2, 0, 0))
}

func TestParseGeoTIFFDeflate(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 2, bands: 1, bits: 8,
		compression: 8,
		pix:         []uint16{1, 2, 3, 4},
	})

	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	out, err := g.ReadWindow(mercator.Window{Width: 2, Height: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), out.At(0, 1, 1))
}

func TestParseGeoTIFFTiled(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 2, bands: 1, bits: 8,
		tiled: true,
		pix:   []uint16{9, 8, 7, 6},
	})

	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	out, err := g.ReadWindow(mercator.Window{Width: 2, Height: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), out.At(0, 0, 0))
	assert.Equal(t, uint16(6), out.At(0, 1, 1))
}

func TestReadWindowUpsamples(t *testing.T) {
	// A 2x2 source window rendered at 4x4 repeats each pixel 2x2.
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 2, bands: 1, bits: 8,
		pix: []uint16{10, 20, 30, 40},
	})
	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	out, err := g.ReadWindow(mercator.Window{Width: 2, Height: 2}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), out.At(0, 0, 0))
	assert.Equal(t, uint16(10), out.At(0, 1, 1))
	assert.Equal(t, uint16(20), out.At(0, 0, 2))
	assert.Equal(t, uint16(40), out.At(0, 3, 3))
}

func TestReadWindowBoundless(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 2, height: 2, bands: 1, bits: 8,
		pix: []uint16{10, 20, 30, 40},
	})
	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	// Window hangs off the bottom-right edge of the image.
	out, err := g.ReadWindow(mercator.Window{ColOff: 1, RowOff: 1, Width: 2, Height: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(40), out.At(0, 0, 0))
	assert.Equal(t, uint16(0), out.At(0, 0, 1))
	assert.Equal(t, uint16(0), out.At(0, 1, 0))
	assert.Equal(t, uint16(0), out.At(0, 1, 1))
}

func TestReadWindowRejectsEmptyWindow(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 1, height: 1, bands: 1, bits: 8, pix: []uint16{1},
	})
	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	_, err = g.ReadWindow(mercator.Window{Width: 0, Height: 1}, 1)
	assert.Error(t, err)
}

func TestParseGeoTIFFRejectsGarbage(t *testing.T) {
	_, err := ParseGeoTIFF([]byte{})
	assert.Error(t, err)

	_, err = ParseGeoTIFF([]byte("XXxxxxxxxxxxxxxx"))
	assert.Error(t, err)

	// Right byte order marker, wrong magic.
	_, err = ParseGeoTIFF([]byte{'I', 'I', 0, 0, 8, 0, 0, 0})
	assert.Error(t, err)
}

func TestParseGeoTIFFUnsupportedCompression(t *testing.T) {
	data := buildTIFF(t, tiffSpec{
		width: 1, height: 1, bands: 1, bits: 8,
		compression: 5, // LZW
		pix:         []uint16{1},
	})

	g, err := ParseGeoTIFF(data)
	require.NoError(t, err)

	// Compression only surfaces when a chunk is touched.
	_, err = g.ReadWindow(mercator.Window{Width: 1, Height: 1}, 1)
	assert.Error(t, err)
}
