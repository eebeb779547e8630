package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"forest-tile-server/internal/mercator"
)

// TIFF tag IDs we care about
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
)

// TIFF data types
const (
	tiffByte   = 1
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffFloat  = 11
	tiffDouble = 12
)

// GeoTIFF is a parsed super-tile image: unsigned 8 or 16 bit samples,
// band-interleaved, organized in tiles or strips, uncompressed or
// DEFLATE-compressed. Georeferencing tags are ignored; the object key
// already fixes the tile's place in the pyramid.
type GeoTIFF struct {
	Width, Height int
	Bands         int

	data          []byte
	bo            binary.ByteOrder
	bitsPerSample int
	compression   uint32

	tiled              bool
	tileWidth, tileLen int
	rowsPerStrip       int
	chunkOffsets       []uint32
	chunkByteCounts    []uint32
	decompressed       map[int][]byte
}

// ParseGeoTIFF reads the IFD of a raster super-tile. Pixel chunks are
// decompressed lazily on first access.
func ParseGeoTIFF(data []byte) (*GeoTIFF, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("geotiff: data too short")
	}

	// Byte order
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("geotiff: invalid byte order marker")
	}

	magic := bo.Uint16(data[2:4])
	if magic != 42 {
		return nil, fmt.Errorf("geotiff: not a TIFF file (magic=%d)", magic)
	}

	ifdOffset := bo.Uint32(data[4:8])
	return parseIFD(data, bo, ifdOffset)
}

type ifdEntry struct {
	tag    uint16
	dtype  uint16
	count  uint32
	valOff uint32
}

func parseIFD(data []byte, bo binary.ByteOrder, offset uint32) (*GeoTIFF, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("geotiff: IFD offset out of range")
	}

	numEntries := int(bo.Uint16(data[offset:]))
	entries := make([]ifdEntry, numEntries)

	pos := int(offset) + 2
	for i := 0; i < numEntries; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("geotiff: truncated IFD entry")
		}
		entries[i] = ifdEntry{
			tag:    bo.Uint16(data[pos:]),
			dtype:  bo.Uint16(data[pos+2:]),
			count:  bo.Uint32(data[pos+4:]),
			valOff: bo.Uint32(data[pos+8:]),
		}
		pos += 12
	}

	getEntry := func(tag uint16) *ifdEntry {
		for i := range entries {
			if entries[i].tag == tag {
				return &entries[i]
			}
		}
		return nil
	}

	getUint32Value := func(tag uint16) uint32 {
		e := getEntry(tag)
		if e == nil {
			return 0
		}
		// If data fits in 4 bytes, it's stored inline in valOff
		sz := typeSize(e.dtype) * int(e.count)
		if sz <= 4 {
			if e.dtype == tiffShort {
				buf := make([]byte, 4)
				bo.PutUint32(buf, e.valOff)
				return uint32(bo.Uint16(buf))
			}
			return e.valOff
		}
		// Otherwise valOff is an offset into the file
		off := e.valOff
		if e.dtype == tiffLong {
			return bo.Uint32(data[off:])
		}
		if e.dtype == tiffShort {
			return uint32(bo.Uint16(data[off:]))
		}
		return e.valOff
	}

	readUint32Array := func(e *ifdEntry) []uint32 {
		if e == nil {
			return nil
		}
		n := int(e.count)
		arr := make([]uint32, n)
		sz := typeSize(e.dtype) * n
		var src []byte
		if sz <= 4 {
			buf := make([]byte, 4)
			bo.PutUint32(buf, e.valOff)
			src = buf
		} else {
			off := int(e.valOff)
			if off+sz > len(data) {
				return nil
			}
			src = data[off:]
		}
		for i := 0; i < n; i++ {
			if e.dtype == tiffShort {
				arr[i] = uint32(bo.Uint16(src[i*2:]))
			} else {
				arr[i] = bo.Uint32(src[i*4:])
			}
		}
		return arr
	}

	width := int(getUint32Value(tagImageWidth))
	height := int(getUint32Value(tagImageLength))
	compression := getUint32Value(tagCompression)
	bitsPerSample := int(getUint32Value(tagBitsPerSample))
	sampleFormat := getUint32Value(tagSampleFormat)
	if sampleFormat == 0 {
		sampleFormat = 1 // default unsigned int
	}
	samples := int(getUint32Value(tagSamplesPerPixel))
	if samples == 0 {
		samples = 1
	}
	planar := getUint32Value(tagPlanarConfig)

	if width == 0 || height == 0 {
		return nil, fmt.Errorf("geotiff: zero image dimensions")
	}
	if bitsPerSample != 8 && bitsPerSample != 16 {
		return nil, fmt.Errorf("geotiff: expected 8 or 16 bits/sample, got %d", bitsPerSample)
	}
	if sampleFormat != 1 {
		return nil, fmt.Errorf("geotiff: expected unsigned int sample format (1), got %d", sampleFormat)
	}
	if planar > 1 {
		return nil, fmt.Errorf("geotiff: expected chunky planar configuration, got %d", planar)
	}

	g := &GeoTIFF{
		Width:         width,
		Height:        height,
		Bands:         samples,
		data:          data,
		bo:            bo,
		bitsPerSample: bitsPerSample,
		compression:   compression,
		decompressed:  make(map[int][]byte),
	}

	if e := getEntry(tagTileWidth); e != nil {
		g.tiled = true
		g.tileWidth = int(getUint32Value(tagTileWidth))
		g.tileLen = int(getUint32Value(tagTileLength))
		g.chunkOffsets = readUint32Array(getEntry(tagTileOffsets))
		g.chunkByteCounts = readUint32Array(getEntry(tagTileByteCounts))
		if g.tileWidth == 0 || g.tileLen == 0 || len(g.chunkOffsets) == 0 {
			return nil, fmt.Errorf("geotiff: invalid tile layout")
		}
	} else {
		g.rowsPerStrip = int(getUint32Value(tagRowsPerStrip))
		if g.rowsPerStrip == 0 {
			g.rowsPerStrip = height
		}
		g.chunkOffsets = readUint32Array(getEntry(tagStripOffsets))
		g.chunkByteCounts = readUint32Array(getEntry(tagStripByteCounts))
		if len(g.chunkOffsets) == 0 {
			return nil, fmt.Errorf("geotiff: no strip offsets")
		}
	}

	return g, nil
}

// ReadWindow extracts a window as outSize x outSize band planes. The
// read is boundless: pixels outside the image come back zero. Windows
// smaller than outSize (over-zoom) are upsampled nearest-neighbor.
func (g *GeoTIFF) ReadWindow(win mercator.Window, outSize int) (*Bands, error) {
	if win.Width <= 0 || win.Height <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("geotiff: invalid window %+v", win)
	}

	out := NewBands(g.Bands, outSize)
	for oy := 0; oy < outSize; oy++ {
		sy := win.RowOff + oy*win.Height/outSize
		if sy < 0 || sy >= g.Height {
			continue
		}
		for ox := 0; ox < outSize; ox++ {
			sx := win.ColOff + ox*win.Width/outSize
			if sx < 0 || sx >= g.Width {
				continue
			}
			for band := 0; band < g.Bands; band++ {
				v, err := g.pixel(sy, sx, band)
				if err != nil {
					return nil, err
				}
				out.Set(band, oy, ox, v)
			}
		}
	}
	return out, nil
}

// pixel reads one sample, decompressing the containing chunk on first use.
func (g *GeoTIFF) pixel(row, col, band int) (uint16, error) {
	var chunkIdx, local int
	if g.tiled {
		tilesX := (g.Width + g.tileWidth - 1) / g.tileWidth
		chunkIdx = (row/g.tileLen)*tilesX + col/g.tileWidth
		local = (row%g.tileLen)*g.tileWidth + col%g.tileWidth
	} else {
		chunkIdx = row / g.rowsPerStrip
		local = (row%g.rowsPerStrip)*g.Width + col
	}

	raw, err := g.chunk(chunkIdx)
	if err != nil {
		return 0, err
	}

	bps := g.bitsPerSample / 8
	off := (local*g.Bands + band) * bps
	if off+bps > len(raw) {
		return 0, nil
	}
	if bps == 1 {
		return uint16(raw[off]), nil
	}
	return g.bo.Uint16(raw[off:]), nil
}

func (g *GeoTIFF) chunk(idx int) ([]byte, error) {
	if raw, ok := g.decompressed[idx]; ok {
		return raw, nil
	}
	if idx < 0 || idx >= len(g.chunkOffsets) {
		return nil, fmt.Errorf("geotiff: chunk index %d out of range", idx)
	}
	bc := uint32(0)
	if idx < len(g.chunkByteCounts) {
		bc = g.chunkByteCounts[idx]
	}
	raw, err := decompressChunk(g.data, g.chunkOffsets[idx], bc, g.compression)
	if err != nil {
		return nil, fmt.Errorf("geotiff: chunk %d: %w", idx, err)
	}
	g.decompressed[idx] = raw
	return raw, nil
}

func typeSize(dtype uint16) int {
	switch dtype {
	case tiffByte, tiffASCII:
		return 1
	case tiffShort:
		return 2
	case tiffLong, tiffFloat:
		return 4
	case tiffDouble:
		return 8
	default:
		return 1
	}
}

func decompressChunk(data []byte, offset, byteCount, compression uint32) ([]byte, error) {
	off := int(offset)
	bc := int(byteCount)
	if off+bc > len(data) {
		return nil, fmt.Errorf("chunk out of bounds (off=%d bc=%d len=%d)", off, bc, len(data))
	}
	chunk := data[off : off+bc]

	switch compression {
	case 0, 1: // None
		return chunk, nil
	case 8, 32946: // DEFLATE / new-style DEFLATE
		r, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("zlib init: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compression type %d", compression)
	}
}
