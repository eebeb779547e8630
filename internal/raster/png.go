package raster

import (
	"bytes"
	"image"
	"image/png"
)

// EncodePNG serializes a rendered tile. Compression is disabled; the
// CDN compresses on the wire and skipping DEFLATE keeps render latency
// dominated by the source read, not the encode.
func EncodePNG(tile *RGBA) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, tile.Size, tile.Size))
	copy(img.Pix, tile.Pix)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
