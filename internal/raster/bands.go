// Package raster renders PNG tiles from windowed reads over cloud-stored
// super-tile GeoTIFFs and from upstream tile caches, applying pixel-level
// decode filters for the alert and loss datasets.
package raster

// Bands holds per-band pixel planes for one square tile window. Source
// rasters carry 8 or 16 bit unsigned samples, so planes use uint16;
// all filter outputs clamp back to uint8.
type Bands struct {
	Count int
	Size  int
	Pix   [][]uint16
}

func NewBands(count, size int) *Bands {
	pix := make([][]uint16, count)
	for i := range pix {
		pix[i] = make([]uint16, size*size)
	}
	return &Bands{Count: count, Size: size, Pix: pix}
}

func (b *Bands) At(band, row, col int) uint16 {
	return b.Pix[band][row*b.Size+col]
}

func (b *Bands) Set(band, row, col int, v uint16) {
	b.Pix[band][row*b.Size+col] = v
}

// ToRGBA passes bands through unfiltered, for pre-encoded
// implementations that the client decodes itself. Three-band sources
// get a solid alpha channel.
func (b *Bands) ToRGBA() *RGBA {
	out := NewRGBA(b.Size)
	for row := 0; row < b.Size; row++ {
		for col := 0; col < b.Size; col++ {
			alpha := uint8(255)
			if b.Count > 3 {
				alpha = clamp8(float64(b.At(3, row, col)))
			}
			var red, green, blue uint8
			if b.Count > 2 {
				red = clamp8(float64(b.At(0, row, col)))
				green = clamp8(float64(b.At(1, row, col)))
				blue = clamp8(float64(b.At(2, row, col)))
			} else if b.Count > 0 {
				red = clamp8(float64(b.At(0, row, col)))
				green, blue = red, red
			}
			out.Set(row, col, red, green, blue, alpha)
		}
	}
	return out
}
