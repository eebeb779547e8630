package raster

import (
	"math"
	"time"

	"forest-tile-server/internal/errs"
)

// RGBA is a rendered tile ready for PNG encoding.
type RGBA struct {
	Size int
	Pix  []uint8 // size*size*4, row-major
}

func NewRGBA(size int) *RGBA {
	return &RGBA{Size: size, Pix: make([]uint8, size*size*4)}
}

func (r *RGBA) Set(row, col int, red, green, blue, alpha uint8) {
	i := (row*r.Size + col) * 4
	r.Pix[i] = red
	r.Pix[i+1] = green
	r.Pix[i+2] = blue
	r.Pix[i+3] = alpha
}

func (r *RGBA) At(row, col int) (red, green, blue, alpha uint8) {
	i := (row*r.Size + col) * 4
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3]
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// ScaleIntensity builds the power-law rescale for one zoom level, a
// simplified d3.scalePow with domain and range both starting at zero.
// Low zooms boost faint pixels so sparse loss stays visible.
func ScaleIntensity(zoom int) func(float64) float64 {
	exp := 1.0
	if zoom < 11 {
		exp = 0.3 + float64(zoom-3)/20
	}
	m := 255 / math.Pow(255, exp)
	return func(x float64) float64 {
		return m * math.Pow(x, exp)
	}
}

// ApplyAnnualLossFilter renders a tree cover loss tile. Source bands are
// (intensity, _, year) where year counts from 2000. Pixels outside the
// inclusive year range go transparent; color shifts slightly per zoom to
// keep the loss pink readable over basemaps. The record starts in 2001,
// so earlier start years are lifted; endYear <= 0 leaves the range open.
func ApplyAnnualLossFilter(src *Bands, zoom, startYear, endYear int) (*RGBA, error) {
	if src.Count < 3 {
		return nil, errs.Upstreamf("annual loss tile has %d bands, expected 3", src.Count)
	}

	if startYear < 2001 {
		startYear = 2001
	}
	if endYear > 0 && endYear < startYear {
		endYear = startYear
	}

	scale := ScaleIntensity(zoom)
	div := float64(zoom)
	if div < 1 {
		div = 1
	}
	out := NewRGBA(src.Size)

	for row := 0; row < src.Size; row++ {
		for col := 0; col < src.Size; col++ {
			intensity := float64(src.At(0, row, col))
			year := int(src.At(2, row, col))

			scaled := float64(clamp8(scale(intensity)))

			green := 102 + float64(72-zoom) - scaled*3/div
			blue := 153 + float64(33-zoom) - intensity/div

			alpha := scaled
			if zoom >= 13 {
				alpha = intensity
			}
			if year < startYear-2000 {
				alpha = 0
			}
			if endYear > 0 && year > endYear-2000 {
				alpha = 0
			}

			out.Set(row, col, 228, clamp8(green), clamp8(blue), clamp8(alpha))
		}
	}
	return out, nil
}

// recordStartBaseYear anchors alert day counts: day 1 is 2015-01-01,
// so the count is days since 2014-12-31.
const recordStartBaseYear = 2015

// DaysSinceRecordStart converts a date to the alert day count used in
// the RGB encoding of the deforestation alert tiles.
func DaysSinceRecordStart(d time.Time) int {
	offset := (d.Year() - recordStartBaseYear) * 365
	for y := recordStartBaseYear - 1; y < d.Year(); y++ {
		if y%4 == 0 {
			offset++
		}
	}
	return offset + d.YearDay()
}

// ApplyDeforestationFilter renders a GLAD-style alert tile. The source
// encodes date in red and green (r*255+g days since record start),
// confidence and intensity in blue (conf*100+intensity). All visible
// alerts render pink; date range, optional confirmed-only and nodata
// masks zero the alpha. Zero start or end dates leave that side of the
// range open.
func ApplyDeforestationFilter(src *Bands, startDate, endDate time.Time, confirmedOnly bool) (*RGBA, error) {
	if src.Count < 3 {
		return nil, errs.Upstreamf("alert tile has %d bands, expected 3", src.Count)
	}

	startDay, endDay := 0, 0
	if !startDate.IsZero() {
		startDay = DaysSinceRecordStart(startDate)
	}
	if !endDate.IsZero() {
		endDay = DaysSinceRecordStart(endDate)
	}

	out := NewRGBA(src.Size)
	for row := 0; row < src.Size; row++ {
		for col := 0; col < src.Size; col++ {
			red := int(src.At(0, row, col))
			green := int(src.At(1, row, col))
			blue := int(src.At(2, row, col))

			day := red*255 + green
			confidence := blue / 100
			intensity := blue % 100

			visible := red+green+blue > 0
			if startDay > 0 && day < startDay {
				visible = false
			}
			if endDay > 0 && day > endDay {
				visible = false
			}
			if confirmedOnly && confidence != 2 {
				visible = false
			}

			var alpha uint8
			if visible {
				alpha = clamp8(float64(intensity * 50))
			}
			out.Set(row, col, 228, 102, 153, alpha)
		}
	}
	return out, nil
}
