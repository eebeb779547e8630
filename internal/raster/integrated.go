package raster

import (
	"time"

	"forest-tile-server/internal/errs"
)

// Confidence tiers of the integrated alert product. The encoded value
// in band 0 is tier*10000 + days since the record start.
const (
	ConfidenceLow     = 2
	ConfidenceHigh    = 3
	ConfidenceHighest = 4
)

type confColor struct {
	confidence int
	r, g, b    uint8
}

// Tier colors, lightest to darkest. Applied in order so higher tiers
// overwrite lower ones.
var confColors = []confColor{
	{ConfidenceLow, 237, 164, 194},
	{ConfidenceHigh, 220, 102, 153},
	{ConfidenceHighest, 201, 42, 109},
}

// ConfidenceTier maps a confidence name to its encoded tier.
func ConfidenceTier(name string) (int, error) {
	switch name {
	case "", "low":
		return ConfidenceLow, nil
	case "high":
		return ConfidenceHigh, nil
	case "highest":
		return ConfidenceHighest, nil
	default:
		return 0, errs.Validationf("invalid alert confidence %q", name)
	}
}

// IntegratedOptions select which alerts render and how.
type IntegratedOptions struct {
	StartDate     time.Time
	EndDate       time.Time
	MinConfidence int
	// Encoded skips the tier colors and repacks date, confidence and
	// intensity into the channels for client-side decoding.
	Encoded bool
}

// ApplyIntegratedFilter renders an integrated deforestation alert tile.
// Source bands are (encoded value, intensity). In true-color mode each
// visible pixel takes the color of its highest confidence tier with
// alpha min(255, intensity*150); in encoded mode the channels carry the
// raw values back to the client.
func ApplyIntegratedFilter(src *Bands, opts IntegratedOptions) (*RGBA, error) {
	if src.Count < 2 {
		return nil, errs.Upstreamf("integrated alert tile has %d bands, expected 2", src.Count)
	}

	startDay, endDay := 0, 0
	if !opts.StartDate.IsZero() {
		startDay = DaysSinceRecordStart(opts.StartDate)
	}
	if !opts.EndDate.IsZero() {
		endDay = DaysSinceRecordStart(opts.EndDate)
	}

	out := NewRGBA(src.Size)
	for row := 0; row < src.Size; row++ {
		for col := 0; col < src.Size; col++ {
			encoded := int(src.At(0, row, col))
			intensity := int(src.At(1, row, col))

			day := encoded % 10000
			tier := encoded / 10000

			visible := encoded > 0 && tier >= opts.MinConfidence
			if startDay > 0 && day < startDay {
				visible = false
			}
			if endDay > 0 && day > endDay {
				visible = false
			}

			if opts.Encoded {
				if !visible {
					continue
				}
				packed := tier * 100
				if intensity < 99 {
					packed += intensity
				} else {
					packed += 99
				}
				out.Set(row, col,
					uint8(day/255), uint8(day%255), clamp8(float64(packed)), 255)
				continue
			}

			var red, green, blue uint8
			for _, c := range confColors {
				if tier >= c.confidence {
					red, green, blue = c.r, c.g, c.b
				}
			}
			var alpha uint8
			if visible {
				alpha = clamp8(float64(intensity * 150))
			}
			out.Set(row, col, red, green, blue, alpha)
		}
	}
	return out, nil
}
