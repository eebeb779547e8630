package raster

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/http"
	"time"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/mercator"
)

// TileCache reads already-rendered PNG tiles from the public tile CDN.
// Used to re-filter a "default" implementation tile without repeating
// the data-lake decode.
type TileCache struct {
	BaseURL string
	HTTP    *http.Client
}

func NewTileCache(baseURL string) *TileCache {
	return &TileCache{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ReadTile fetches a rendered tile and decodes it back into band planes
// (RGBA order) for re-filtering.
func (t *TileCache) ReadTile(ctx context.Context, dataset, version, implementation string, z, x, y int) (*Bands, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%d/%d/%d.png", t.BaseURL, dataset, version, implementation, z, x, y)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "tile cache request")
	}
	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "cannot open remote tile %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.NotFoundf("tile not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Upstreamf("tile cache returned status %d for %s", resp.StatusCode, url)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "decoding remote tile %s", url)
	}
	return imageToBands(img), nil
}

// imageToBands splits a decoded image into RGBA band planes. Encoded
// tiles carry dates and confidence in RGB under partial alpha, so the
// samples must come out straight, never alpha-premultiplied.
func imageToBands(img image.Image) *Bands {
	size := mercator.TileSize

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(image.Rect(0, 0, size, size))
		draw.Draw(nrgba, nrgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	out := NewBands(4, size)
	b := nrgba.Bounds()
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if col >= b.Dx() || row >= b.Dy() {
				continue
			}
			px := nrgba.NRGBAAt(b.Min.X+col, b.Min.Y+row)
			out.Set(0, row, col, uint16(px.R))
			out.Set(1, row, col, uint16(px.G))
			out.Set(2, row, col, uint16(px.B))
			out.Set(3, row, col, uint16(px.A))
		}
	}
	return out
}
