package raster

import (
	"context"
	"fmt"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/mercator"
)

// BlobGetter reads one object from the data lake bucket.
type BlobGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// DataLake reads windowed blocks out of the super-tile GeoTIFF pyramid.
type DataLake struct {
	Store BlobGetter
}

func NewDataLake(store BlobGetter) *DataLake {
	return &DataLake{Store: store}
}

// SourceTileKey is the object key of one super-tile in the data lake.
func SourceTileKey(dataset, version, implementation string, z, row, col int) string {
	return fmt.Sprintf("%s/%s/raster/epsg-3857/zoom_%d/%s/geotiff/%03dR_%03dC.tif",
		dataset, version, z, implementation, row, col)
}

// ReadTile reads the 256x256 window backing an output tile. Every output
// tile maps to exactly one window in exactly one super-tile; when z
// exceeds maxZoom the window shrinks inside the maxZoom super-tile and
// the result is upsampled. A missing source object means the tile does
// not exist, which is not retried here.
func (d *DataLake) ReadTile(ctx context.Context, dataset, version, implementation string, z, x, y, maxZoom int) (*Bands, error) {
	srcZ, row, col, win := mercator.SourceWindow(z, x, y, maxZoom)
	key := SourceTileKey(dataset, version, implementation, srcZ, row, col)

	data, err := d.Store.Get(ctx, key)
	if err != nil {
		if errs.IsKind(err, errs.NotFound) {
			return nil, errs.NotFoundf("tile not found")
		}
		return nil, fmt.Errorf("data lake read %s: %w", key, err)
	}

	g, err := ParseGeoTIFF(data)
	if err != nil {
		return nil, fmt.Errorf("data lake read %s: %w", key, err)
	}
	return g.ReadWindow(win, mercator.TileSize)
}
