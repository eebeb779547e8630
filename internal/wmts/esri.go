package wmts

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// The ESRI JS API only talks to an ESRI VectorTileServer, so we mock
// one that routes the client at the dynamic pbf endpoint. Constants
// mirror the standard 512px web mercator tiling scheme ESRI expects.
const (
	esriResolution = 78271.51696401172
	esriScale      = 295829355.45453244
	mercatorMin    = -20037508.342787
	mercatorMax    = 20037508.342787
)

type SpatialReference struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

type Extent struct {
	XMin             float64          `json:"xmin"`
	YMin             float64          `json:"ymin"`
	XMax             float64          `json:"xmax"`
	YMax             float64          `json:"ymax"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

type LOD struct {
	Level      int     `json:"level"`
	Resolution float64 `json:"resolution"`
	Scale      float64 `json:"scale"`
}

type TileInfo struct {
	Rows             int              `json:"rows"`
	Cols             int              `json:"cols"`
	DPI              int              `json:"dpi"`
	Format           string           `json:"format"`
	Origin           map[string]any   `json:"origin"`
	SpatialReference SpatialReference `json:"spatialReference"`
	LODs             []LOD            `json:"lods"`
}

type VectorTileService struct {
	CurrentVersion     float64        `json:"currentVersion"`
	Name               string         `json:"name"`
	CopyrightText      string         `json:"copyrightText"`
	Capabilities       string         `json:"capabilities"`
	Type               string         `json:"type"`
	DefaultStyles      string         `json:"defaultStyles"`
	Tiles              []string       `json:"tiles"`
	ExportTilesAllowed bool           `json:"exportTilesAllowed"`
	InitialExtent      Extent         `json:"initialExtent"`
	FullExtent         Extent         `json:"fullExtent"`
	MinScale           int            `json:"minScale"`
	MaxScale           int            `json:"maxScale"`
	TileInfo           TileInfo       `json:"tileInfo"`
	MaxZoom            int            `json:"maxzoom"`
	MinLOD             int            `json:"minLOD"`
	MaxLOD             int            `json:"maxLOD"`
	ResourceInfo       map[string]any `json:"resourceInfo"`
	ServiceItemID      string         `json:"serviceItemId"`
}

// VectorTileServer builds the mock descriptor for one dataset version.
// The tile template is relative so query parameters survive whatever
// host the descriptor is served from; ESRI clients request pbf at
// quarter resolution (@0.25x) to match their 512px scheme.
func VectorTileServer(dataset, version, implementation, queryParams string) VectorTileService {
	sr := SpatialReference{WKID: 102100, LatestWKID: 3857}
	extent := Extent{
		XMin: mercatorMin, YMin: mercatorMin,
		XMax: mercatorMax, YMax: mercatorMax,
		SpatialReference: sr,
	}
	name := fmt.Sprintf("%s - %s - %s", dataset, version, implementation)

	tileURL := "../{z}/{x}/{y}@0.25x.pbf"
	if queryParams != "" {
		tileURL += "?" + queryParams
	}

	lods := make([]LOD, 23)
	for i := range lods {
		div := float64(int(1) << i)
		lods[i] = LOD{Level: i, Resolution: esriResolution / div, Scale: esriScale / div}
	}

	sum := md5.Sum([]byte(name))

	return VectorTileService{
		CurrentVersion:     10.7,
		Name:               name,
		Capabilities:       "TilesOnly",
		Type:               "indexedVector",
		DefaultStyles:      "resources/styles",
		Tiles:              []string{tileURL},
		ExportTilesAllowed: false,
		InitialExtent:      extent,
		FullExtent:         extent,
		TileInfo: TileInfo{
			Rows:   512,
			Cols:   512,
			DPI:    96,
			Format: "pbf",
			Origin: map[string]any{
				"x": mercatorMin,
				"y": mercatorMax,
			},
			SpatialReference: sr,
			LODs:             lods,
		},
		MaxZoom: 22,
		MinLOD:  0,
		MaxLOD:  16,
		ResourceInfo: map[string]any{
			"styleVersion":    8,
			"tileCompression": "gzip",
			"cacheInfo": map[string]any{
				"storageInfo": map[string]any{
					"packetSize":    128,
					"storageFormat": "compactV2",
				},
			},
		},
		ServiceItemID: hex.EncodeToString(sum[:]),
	}
}
