package tiles

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"forest-tile-server/internal/wmts"
)

// WMTSCapabilities serves the WMTS 1.0.0 capabilities document for one
// raster implementation so WMTS clients can discover the tile cache.
func (h *Handler) WMTSCapabilities(c echo.Context) error {
	dataset := c.Param("dataset")
	version, err := h.version(c, dataset)
	if err != nil {
		return err
	}
	implementation := c.Param("implementation")

	maxZoom := h.registry.MaxZoom(c.Request().Context(), dataset, version, implementation)
	if maxZoom == 0 {
		maxZoom = 22
	}

	doc, err := wmts.Capabilities(h.cfg.TileCacheURL, dataset, version, implementation, maxZoom, nil)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Cache-Control", cacheControl(maxAgeDynDesc))
	return c.Blob(http.StatusOK, "application/xml", doc)
}

// ESRIVectorTileServer serves the mock VectorTileServer descriptor that
// routes ESRI JS API clients at the dynamic pbf endpoint. Query
// parameters are forwarded into the tile template.
func (h *Handler) ESRIVectorTileServer(c echo.Context) error {
	dataset := c.Param("dataset")
	if dataset == "" {
		dataset = datasetFromPath(c)
	}
	version, err := h.version(c, dataset)
	if err != nil {
		return err
	}

	queryParams := ""
	if geostoreID := c.QueryParam("geostore_id"); geostoreID != "" {
		queryParams = "geostore_id=" + geostoreID
	}

	c.Response().Header().Set("Cache-Control", cacheControl(maxAgeDynDesc))
	return c.JSON(http.StatusOK, wmts.VectorTileServer(dataset, version, "dynamic", queryParams))
}
