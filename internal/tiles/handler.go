// Package tiles wires the tile endpoints: request parsing, the cache
// hierarchy in front of the render paths, and the response envelope.
package tiles

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forest-tile-server/internal/config"
	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/geostore"
	"forest-tile-server/internal/mercator"
	"forest-tile-server/internal/metrics"
	"forest-tile-server/internal/raster"
	"forest-tile-server/internal/registry"
	"forest-tile-server/internal/storage"
	"forest-tile-server/internal/vector"
)

const (
	tileCacheTTL = 24 * time.Hour

	pbfContentType = "application/x-protobuf"
	pngContentType = "image/png"

	// Cache-Control budgets. Tiles with a rolling default date range can
	// change on the next data update; explicit ranges never change because
	// only newer dates get added and future dates are rejected.
	maxAgeRolling   = 86400    // 1d
	maxAgeImmutable = 31536000 // 1y
	maxAgeMetadata  = 900      // 15min
	maxAgeDynDesc   = 7200     // 2h
)

// Handler serves the tile and descriptor endpoints.
type Handler struct {
	cfg      *config.Config
	log      zerolog.Logger
	engine   *vector.Engine
	registry *registry.Registry
	geostore geostore.Fetcher
	datalake *raster.DataLake
	upstream *raster.TileCache
	origin   *storage.Bucket
	redis    *redis.Client
	metrics  *metrics.Metrics
}

func NewHandler(
	cfg *config.Config,
	log zerolog.Logger,
	engine *vector.Engine,
	reg *registry.Registry,
	gs geostore.Fetcher,
	datalake *raster.DataLake,
	upstream *raster.TileCache,
	origin *storage.Bucket,
	redisClient *redis.Client,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		registry: reg,
		geostore: gs,
		datalake: datalake,
		upstream: upstream,
		origin:   origin,
		redis:    redisClient,
		metrics:  m,
	}
}

// Register attaches all routes to the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/nasa_viirs_fire_alerts/:version/dynamic/:z/:x/:y", h.FireAlertsTile)
	e.GET("/nasa_viirs_fire_alerts/:version/max_alert__date", h.FireAlertsMaxDate)
	e.GET("/nasa_viirs_fire_alerts/:version/dynamic/VectorTileServer", h.ESRIVectorTileServer)

	e.GET("/umd_modis_burned_areas/:version/dynamic/:z/:x/:y", h.BurnedAreasTile)
	e.GET("/umd_modis_burned_areas/:version/max_alert__date", h.BurnedAreasMaxDate)

	e.GET("/umd_tree_cover_loss/:version/dynamic/:z/:x/:y", h.TreeCoverLossTile)

	for _, dataset := range deforestationDatasets {
		e.GET("/"+dataset+"/:version/dynamic/:z/:x/:y", h.DeforestationAlertsTile)
	}
	e.GET("/gfw_integrated_alerts/:version/dynamic/:z/:x/:y", h.IntegratedAlertsTile)

	e.GET("/:dataset/:version/dynamic/:z/:x/:y", h.DynamicVectorTile)
	e.GET("/:dataset/:version/dynamic/VectorTileServer", h.ESRIVectorTileServer)
	e.GET("/:dataset/:version/:implementation/wmts/1.0.0/WMTSCapabilities.xml", h.WMTSCapabilities)

	e.GET("/_latest", h.LatestVersions)
}

// resolveTile parses and validates the z/x/y path parameters. The y
// parameter carries the format suffix and the optional scale factor.
func resolveTile(c echo.Context, ext string) (mercator.Address, error) {
	rawY := c.Param("y")
	if len(rawY) > len(ext) && rawY[len(rawY)-len(ext):] == ext {
		rawY = rawY[:len(rawY)-len(ext)]
	}
	return mercator.Resolve(c.Param("x"), rawY, c.Param("z"))
}

// version resolves and validates the version path parameter against the
// dataset registry.
func (h *Handler) version(c echo.Context, dataset string) (string, error) {
	version := c.Param("version")
	if err := h.registry.RequireVersion(c.Request().Context(), dataset, version); err != nil {
		return "", err
	}
	return version, nil
}

func respondTile(c echo.Context, contentType string, data []byte, maxAge int) error {
	c.Response().Header().Set("Cache-Control", cacheControl(maxAge))
	if len(data) == 0 && contentType == pbfContentType {
		return c.NoContent(http.StatusNoContent)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func cacheControl(maxAge int) string {
	switch maxAge {
	case maxAgeRolling:
		return "max-age=86400"
	case maxAgeImmutable:
		return "max-age=31536000"
	case maxAgeMetadata:
		return "max-age=900"
	case maxAgeDynDesc:
		return "max-age=7200"
	default:
		return "no-cache"
	}
}

// serveCached runs the redis -> origin bucket -> render hierarchy for
// one tile. Rendered tiles are written back to both layers; the origin
// write happens after the response so a slow bucket never delays a
// tile.
func (h *Handler) serveCached(c echo.Context, kind, dataset, contentType, objectKey string, maxAge int,
	render func(ctx context.Context) ([]byte, error)) error {

	ctx := c.Request().Context()
	redisKey := "tile:" + objectKey

	cached, err := h.redis.Get(ctx, redisKey).Bytes()
	if err == nil {
		h.metrics.CacheEvents.WithLabelValues("redis", "hit").Inc()
		return respondTile(c, contentType, cached, maxAge)
	}
	h.metrics.CacheEvents.WithLabelValues("redis", "miss").Inc()

	data, err := h.origin.Get(ctx, objectKey)
	if err == nil {
		h.metrics.CacheEvents.WithLabelValues("origin", "hit").Inc()
		_ = h.redis.Set(context.Background(), redisKey, data, tileCacheTTL).Err()
		return respondTile(c, contentType, data, maxAge)
	}
	if !errs.IsKind(err, errs.NotFound) {
		h.log.Warn().Err(err).Str("key", objectKey).Msg("origin bucket read failed")
	}
	h.metrics.CacheEvents.WithLabelValues("origin", "miss").Inc()

	start := time.Now()
	data, err = render(ctx)
	if err != nil {
		return err
	}
	h.metrics.TileRenders.WithLabelValues(kind, dataset).Inc()
	h.metrics.RenderDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	// Empty tiles are cached too, to absorb repeat lookups over oceans.
	stored := data
	if stored == nil {
		stored = []byte{}
	}
	_ = h.redis.Set(context.Background(), redisKey, stored, tileCacheTTL).Err()
	h.origin.PutAsync(objectKey, stored, contentType)

	return respondTile(c, contentType, data, maxAge)
}

// LatestVersions reports the dataset -> latest version map. Internal
// endpoint used by the redirect middleware of downstream caches.
func (h *Handler) LatestVersions(c echo.Context) error {
	latest, err := h.registry.LatestVersions(c.Request().Context())
	if err != nil {
		return err
	}

	type entry struct {
		Dataset string `json:"dataset"`
		Version string `json:"version"`
	}
	data := make([]entry, 0, len(latest))
	for dataset, version := range latest {
		data = append(data, entry{Dataset: dataset, Version: version})
	}

	c.Response().Header().Set("Cache-Control", cacheControl(maxAgeMetadata))
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": data})
}

// ErrorHandler renders the error envelope: "failed" for request errors,
// "error" for server faults, with the HTTP status derived from the
// error kind.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var appErr *errs.Error
		var echoErr *echo.HTTPError
		if errors.As(err, &appErr) {
			status = errs.HTTPStatus(appErr)
			message = appErr.Message
		} else if errors.As(err, &echoErr) {
			status = echoErr.Code
			if m, ok := echoErr.Message.(string); ok {
				message = m
			}
		}

		if status >= 500 {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		envelope := "failed"
		if status >= 500 {
			envelope = "error"
		}
		_ = c.JSON(status, echo.Map{"status": envelope, "message": message})
	}
}
