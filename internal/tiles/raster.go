package tiles

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/mercator"
	"forest-tile-server/internal/raster"
	"forest-tile-server/internal/storage"
)

const treeCoverLossDataset = "umd_tree_cover_loss"

const integratedAlertsDataset = "gfw_integrated_alerts"

// deforestationDatasets all share the RGB-encoded alert format and the
// deforestation decode filter.
var deforestationDatasets = []string{
	"gfw_radd_alerts",
	"umd_glad_alerts",
	"umd_glad_sentinel2_alerts",
	"wur_radd_alerts",
}

// tcdThresholds are the tree cover density cutoffs with pre-built
// intensity rasters in the data lake.
var tcdThresholds = map[int]struct{}{
	10: {}, 15: {}, 20: {}, 25: {}, 30: {}, 50: {}, 75: {},
}

// resolveRasterTile parses z/x/y for a png endpoint. Raster tiles have
// no resolution variants, the scale suffix is rejected.
func resolveRasterTile(c echo.Context) (mercator.Address, error) {
	addr, err := resolveTile(c, ".png")
	if err != nil {
		return mercator.Address{}, err
	}
	if addr.Scale != 1 {
		return mercator.Address{}, errs.Validationf("raster tiles do not support scale factors")
	}
	return addr, nil
}

// serveRasterTile runs the shared raster path: cache hierarchy in front
// of a bands read plus filter render.
func (h *Handler) serveRasterTile(c echo.Context, dataset, version, cacheKey string,
	addr mercator.Address, maxAge int,
	read func(ctx context.Context) (*raster.Bands, error),
	filter func(src *raster.Bands) (*raster.RGBA, error)) error {

	key := storage.TileObjectKey(dataset, version, cacheKey, addr.Z, addr.X, addr.Y, "png")

	return h.serveCached(c, "raster", dataset, pngContentType, key, maxAge,
		func(ctx context.Context) ([]byte, error) {
			src, err := read(ctx)
			if err != nil {
				return nil, err
			}
			img, err := filter(src)
			if err != nil {
				return nil, err
			}
			return raster.EncodePNG(img)
		})
}

// readDataLake builds the standard super-tile read for one
// implementation, honoring the registered max zoom for over-zoom.
func (h *Handler) readDataLake(c echo.Context, dataset, version, implementation string,
	addr mercator.Address) func(ctx context.Context) (*raster.Bands, error) {

	maxZoom := h.registry.MaxZoom(c.Request().Context(), dataset, version, implementation)
	return func(ctx context.Context) (*raster.Bands, error) {
		return h.datalake.ReadTile(ctx, dataset, version, implementation,
			addr.Z, addr.X, addr.Y, maxZoom)
	}
}

// readEncodedDefault reads the default RGB-encoded super-tile, falling
// back to the already-rendered default tile in the public cache when
// the data lake has no source object. The cached PNG carries the same
// channel encoding, so the decode filter applies either way.
func (h *Handler) readEncodedDefault(c echo.Context, dataset, version string,
	addr mercator.Address) func(ctx context.Context) (*raster.Bands, error) {

	fromLake := h.readDataLake(c, dataset, version, "default", addr)
	return func(ctx context.Context) (*raster.Bands, error) {
		src, err := fromLake(ctx)
		if err == nil || !errs.IsKind(err, errs.NotFound) || h.upstream == nil {
			return src, err
		}
		return h.upstream.ReadTile(ctx, dataset, version, "default", addr.Z, addr.X, addr.Y)
	}
}

// implementationTile serves a pre-encoded implementation unchanged.
// These tiles carry their own channel semantics; the server only
// windows and upsamples them.
func (h *Handler) implementationTile(c echo.Context, dataset, version, implementation string,
	addr mercator.Address) error {

	return h.serveRasterTile(c, dataset, version, implementation, addr, maxAgeImmutable,
		h.readDataLake(c, dataset, version, implementation, addr),
		func(src *raster.Bands) (*raster.RGBA, error) {
			return src.ToRGBA(), nil
		})
}

// yearParam parses a 4-digit year query parameter, zero when absent.
func yearParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > time.Now().Year() {
		return 0, errs.Validationf("%s must be a year between 2000 and %d", name, time.Now().Year())
	}
	return year, nil
}

// dateParam parses a YYYY-MM-DD query parameter, zero time when absent.
func dateParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errs.Malformedf("%s %q must use format YYYY-MM-DD", name, raw)
	}
	return d, nil
}

// TreeCoverLossTile serves annual tree cover loss. Three request
// shapes: an explicit implementation returns the encoded tiles
// unfiltered, a style returns the full-history true-color render for
// that density threshold, and tcd plus optional years returns the
// year-filtered true-color render.
func (h *Handler) TreeCoverLossTile(c echo.Context) error {
	addr, err := resolveRasterTile(c)
	if err != nil {
		return err
	}
	version, err := h.version(c, treeCoverLossDataset)
	if err != nil {
		return err
	}

	if impl := c.QueryParam("implementation"); impl != "" {
		return h.implementationTile(c, treeCoverLossDataset, version, impl, addr)
	}

	tcd := h.cfg.DefaultTCD
	startYear, endYear := 0, 0

	if style := c.QueryParam("style"); style != "" {
		t, err := parseTcdStyle(style)
		if err != nil {
			return err
		}
		tcd = t
	} else {
		if raw := c.QueryParam("tcd"); raw != "" {
			t, err := strconv.Atoi(raw)
			if err != nil {
				return errs.Validationf("invalid tcd threshold %q", raw)
			}
			tcd = t
		}
		if startYear, err = yearParam(c, "start_year"); err != nil {
			return err
		}
		if endYear, err = yearParam(c, "end_year"); err != nil {
			return err
		}
	}
	if _, ok := tcdThresholds[tcd]; !ok {
		return errs.Validationf("invalid tcd threshold %d", tcd)
	}

	implementation := "tcd_" + strconv.Itoa(tcd)

	params := map[string]string{}
	if startYear > 0 {
		params["start_year"] = strconv.Itoa(startYear)
	}
	if endYear > 0 {
		params["end_year"] = strconv.Itoa(endYear)
	}
	if tcd != h.cfg.DefaultTCD {
		params["tcd"] = strconv.Itoa(tcd)
	}

	maxAge := maxAgeImmutable
	if startYear == 0 && endYear == 0 {
		// Full-history tiles gain a year on every data update.
		maxAge = maxAgeRolling
	}

	return h.serveRasterTile(c, treeCoverLossDataset, version,
		storage.QueryHash(params), addr, maxAge,
		h.readDataLake(c, treeCoverLossDataset, version, implementation, addr),
		func(src *raster.Bands) (*raster.RGBA, error) {
			return raster.ApplyAnnualLossFilter(src, addr.Z, startYear, endYear)
		})
}

func parseTcdStyle(style string) (int, error) {
	const prefix = "tcd_"
	if len(style) > len(prefix) && style[:len(prefix)] == prefix {
		if t, err := strconv.Atoi(style[len(prefix):]); err == nil {
			return t, nil
		}
	}
	return 0, errs.Validationf("invalid style %q", style)
}

// DeforestationAlertsTile serves the RGB-encoded alert datasets with
// the pink decode filter, or an explicit implementation unchanged.
func (h *Handler) DeforestationAlertsTile(c echo.Context) error {
	dataset := datasetFromPath(c)

	addr, err := resolveRasterTile(c)
	if err != nil {
		return err
	}
	version, err := h.version(c, dataset)
	if err != nil {
		return err
	}

	if impl := c.QueryParam("implementation"); impl != "" {
		return h.implementationTile(c, dataset, version, impl, addr)
	}

	startDate, err := dateParam(c, "start_date")
	if err != nil {
		return err
	}
	endDate, err := dateParam(c, "end_date")
	if err != nil {
		return err
	}
	if !startDate.IsZero() && !endDate.IsZero() && startDate.After(endDate) {
		return errs.InvalidRangef("start date must be smaller or equal to end date")
	}
	confirmedOnly := c.QueryParam("confirmed_only") == "true"

	params := map[string]string{
		"start_date": c.QueryParam("start_date"),
		"end_date":   c.QueryParam("end_date"),
	}
	if confirmedOnly {
		params["confirmed_only"] = "true"
	}

	maxAge := maxAgeRolling
	if !startDate.IsZero() && !endDate.IsZero() {
		maxAge = maxAgeImmutable
	}

	return h.serveRasterTile(c, dataset, version,
		storage.QueryHash(params), addr, maxAge,
		h.readEncodedDefault(c, dataset, version, addr),
		func(src *raster.Bands) (*raster.RGBA, error) {
			return raster.ApplyDeforestationFilter(src, startDate, endDate, confirmedOnly)
		})
}

// IntegratedAlertsTile serves the integrated deforestation alert
// product: date and confidence packed in one band, intensity in the
// second. render_type=encoded returns the repacked channels instead of
// the true-color render.
func (h *Handler) IntegratedAlertsTile(c echo.Context) error {
	addr, err := resolveRasterTile(c)
	if err != nil {
		return err
	}
	version, err := h.version(c, integratedAlertsDataset)
	if err != nil {
		return err
	}

	if impl := c.QueryParam("implementation"); impl != "" {
		return h.implementationTile(c, integratedAlertsDataset, version, impl, addr)
	}

	startDate, err := dateParam(c, "start_date")
	if err != nil {
		return err
	}
	endDate, err := dateParam(c, "end_date")
	if err != nil {
		return err
	}
	if !startDate.IsZero() && !endDate.IsZero() && startDate.After(endDate) {
		return errs.InvalidRangef("start date must be smaller or equal to end date")
	}

	confidence, err := raster.ConfidenceTier(c.QueryParam("alert_confidence"))
	if err != nil {
		return err
	}
	if c.QueryParam("confirmed_only") == "true" && confidence < raster.ConfidenceHigh {
		confidence = raster.ConfidenceHigh
	}

	renderType := c.QueryParam("render_type")
	if renderType != "" && renderType != "true_color" && renderType != "encoded" {
		return errs.Validationf("render_type must be true_color or encoded")
	}

	opts := raster.IntegratedOptions{
		StartDate:     startDate,
		EndDate:       endDate,
		MinConfidence: confidence,
		Encoded:       renderType == "encoded",
	}

	params := map[string]string{
		"start_date":       c.QueryParam("start_date"),
		"end_date":         c.QueryParam("end_date"),
		"alert_confidence": c.QueryParam("alert_confidence"),
		"confirmed_only":   c.QueryParam("confirmed_only"),
		"render_type":      renderType,
	}

	maxAge := maxAgeRolling
	if !startDate.IsZero() && !endDate.IsZero() {
		maxAge = maxAgeImmutable
	}

	return h.serveRasterTile(c, integratedAlertsDataset, version,
		storage.QueryHash(params), addr, maxAge,
		h.readDataLake(c, integratedAlertsDataset, version, "default", addr),
		func(src *raster.Bands) (*raster.RGBA, error) {
			return raster.ApplyIntegratedFilter(src, opts)
		})
}

// datasetFromPath recovers the dataset segment for routes registered
// per dataset without a :dataset parameter.
func datasetFromPath(c echo.Context) string {
	path := c.Path()
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			return path[1:i]
		}
	}
	return path[1:]
}
