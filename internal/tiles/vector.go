package tiles

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"forest-tile-server/internal/mercator"
	"forest-tile-server/internal/storage"
	"forest-tile-server/internal/vector"
)

// fireAlertsDataset carries the full NASA VIIRS archive. Its versioned
// tables live in a schema named after the dataset.
const fireAlertsDataset = "nasa_viirs_fire_alerts"

const burnedAreasDataset = "umd_modis_burned_areas"

// fireAlertsAttributes are the aggregate attributes included by default
// on the aggregated fire alerts path.
var fireAlertsAttributes = []string{
	"latitude", "longitude", "alert__date", "alert__time_utc",
	"confidence__cat", "bright_ti4__k", "bright_ti5__k", "frp__mw",
}

// fireAlertsContextualFields lists the boolean and categorical columns
// exposed as query-parameter filters on the fire alerts endpoint.
var fireAlertsContextualFields = []string{
	"is__regional_primary_forest",
	"is__alliance_for_zero_extinction_site",
	"is__key_biodiversity_area",
	"is__landmark",
	"gfw_plantation__type",
	"is__gfw_mining",
	"is__gfw_logging",
	"rspo_oil_palm__certification_status",
	"is__gfw_wood_fiber",
	"is__peat_land",
	"is__idn_forest_moratorium",
	"is__gfw_oil_palm",
	"idn_forest_area__type",
	"per_forest_concession__type",
	"is__gfw_oil_gas",
	"is__mangroves_2016",
	"is__intact_forest_landscapes_2016",
	"bra_biome__name",
}

func (h *Handler) defaultStart() string {
	days := h.cfg.DefaultDateRangeDays
	return time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
}

func defaultEnd() string {
	return time.Now().UTC().Format("2006-01-02")
}

// dateRange pulls start_date/end_date from the query, applying the
// rolling default window and validating order and span.
func (h *Handler) dateRange(c echo.Context) (start, end string, explicit bool, err error) {
	start = c.QueryParam("start_date")
	end = c.QueryParam("end_date")
	explicit = start != "" && end != ""
	if start == "" {
		start = h.defaultStart()
	}
	if end == "" {
		end = defaultEnd()
	}

	force := c.QueryParam("force_date_range") == "true"
	if err := vector.ValidateDates(start, end, h.cfg.MaxDateRangeDays, force); err != nil {
		return "", "", false, err
	}
	return start, end, explicit, nil
}

// FireAlertsTile serves the aggregated fire alerts vector tile. Zoom
// levels below the aggregation threshold merge adjacent alerts into
// single points with aggregate attributes.
func (h *Handler) FireAlertsTile(c echo.Context) error {
	ctx := c.Request().Context()

	addr, err := resolveTile(c, ".pbf")
	if err != nil {
		return err
	}
	version, err := h.version(c, fireAlertsDataset)
	if err != nil {
		return err
	}

	start, end, explicit, err := h.dateRange(c)
	if err != nil {
		return err
	}

	filters := []vector.Filter{
		vector.ConfidenceFilter{HighOnly: c.QueryParam("high_confidence_only") == "true"},
		vector.DateFilter{Field: "alert__date", Start: start, End: end},
	}

	geomFilter, err := vector.BuildGeometryFilter(ctx, h.geostore,
		c.QueryParam("geostore_id"), mercator.GeographicBounds(addr.Z, addr.X, addr.Y))
	if err != nil {
		return err
	}
	if geomFilter != nil {
		filters = append(filters, geomFilter)
	}

	allowed, err := h.registry.FieldSet(ctx, fireAlertsDataset, version)
	if err != nil {
		return err
	}
	contextual := map[string]any{}
	params := map[string]string{}
	for _, field := range fireAlertsContextualFields {
		if v := c.QueryParam(field); v != "" {
			contextual[field] = v
			params[field] = v
		}
	}
	filters = append(filters, vector.ContextualFilters(contextual, allowed)...)

	attributes := fireAlertsAttributes
	if include := c.QueryParams()["include_attribute"]; len(include) > 0 {
		attributes = include
		params["include_attribute"] = strings.Join(include, ",")
	}

	query := vector.TileQuery{
		Schema: fireAlertsDataset,
		Table:  version,
		Bounds: addr.Bounds,
		Extent: addr.Extent,
	}
	if addr.Z < vector.AggregationZoomThreshold {
		query.Aggregate = true
		query.Attributes = attributes
	} else {
		query.Columns = attributes
	}
	query.Filters = filters

	maxAge := maxAgeRolling
	if explicit {
		maxAge = maxAgeImmutable
	}

	// Every content-affecting parameter keys the cached object, a lone
	// start or end date included.
	params["start_date"] = c.QueryParam("start_date")
	params["end_date"] = c.QueryParam("end_date")
	if c.QueryParam("high_confidence_only") == "true" {
		params["high_confidence_only"] = "true"
	}
	params["geostore_id"] = c.QueryParam("geostore_id")

	key := storage.TileObjectKey(fireAlertsDataset, version,
		storage.QueryHash(params), addr.Z, addr.X, addr.Y, "pbf")

	return h.serveCached(c, "vector", fireAlertsDataset, pbfContentType, key, maxAge,
		func(ctx context.Context) ([]byte, error) {
			return h.engine.Tile(ctx, query)
		})
}

// BurnedAreasTile serves MODIS burned area polygons with a date filter.
func (h *Handler) BurnedAreasTile(c echo.Context) error {
	ctx := c.Request().Context()

	addr, err := resolveTile(c, ".pbf")
	if err != nil {
		return err
	}
	version, err := h.version(c, burnedAreasDataset)
	if err != nil {
		return err
	}

	start, end, explicit, err := h.dateRange(c)
	if err != nil {
		return err
	}

	filters := []vector.Filter{
		vector.DateFilter{Field: "alert__date", Start: start, End: end},
	}
	geomFilter, err := vector.BuildGeometryFilter(ctx, h.geostore,
		c.QueryParam("geostore_id"), mercator.GeographicBounds(addr.Z, addr.X, addr.Y))
	if err != nil {
		return err
	}
	if geomFilter != nil {
		filters = append(filters, geomFilter)
	}

	query := vector.TileQuery{
		Schema:  burnedAreasDataset,
		Table:   version,
		Bounds:  addr.Bounds,
		Extent:  addr.Extent,
		Filters: filters,
	}

	maxAge := maxAgeRolling
	if explicit {
		maxAge = maxAgeImmutable
	}

	params := map[string]string{
		"geostore_id": c.QueryParam("geostore_id"),
		"start_date":  c.QueryParam("start_date"),
		"end_date":    c.QueryParam("end_date"),
	}
	key := storage.TileObjectKey(burnedAreasDataset, version,
		storage.QueryHash(params), addr.Z, addr.X, addr.Y, "pbf")

	return h.serveCached(c, "vector", burnedAreasDataset, pbfContentType, key, maxAge,
		func(ctx context.Context) ([]byte, error) {
			return h.engine.Tile(ctx, query)
		})
}

// DynamicVectorTile serves any other registered vector dataset with the
// optional geostore filter only.
func (h *Handler) DynamicVectorTile(c echo.Context) error {
	ctx := c.Request().Context()
	dataset := c.Param("dataset")

	addr, err := resolveTile(c, ".pbf")
	if err != nil {
		return err
	}
	version, err := h.version(c, dataset)
	if err != nil {
		return err
	}

	var filters []vector.Filter
	geomFilter, err := vector.BuildGeometryFilter(ctx, h.geostore,
		c.QueryParam("geostore_id"), mercator.GeographicBounds(addr.Z, addr.X, addr.Y))
	if err != nil {
		return err
	}
	if geomFilter != nil {
		filters = append(filters, geomFilter)
	}

	query := vector.TileQuery{
		Schema:  dataset,
		Table:   version,
		Bounds:  addr.Bounds,
		Extent:  addr.Extent,
		Filters: filters,
	}

	params := map[string]string{"geostore_id": c.QueryParam("geostore_id")}
	key := storage.TileObjectKey(dataset, version,
		storage.QueryHash(params), addr.Z, addr.X, addr.Y, "pbf")

	return h.serveCached(c, "vector", dataset, pbfContentType, key, maxAgeRolling,
		func(ctx context.Context) ([]byte, error) {
			return h.engine.Tile(ctx, query)
		})
}

// FireAlertsMaxDate reports the newest alert date in the fire alerts
// dataset, so clients can anchor their rolling windows.
func (h *Handler) FireAlertsMaxDate(c echo.Context) error {
	return h.maxDate(c, fireAlertsDataset)
}

// BurnedAreasMaxDate reports the newest alert date for burned areas.
func (h *Handler) BurnedAreasMaxDate(c echo.Context) error {
	return h.maxDate(c, burnedAreasDataset)
}

func (h *Handler) maxDate(c echo.Context, dataset string) error {
	ctx := c.Request().Context()
	version, err := h.version(c, dataset)
	if err != nil {
		return err
	}

	maxDate, err := h.engine.MaxDate(ctx, dataset, version)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Cache-Control", cacheControl(maxAgeMetadata))
	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"max_date": maxDate},
	})
}
