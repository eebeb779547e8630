// Package vector builds and executes the spatial SQL queries that
// produce Mapbox Vector Tiles from PostGIS.
package vector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/geostore"
)

// ArgList collects bound query parameters and hands out their
// positional placeholders. Values are never interpolated into SQL text.
type ArgList struct {
	args []any
}

func (a *ArgList) Add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

func (a *ArgList) Args() []any { return a.args }

// Filter is one predicate fragment of a tile query. Filters combine
// under conjunction; a filter may report itself neutral (absent value)
// and contribute nothing.
type Filter interface {
	clause(a *ArgList) (string, bool)
}

// safeIdent matches the column names we are willing to interpolate.
// Anything else is dropped before it gets near the query text.
var safeIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// GeometryFilter restricts features to those intersecting an
// externally-supplied GeoJSON geometry.
type GeometryFilter struct {
	GeoJSON string
}

func (f GeometryFilter) clause(a *ArgList) (string, bool) {
	if f.GeoJSON == "" {
		return "", false
	}
	p := a.Add(f.GeoJSON)
	return fmt.Sprintf("ST_Intersects(t.geom, ST_SetSRID(ST_GeomFromGeoJSON(%s),4326))", p), true
}

// DateFilter restricts a date column to an inclusive range.
type DateFilter struct {
	Field      string
	Start, End string
}

func (f DateFilter) clause(a *ArgList) (string, bool) {
	if f.Start == "" || f.End == "" || !safeIdent.MatchString(f.Field) {
		return "", false
	}
	start := a.Add(f.Start)
	end := a.Add(f.End)
	return fmt.Sprintf("%s BETWEEN %s AND %s", f.Field, start, end), true
}

// EqualityFilter matches one allow-listed categorical or boolean column.
type EqualityFilter struct {
	Field string
	Value any
}

func (f EqualityFilter) clause(a *ArgList) (string, bool) {
	if f.Value == nil || !safeIdent.MatchString(f.Field) {
		return "", false
	}
	return fmt.Sprintf("%s = %s", f.Field, a.Add(f.Value)), true
}

// ConfidenceFilter gates alerts to the high-confidence label.
type ConfidenceFilter struct {
	HighOnly bool
}

func (f ConfidenceFilter) clause(a *ArgList) (string, bool) {
	if !f.HighOnly {
		return "", false
	}
	return fmt.Sprintf("confidence__cat = %s", a.Add("h")), true
}

// ContextualFilters turns query-parameter fields into equality filters.
// Only fields on the allow-list are forwarded; unknown fields and nil
// values are dropped silently. Output order is deterministic.
func ContextualFilters(fields map[string]any, allowed map[string]struct{}) []Filter {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var filters []Filter
	for _, name := range names {
		value := fields[name]
		if value == nil {
			continue
		}
		if _, ok := allowed[name]; !ok {
			continue
		}
		if !safeIdent.MatchString(name) {
			continue
		}
		filters = append(filters, EqualityFilter{Field: name, Value: value})
	}
	return filters
}

// ValidateDates checks a YYYY-MM-DD range: start must not exceed end and
// the span must stay within maxDays unless force is set.
func ValidateDates(start, end string, maxDays int, force bool) error {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return errs.Malformedf("start_date %q must use format YYYY-MM-DD", start)
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return errs.Malformedf("end_date %q must use format YYYY-MM-DD", end)
	}

	if startDate.After(endDate) {
		return errs.InvalidRangef("start date must be smaller or equal to end date")
	}
	if !force {
		if endDate.Sub(startDate) > time.Duration(maxDays)*24*time.Hour {
			return errs.InvalidRangef("date range cannot exceed %d days", maxDays)
		}
	}
	return nil
}

// BuildGeometryFilter fetches the geostore geometry and produces the
// intersects filter. When the geometry's envelope misses the tile bounds
// entirely it fails with NotFound before any database work; the SQL
// filter would only return zero rows, so the 404 saves the round trip.
func BuildGeometryFilter(ctx context.Context, fetcher geostore.Fetcher, geostoreID string, tileBound orb.Bound) (Filter, error) {
	if geostoreID == "" {
		return nil, nil
	}
	if fetcher == nil {
		return nil, errs.Validationf("geostore lookups are not configured")
	}

	geom, err := fetcher.Geometry(ctx, geostoreID)
	if err != nil {
		return nil, err
	}

	if !geom.Envelope.Intersects(tileBound) {
		return nil, errs.NotFoundf("tile does not intersect with geostore")
	}

	return GeometryFilter{GeoJSON: string(geom.GeoJSON)}, nil
}
