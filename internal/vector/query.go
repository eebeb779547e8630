package vector

import (
	"fmt"
	"regexp"
	"strings"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/mercator"
)

// AggregationZoomThreshold is the zoom level at or above which tiles
// serve individual features. Below it, point features whose clipped
// geometries land on the same vector-tile grid cell are merged, which is
// why clipping happens before the GROUP BY.
const AggregationZoomThreshold = 6

// aggregateExpressions is the fixed map of aggregate expressions
// available on the grouped path. Continuous measurements are averaged
// and rounded to bound payload size, additive ones summed, categorical
// and temporal ones take the most frequent value in the group.
var aggregateExpressions = map[string]string{
	"latitude":        "round(avg(latitude),4) AS latitude",
	"longitude":       "round(avg(longitude),4) AS longitude",
	"alert__date":     "mode() WITHIN GROUP (ORDER BY alert__date) AS alert__date",
	"alert__time_utc": "mode() WITHIN GROUP (ORDER BY alert__time_utc) AS alert__time_utc",
	"confidence__cat": "mode() WITHIN GROUP (ORDER BY confidence__cat) AS confidence__cat",
	"bright_ti4__k":   "round(avg(bright_ti4__k),3) AS bright_ti4__k",
	"bright_ti5__k":   "round(avg(bright_ti5__k),3) AS bright_ti5__k",
	"frp__mw":         "sum(frp__mw) AS frp__mw",
}

// TileQuery describes one vector tile request against a dataset table.
// Schema maps to the dataset name, Table to the version.
type TileQuery struct {
	Schema string
	Table  string
	Layer  string // MVT layer tag, defaults to Schema

	Bounds mercator.Bounds
	Extent int

	Columns []string
	Filters []Filter
	OrderBy []string

	// Aggregate groups features by their clipped geometry. Attributes
	// selects aggregate expressions; names without a known expression
	// are dropped silently.
	Aggregate  bool
	Attributes []string
}

// Build compiles the query into SQL text and bound parameters.
func (q TileQuery) Build() (string, []any, error) {
	if !safeIdent.MatchString(q.Schema) {
		return "", nil, errs.Validationf("invalid schema name %q", q.Schema)
	}
	if !tableIdent.MatchString(q.Table) {
		return "", nil, errs.Validationf("invalid table name %q", q.Table)
	}
	for _, col := range q.Columns {
		if !safeIdent.MatchString(col) {
			return "", nil, errs.Validationf("invalid column name %q", col)
		}
	}
	for _, col := range q.OrderBy {
		if !safeIdent.MatchString(col) {
			return "", nil, errs.Validationf("invalid order by column %q", col)
		}
	}

	layer := q.Layer
	if layer == "" {
		layer = q.Schema
	}
	extent := q.Extent
	if extent == 0 {
		extent = mercator.BaseExtent
	}

	args := &ArgList{}
	inner := q.buildInner(args, extent)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT ST_AsMVT(%s.*, '%s', %d)\nFROM (\n", q.outerAlias(), layer, extent)
	if q.Aggregate {
		sb.WriteString("SELECT geom, count(*) AS count")
		for _, attr := range q.Attributes {
			if expr, ok := aggregateExpressions[attr]; ok {
				sb.WriteString(", ")
				sb.WriteString(expr)
			}
		}
		sb.WriteString("\nFROM (\n")
		sb.WriteString(inner)
		sb.WriteString("\n) AS mvt_table\nWHERE geom IS NOT NULL\nGROUP BY geom")
	} else {
		sb.WriteString(inner)
	}
	fmt.Fprintf(&sb, "\n) AS %s", q.outerAlias())
	if !q.Aggregate {
		sb.WriteString("\nWHERE geom IS NOT NULL")
	}

	return sb.String(), args.Args(), nil
}

func (q TileQuery) outerAlias() string {
	if q.Aggregate {
		return "grouped_mvt"
	}
	return "mvt_table"
}

// buildInner produces the source sub-query: requested columns plus the
// geometry clipped and relocated into tile-local coordinates, bounded by
// the tile envelope and the predicate fragments.
func (q TileQuery) buildInner(args *ArgList, extent int) string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	for _, col := range q.Columns {
		sb.WriteString(col)
		sb.WriteString(", ")
	}
	// Zero buffer, no clip-to-box-only: geometries snap to the tile grid
	// so identical points collapse before any grouping.
	fmt.Fprintf(&sb, "ST_AsMVTGeom(t.geom_wm, bounds.geom::box2d, %d, 0, false) AS geom\n", extent)

	left := args.Add(q.Bounds.Left)
	bottom := args.Add(q.Bounds.Bottom)
	right := args.Add(q.Bounds.Right)
	top := args.Add(q.Bounds.Top)
	// Versions such as v1.11 are legal table names only when quoted;
	// unquoted the dot reads as a cross-database reference.
	fmt.Fprintf(&sb, "FROM %s.%q AS t,\n", q.Schema, q.Table)
	fmt.Fprintf(&sb, "(SELECT ST_MakeEnvelope(%s, %s, %s, %s, 3857) AS geom) AS bounds\n",
		left, bottom, right, top)

	sb.WriteString("WHERE ST_Intersects(t.geom_wm, bounds.geom)")
	for _, f := range q.Filters {
		if f == nil {
			continue
		}
		if clause, ok := f.clause(args); ok {
			sb.WriteString("\nAND ")
			sb.WriteString(clause)
		}
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(strings.Join(q.OrderBy, ", "))
	}

	return sb.String()
}

// tableIdent additionally admits version-style names such as v202003 or
// v1.10 used as table names.
var tableIdent = regexp.MustCompile(`^[a-z_][a-z0-9_.]*$`)
