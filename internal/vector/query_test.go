package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/mercator"
)

var testBounds = mercator.Bounds{Left: -100, Bottom: -200, Right: 100, Top: 200}

func TestBuildSimpleQuery(t *testing.T) {
	q := TileQuery{
		Schema: "umd_modis_burned_areas",
		Table:  "v202003",
		Bounds: testBounds,
		Extent: 4096,
	}

	sql, args, err := q.Build()
	require.NoError(t, err)

	want := "SELECT ST_AsMVT(mvt_table.*, 'umd_modis_burned_areas', 4096)\n" +
		"FROM (\n" +
		"SELECT ST_AsMVTGeom(t.geom_wm, bounds.geom::box2d, 4096, 0, false) AS geom\n" +
		"FROM umd_modis_burned_areas.\"v202003\" AS t,\n" +
		"(SELECT ST_MakeEnvelope($1, $2, $3, $4, 3857) AS geom) AS bounds\n" +
		"WHERE ST_Intersects(t.geom_wm, bounds.geom)\n" +
		") AS mvt_table\n" +
		"WHERE geom IS NOT NULL"
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{-100.0, -200.0, 100.0, 200.0}, args)
}

func TestBuildAggregatedQuery(t *testing.T) {
	q := TileQuery{
		Schema:     "nasa_viirs_fire_alerts",
		Table:      "v202401",
		Bounds:     testBounds,
		Extent:     4096,
		Aggregate:  true,
		Attributes: []string{"alert__date", "frp__mw", "not_an_attribute"},
		Filters: []Filter{
			DateFilter{Field: "alert__date", Start: "2024-01-01", End: "2024-01-07"},
		},
	}

	sql, args, err := q.Build()
	require.NoError(t, err)

	want := "SELECT ST_AsMVT(grouped_mvt.*, 'nasa_viirs_fire_alerts', 4096)\n" +
		"FROM (\n" +
		"SELECT geom, count(*) AS count, " +
		"mode() WITHIN GROUP (ORDER BY alert__date) AS alert__date, " +
		"sum(frp__mw) AS frp__mw\n" +
		"FROM (\n" +
		"SELECT ST_AsMVTGeom(t.geom_wm, bounds.geom::box2d, 4096, 0, false) AS geom\n" +
		"FROM nasa_viirs_fire_alerts.\"v202401\" AS t,\n" +
		"(SELECT ST_MakeEnvelope($1, $2, $3, $4, 3857) AS geom) AS bounds\n" +
		"WHERE ST_Intersects(t.geom_wm, bounds.geom)\n" +
		"AND alert__date BETWEEN $5 AND $6\n" +
		") AS mvt_table\n" +
		"WHERE geom IS NOT NULL\n" +
		"GROUP BY geom\n" +
		") AS grouped_mvt"
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{-100.0, -200.0, 100.0, 200.0, "2024-01-01", "2024-01-07"}, args)
}

func TestBuildColumnsAndOrder(t *testing.T) {
	q := TileQuery{
		Schema:  "datasets",
		Table:   "v1",
		Bounds:  testBounds,
		Columns: []string{"alert__date", "confidence__cat"},
		OrderBy: []string{"alert__date"},
	}

	sql, _, err := q.Build()
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT alert__date, confidence__cat, ST_AsMVTGeom")
	assert.Contains(t, sql, "ORDER BY alert__date")
}

func TestBuildQuotesDottedVersionTable(t *testing.T) {
	q := TileQuery{Schema: "umd_tree_cover_loss", Table: "v1.11", Bounds: testBounds}

	sql, _, err := q.Build()
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM umd_tree_cover_loss."v1.11" AS t,`)
	assert.NotContains(t, sql, "FROM umd_tree_cover_loss.v1.11")
}

func TestBuildRejectsUnsafeIdentifiers(t *testing.T) {
	cases := []TileQuery{
		{Schema: "bad-schema;", Table: "v1", Bounds: testBounds},
		{Schema: "ok", Table: "v1; DROP TABLE x", Bounds: testBounds},
		{Schema: "ok", Table: "v1", Columns: []string{"a b"}, Bounds: testBounds},
		{Schema: "ok", Table: "v1", OrderBy: []string{"a; --"}, Bounds: testBounds},
	}
	for _, q := range cases {
		_, _, err := q.Build()
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.Validation))
	}
}

func TestBuildDefaultsLayerAndExtent(t *testing.T) {
	q := TileQuery{Schema: "some_dataset", Table: "v1", Bounds: testBounds}

	sql, _, err := q.Build()
	require.NoError(t, err)
	assert.Contains(t, sql, "ST_AsMVT(mvt_table.*, 'some_dataset', 4096)")
}

func TestBuildScaledExtent(t *testing.T) {
	q := TileQuery{Schema: "some_dataset", Table: "v1", Bounds: testBounds, Extent: 8192}

	sql, _, err := q.Build()
	require.NoError(t, err)
	assert.Contains(t, sql, "ST_AsMVT(mvt_table.*, 'some_dataset', 8192)")
	assert.Contains(t, sql, "ST_AsMVTGeom(t.geom_wm, bounds.geom::box2d, 8192, 0, false)")
}
