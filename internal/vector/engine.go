package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"forest-tile-server/internal/errs"
)

// queryCanceled is the SQLSTATE PostgreSQL reports when the server-side
// statement timeout cancels a query.
const queryCanceled = "57014"

// Querier is the subset of pgxpool.Pool the engine needs. Tests provide
// fakes; production wires the shared pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Engine executes compiled tile queries. A tile render is a single
// prepared-statement execution, so no connection is held across
// round trips.
type Engine struct {
	DB Querier
}

func NewEngine(db Querier) *Engine {
	return &Engine{DB: db}
}

// Tile runs the query and returns the binary vector tile. Empty tiles
// come back as zero-length bytes, not an error. Server-side cancellation
// surfaces as a timeout which the caller must not retry automatically.
func (e *Engine) Tile(ctx context.Context, q TileQuery) ([]byte, error) {
	sql, args, err := q.Build()
	if err != nil {
		return nil, err
	}

	var tile []byte
	if err := e.DB.QueryRow(ctx, sql, args...).Scan(&tile); err != nil {
		return nil, mapQueryError(err, q)
	}
	return tile, nil
}

// MaxDate returns the newest alert__date in a dataset version table.
func (e *Engine) MaxDate(ctx context.Context, schema, table string) (string, error) {
	if !safeIdent.MatchString(schema) || !tableIdent.MatchString(table) {
		return "", errs.Validationf("invalid dataset or version name")
	}

	sql := fmt.Sprintf("SELECT max(alert__date)::text FROM %s.%q", schema, table)

	var maxDate *string
	if err := e.DB.QueryRow(ctx, sql).Scan(&maxDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.Validationf("no alert dates recorded for %s.%s", schema, table)
		}
		return "", fmt.Errorf("max date query failed for %s.%s: %w", schema, table, err)
	}
	if maxDate == nil {
		return "", errs.Validationf("no alert dates recorded for %s.%s", schema, table)
	}
	return *maxDate, nil
}

func mapQueryError(err error, q TileQuery) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceled {
		return errs.Wrap(errs.Timeout, err,
			"a timeout occurred while processing the request, request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.Timeout, err,
			"a timeout occurred while processing the request, request canceled")
	}
	return fmt.Errorf("tile query failed (%s.%s): %w", q.Schema, q.Table, err)
}
