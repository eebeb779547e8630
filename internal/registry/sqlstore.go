package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLStore reads the metadata tables maintained by the data API.
type SQLStore struct {
	DB *pgxpool.Pool
}

func (s *SQLStore) Versions(ctx context.Context, dataset string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT DISTINCT version
		FROM assets
		WHERE dataset = $1
		  AND status = 'saved'`, dataset)
	if err != nil {
		return nil, fmt.Errorf("registry: versions for %s: %w", dataset, err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("registry: versions for %s: %w", dataset, err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLStore) LatestVersions(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT DISTINCT dataset, version
		FROM versions
		WHERE status = 'saved'
		  AND is_latest = true`)
	if err != nil {
		return nil, fmt.Errorf("registry: latest versions: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]string)
	for rows.Next() {
		var dataset, version string
		if err := rows.Scan(&dataset, &version); err != nil {
			return nil, fmt.Errorf("registry: latest versions: %w", err)
		}
		latest[dataset] = version
	}
	return latest, rows.Err()
}

func (s *SQLStore) Fields(ctx context.Context, dataset, version string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT name
		FROM fields
		WHERE dataset = $1
		  AND version = $2
		ORDER BY name`, dataset, version)
	if err != nil {
		return nil, fmt.Errorf("registry: fields for %s/%s: %w", dataset, version, err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("registry: fields for %s/%s: %w", dataset, version, err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *SQLStore) MaxZoom(ctx context.Context, dataset, version, implementation string) (int, error) {
	var zoom int
	err := s.DB.QueryRow(ctx, `
		SELECT max_zoom
		FROM assets
		WHERE dataset = $1
		  AND version = $2
		  AND implementation = $3
		  AND status = 'saved'`, dataset, version, implementation).Scan(&zoom)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("registry: max zoom for %s/%s/%s: %w", dataset, version, implementation, err)
	}
	return zoom, nil
}
