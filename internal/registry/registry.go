// Package registry resolves dataset and version metadata from the
// asset tables. Lookups are read-heavy and cached process-wide with a
// short TTL; a slightly stale registry is an accepted trade-off, so the
// old value keeps being served while a refresh is in flight.
package registry

import (
	"context"
	"fmt"
	"time"

	"forest-tile-server/internal/errs"
)

const defaultTTL = 15 * time.Minute

// Store is the uncached metadata source, implemented by SQLStore.
type Store interface {
	Versions(ctx context.Context, dataset string) ([]string, error)
	LatestVersions(ctx context.Context) (map[string]string, error)
	Fields(ctx context.Context, dataset, version string) ([]string, error)
	MaxZoom(ctx context.Context, dataset, version, implementation string) (int, error)
}

type Registry struct {
	store Store

	versions *ttlCache[[]string]
	latest   *ttlCache[map[string]string]
	fields   *ttlCache[[]string]
	maxZoom  *ttlCache[int]
}

func New(store Store) *Registry {
	return NewWithTTL(store, defaultTTL)
}

func NewWithTTL(store Store, ttl time.Duration) *Registry {
	return &Registry{
		store:    store,
		versions: newTTLCache[[]string](ttl),
		latest:   newTTLCache[map[string]string](ttl),
		fields:   newTTLCache[[]string](ttl),
		maxZoom:  newTTLCache[int](ttl),
	}
}

// Versions lists the known versions of a dataset.
func (r *Registry) Versions(ctx context.Context, dataset string) ([]string, error) {
	return r.versions.get(dataset, func() ([]string, error) {
		return r.store.Versions(ctx, dataset)
	})
}

// RequireVersion fails with a validation error when the dataset has no
// such version. The literal token "latest" is rejected here; callers must
// resolve it before reaching a render path.
func (r *Registry) RequireVersion(ctx context.Context, dataset, version string) error {
	if version == "latest" {
		return errs.Validationf("you must list the version name explicitly for this operation")
	}
	versions, err := r.Versions(ctx, dataset)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v == version {
			return nil
		}
	}
	if len(versions) == 0 {
		return errs.Validationf("unknown dataset %s", dataset)
	}
	return errs.Validationf("unknown version number, dataset %s has versions %v", dataset, versions)
}

// LatestVersions returns the dataset -> latest version map.
func (r *Registry) LatestVersions(ctx context.Context) (map[string]string, error) {
	return r.latest.get("", func() (map[string]string, error) {
		return r.store.LatestVersions(ctx)
	})
}

// LatestVersion resolves the "latest" token for one dataset.
func (r *Registry) LatestVersion(ctx context.Context, dataset string) (string, error) {
	latest, err := r.LatestVersions(ctx)
	if err != nil {
		return "", err
	}
	version, ok := latest[dataset]
	if !ok {
		return "", errs.Validationf("no latest version registered for dataset %s", dataset)
	}
	return version, nil
}

// Fields returns the attribute allow-list for a dataset version. Filter
// and include_attribute parameters are checked against this list; names
// not on it are dropped, not rejected.
func (r *Registry) Fields(ctx context.Context, dataset, version string) ([]string, error) {
	return r.fields.get(dataset+"/"+version, func() ([]string, error) {
		return r.store.Fields(ctx, dataset, version)
	})
}

// FieldSet is Fields as a membership set.
func (r *Registry) FieldSet(ctx context.Context, dataset, version string) (map[string]struct{}, error) {
	fields, err := r.Fields(ctx, dataset, version)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set, nil
}

// MaxZoom reports the highest zoom level with source rasters for an
// implementation, or 0 when unknown (no over-zoom support).
func (r *Registry) MaxZoom(ctx context.Context, dataset, version, implementation string) int {
	key := fmt.Sprintf("%s/%s/%s", dataset, version, implementation)
	zoom, err := r.maxZoom.get(key, func() (int, error) {
		return r.store.MaxZoom(ctx, dataset, version, implementation)
	})
	if err != nil {
		return 0
	}
	return zoom
}
