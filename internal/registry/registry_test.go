package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-tile-server/internal/errs"
)

type fakeStore struct {
	versions     map[string][]string
	latest       map[string]string
	fields       map[string][]string
	maxZoom      map[string]int
	err          error
	versionCalls int
}

func (f *fakeStore) Versions(ctx context.Context, dataset string) ([]string, error) {
	f.versionCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.versions[dataset], nil
}

func (f *fakeStore) LatestVersions(ctx context.Context) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

func (f *fakeStore) Fields(ctx context.Context, dataset, version string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[dataset+"/"+version], nil
}

func (f *fakeStore) MaxZoom(ctx context.Context, dataset, version, implementation string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.maxZoom[dataset+"/"+version+"/"+implementation], nil
}

func TestRequireVersion(t *testing.T) {
	store := &fakeStore{versions: map[string][]string{
		"nasa_viirs_fire_alerts": {"v202401", "v202402"},
	}}
	reg := New(store)
	ctx := context.Background()

	assert.NoError(t, reg.RequireVersion(ctx, "nasa_viirs_fire_alerts", "v202401"))

	err := reg.RequireVersion(ctx, "nasa_viirs_fire_alerts", "v999")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))

	err = reg.RequireVersion(ctx, "unknown_dataset", "v1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
}

func TestRequireVersionRejectsLatestToken(t *testing.T) {
	store := &fakeStore{versions: map[string][]string{"ds": {"latest"}}}
	reg := New(store)

	// Never resolved here even if a version row carries the literal name.
	err := reg.RequireVersion(context.Background(), "ds", "latest")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
	assert.Zero(t, store.versionCalls)
}

func TestLatestVersion(t *testing.T) {
	store := &fakeStore{latest: map[string]string{"umd_tree_cover_loss": "v1.11"}}
	reg := New(store)

	version, err := reg.LatestVersion(context.Background(), "umd_tree_cover_loss")
	require.NoError(t, err)
	assert.Equal(t, "v1.11", version)

	_, err = reg.LatestVersion(context.Background(), "no_such_dataset")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Validation))
}

func TestFieldSet(t *testing.T) {
	store := &fakeStore{fields: map[string][]string{
		"ds/v1": {"is__peat_land", "bra_biome__name"},
	}}
	reg := New(store)

	set, err := reg.FieldSet(context.Background(), "ds", "v1")
	require.NoError(t, err)
	assert.Contains(t, set, "is__peat_land")
	assert.Contains(t, set, "bra_biome__name")
	assert.NotContains(t, set, "other")
}

func TestMaxZoomFallsBackToZero(t *testing.T) {
	reg := New(&fakeStore{err: errors.New("db down")})
	assert.Zero(t, reg.MaxZoom(context.Background(), "ds", "v1", "default"))

	reg = New(&fakeStore{maxZoom: map[string]int{"ds/v1/default": 14}})
	assert.Equal(t, 14, reg.MaxZoom(context.Background(), "ds", "v1", "default"))
}

func TestVersionsCached(t *testing.T) {
	store := &fakeStore{versions: map[string][]string{"ds": {"v1"}}}
	reg := New(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.Versions(ctx, "ds")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.versionCalls)
}

func TestVersionsCacheExpires(t *testing.T) {
	store := &fakeStore{versions: map[string][]string{"ds": {"v1"}}}
	reg := NewWithTTL(store, time.Millisecond)
	ctx := context.Background()

	_, err := reg.Versions(ctx, "ds")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = reg.Versions(ctx, "ds")
	require.NoError(t, err)

	assert.Equal(t, 2, store.versionCalls)
}

func TestVersionsServesStaleOnRefreshError(t *testing.T) {
	store := &fakeStore{versions: map[string][]string{"ds": {"v1"}}}
	reg := NewWithTTL(store, time.Millisecond)
	ctx := context.Background()

	_, err := reg.Versions(ctx, "ds")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	store.err = errors.New("db down")

	versions, err := reg.Versions(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, versions)
}

func TestVersionsInitialLoadErrorSurfaces(t *testing.T) {
	reg := New(&fakeStore{err: errors.New("db down")})
	_, err := reg.Versions(context.Background(), "ds")
	assert.Error(t, err)
}
