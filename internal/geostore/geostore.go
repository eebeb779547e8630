// Package geostore fetches named area-of-interest geometries from the
// external geostore service. Geometries are immutable per ID, so a small
// process-wide LRU avoids refetching hot areas.
package geostore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"forest-tile-server/internal/errs"
)

const cacheSize = 128

// Geometry is a fetched geostore geometry: the raw GeoJSON that gets
// bound into the SQL intersects filter, and its lon/lat envelope used for
// the tile-intersection short circuit.
type Geometry struct {
	GeoJSON  json.RawMessage
	Envelope orb.Bound
}

// Fetcher is implemented by Client and by test fakes.
type Fetcher interface {
	Geometry(ctx context.Context, geostoreID string) (*Geometry, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   *lru.Cache[string, *Geometry]
}

// NewClient builds a geostore client for the given service base URL.
// Calls carry a bounded timeout and are never retried: a slow upstream
// retried immediately will likely be slow again.
func NewClient(baseURL string) *Client {
	cache, _ := lru.New[string, *Geometry](cacheSize)
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

// Geometry fetches the GeoJSON geometry and envelope for a geostore ID.
func (c *Client) Geometry(ctx context.Context, geostoreID string) (*Geometry, error) {
	if g, ok := c.cache.Get(geostoreID); ok {
		return g, nil
	}

	url := fmt.Sprintf("%s/v2/geostore/%s", c.baseURL, geostoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "geostore request for %s", geostoreID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "call to geostore failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.NotFoundf("geostore %s not found", geostoreID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Upstreamf("call to geostore failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "reading geostore response")
	}

	g, err := parseGeometry(body)
	if err != nil {
		return nil, err
	}

	c.cache.Add(geostoreID, g)
	return g, nil
}

// parseGeometry digs the first feature geometry out of the geostore
// response envelope.
func parseGeometry(body []byte) (*Geometry, error) {
	var envelope struct {
		Data struct {
			Attributes struct {
				GeoJSON struct {
					Features []struct {
						Geometry json.RawMessage `json:"geometry"`
					} `json:"features"`
				} `json:"geojson"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errs.Wrap(errs.Validation, err, "cannot fetch geostore geometry")
	}

	features := envelope.Data.Attributes.GeoJSON.Features
	if len(features) == 0 || len(features[0].Geometry) == 0 {
		return nil, errs.Validationf("cannot fetch geostore geometry")
	}

	raw := features[0].Geometry
	geom, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, "cannot parse geostore geometry")
	}

	return &Geometry{
		GeoJSON:  raw,
		Envelope: geom.Geometry().Bound(),
	}, nil
}
