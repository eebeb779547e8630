package tiles

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"forest-tile-server/internal/errs"
	"forest-tile-server/internal/registry"
)

// RedirectLatest rewrites GET requests using the "latest" version token
// into a 307 redirect at the resolved version number, so every cache
// layer downstream only ever sees explicit versions. Any other method
// falls through and fails version validation with a 400.
func RedirectLatest(reg *registry.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || !strings.Contains(req.URL.Path, "/latest/") {
				return next(c)
			}

			segments := strings.Split(req.URL.Path, "/")
			idx := 0
			for i, segment := range segments {
				if segment == "latest" {
					idx = i
					break
				}
			}
			if idx < 2 {
				return errs.Validationf("invalid URI")
			}

			dataset := segments[idx-1]
			version, err := reg.LatestVersion(req.Context(), dataset)
			if err != nil {
				return err
			}
			segments[idx] = version

			target := strings.Join(segments, "/")
			if raw := req.URL.RawQuery; raw != "" {
				target += "?" + raw
			}
			return c.Redirect(http.StatusTemporaryRedirect, target)
		}
	}
}

// NoCacheRoot marks the root and health endpoints uncacheable so CDNs
// never pin an old landing response.
func NoCacheRoot() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/" || path == "/health" {
				c.Response().Header().Set("Cache-Control", "no-cache")
			}
			return next(c)
		}
	}
}
