package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling labels CPU samples taken while a request runs with its method,
// route pattern and resource, so profiles can be filtered per endpoint.
// Paths in skip are left unlabelled.
func Profiling(enabled bool, skip ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || skipped[c.Request.URL.Path] {
			c.Next()
			return
		}
		labels := pyroscope.Labels(
			"method", c.Request.Method,
			"route", route,
			"resource", resourceFromRoute(route),
		)
		pyroscope.TagWrapper(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// resourceFromRoute returns the first literal segment after the api prefix:
// "/api/v1/production-runs/:id" gives "production-runs"
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) || strings.HasPrefix(part, ":") {
			continue
		}
		return part
	}
	return ""
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
