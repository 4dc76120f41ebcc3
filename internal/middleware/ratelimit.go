package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"redirector/internal/config"
)

// RateLimiter returns a per-IP rate limiter. Rejected requests get a bare 429
// so the limiter does not reveal itself with a JSON error body.
func RateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.RequestsPerSecond))
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.NoContent(http.StatusTooManyRequests)
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.NoContent(http.StatusForbidden)
		},
	})
}
