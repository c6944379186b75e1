package middleware

import (
	"github.com/labstack/echo/v4"
)

// viewHeaders go on every response of the dashboard view. The view only
// loads its own resources and its websocket, and snapshots go stale on
// the next tick so nothing may be cached.
var viewHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'self'; connect-src 'self'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"Cache-Control", "no-store"},
	{"Referrer-Policy", "same-origin"},
}

func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range viewHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
