package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout puts a deadline on the request context. A handler that
// gives up with context.DeadlineExceeded is answered with 503. The
// websocket endpoint is long-lived and exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/ws")
		},
		Timeout: timeout,
	})
}
