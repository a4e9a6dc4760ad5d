package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the calling goroutine and is expected to return once the context is done;
// if the deadline has passed and nothing was written yet, the response is a
// 504. /metrics is exempt so that slow scrapes are not cut off.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || c.Request().URL.Path == "/metrics" {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			if err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Msg("handler error replaced by timeout response")
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"message": "request processing exceeded the allowed time limit",
			})
		}
	}
}
