package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "LineGuard/pkg/logger"
)

// Recover turns handler panics into a 500 envelope without leaking the stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					l.Error("panic recovered",
						applogger.String("path", c.Path()),
						applogger.String("panic", fmt.Sprint(r)),
						applogger.String("stack", string(debug.Stack())),
					)
					if c.Response().Committed {
						return
					}
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": http.StatusText(http.StatusInternalServerError),
						"data": []map[string]string{{
							"code":    "ERR_INTERNAL",
							"message": "Something went wrong",
						}},
					})
				}
			}()
			return next(c)
		}
	}
}
