package http

import (
	"time"

	xutil "TradeBot/pkg/util"

	"github.com/labstack/echo/v4"
)

// QueryBool reads a boolean query parameter, falling back to def.
func QueryBool(c echo.Context, name string, def bool) bool {
	return xutil.ParseBoolDefault(c.QueryParam(name), def)
}

func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}

// QuerySince reads an absolute time or a lookback duration. ok is false when absent or invalid.
func QuerySince(c echo.Context, name string, now time.Time) (time.Time, bool) {
	return xutil.ParseSince(c.QueryParam(name), now)
}
