package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Browsers cannot attach a bearer
// header to a websocket upgrade, so /ws is public too.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
	"/ws":        true,
}

func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
