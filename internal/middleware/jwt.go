package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/utils"
)

// JWTAuth validates the Bearer session token and stores its principal on
// the context. Validation is stateless: signature, expiry, issuer and
// audience only.
func JWTAuth(cfg utils.TokenConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := utils.ParseAccessToken(cfg, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			SetPrincipal(c, claims.Principal())
			return next(c)
		}
	}
}
