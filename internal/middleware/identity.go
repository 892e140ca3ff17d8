package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/access-control-api/internal/model"
)

const principalKey = "principal"

// SetPrincipal stores the authenticated caller on the request context.
func SetPrincipal(c echo.Context, p model.Principal) { c.Set(principalKey, p) }

// PrincipalFrom returns the caller stored by JWTAuth.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok
}

// userID identifies the caller for log fields and rate-limit keys. It
// returns "guest" for anonymous requests.
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok && p.UserID != 0 {
		return strconv.FormatInt(p.UserID, 10)
	}
	return "guest"
}
