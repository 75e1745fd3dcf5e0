package api

import (
	"github.com/ankyy/musicbox/internal/api/util"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/labstack/echo/v4"
)

// IdentityResolver classifies the caller from the raw Authorization header
// value. Resolution never fails a request.
type IdentityResolver interface {
	Resolve(authHeader string) identity.Identity
}

// resolveIdentity attaches the callers resolved Identity to every request.
// There is no failure path; a bad credential simply resolves to anonymous.
func resolveIdentity(resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			id := resolver.Resolve(ec.Request().Header.Get(echo.HeaderAuthorization))
			util.SetIdentity(ec, id)

			return next(ec)
		}
	}
}
