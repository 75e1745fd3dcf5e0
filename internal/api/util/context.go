package util

import (
	"net/http"

	"github.com/ankyy/musicbox/internal/admission"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/labstack/echo/v4"
)

const (
	identityContextKey  = "musicbox.identity"
	admissionContextKey = "musicbox.admission"
)

func SetIdentity(ec echo.Context, id identity.Identity) {
	ec.Set(identityContextKey, id)
}

// IdentityFromContext returns the resolved identity for this request. A
// request that never passed through the identity middleware is anonymous.
func IdentityFromContext(ec echo.Context) identity.Identity {
	if id, ok := ec.Get(identityContextKey).(identity.Identity); ok {
		return id
	}

	return identity.Anonymous()
}

func SetAdmission(ec echo.Context, decision admission.Decision) {
	ec.Set(admissionContextKey, decision)
}

func AdmissionFromContext(ec echo.Context) admission.Decision {
	if decision, ok := ec.Get(admissionContextKey).(admission.Decision); ok {
		return decision
	}

	return admission.Decision{}
}

// RequireAuthenticated guards a route group so that anonymous callers
// receive a 401 before the handler runs.
func RequireAuthenticated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ec echo.Context) error {
		if !IdentityFromContext(ec).Authenticated {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
		}

		return next(ec)
	}
}

// RequireAdmin guards a route so only authenticated admins may proceed.
// Anonymous callers see a 401; authenticated non-admins a 403.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ec echo.Context) error {
		id := IdentityFromContext(ec)
		if !id.Authenticated {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
		}
		if !id.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "Administrator role required")
		}

		return next(ec)
	}
}
