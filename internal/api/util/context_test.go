package util_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ankyy/musicbox/internal/api/util"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newContext() echo.Context {
	ec := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return ec.NewContext(req, httptest.NewRecorder())
}

func okHandler(ec echo.Context) error {
	return ec.NoContent(http.StatusOK)
}

func Test_IdentityFromContext_DefaultsToAnonymous(t *testing.T) {
	t.Parallel()

	id := util.IdentityFromContext(newContext())
	assert.False(t, id.Authenticated)
}

func Test_IdentityRoundTrip(t *testing.T) {
	t.Parallel()

	ec := newContext()
	expected := identity.Identity{Authenticated: true, UserID: uuid.New(), Role: identity.RoleAdmin}
	util.SetIdentity(ec, expected)

	assert.Equal(t, expected, util.IdentityFromContext(ec))
}

func Test_RequireAuthenticated(t *testing.T) {
	t.Parallel()

	anonymous := newContext()
	err := util.RequireAuthenticated(okHandler)(anonymous)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)

	authed := newContext()
	util.SetIdentity(authed, identity.Identity{Authenticated: true, UserID: uuid.New(), Role: identity.RoleMember})
	assert.Nil(t, util.RequireAuthenticated(okHandler)(authed))
}

func Test_RequireAdmin(t *testing.T) {
	t.Parallel()

	anonymous := newContext()
	err := util.RequireAdmin(okHandler)(anonymous)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)

	member := newContext()
	util.SetIdentity(member, identity.Identity{Authenticated: true, UserID: uuid.New(), Role: identity.RoleMember})
	err = util.RequireAdmin(okHandler)(member)
	httpErr, ok = err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)

	admin := newContext()
	util.SetIdentity(admin, identity.Identity{Authenticated: true, UserID: uuid.New(), Role: identity.RoleAdmin})
	assert.Nil(t, util.RequireAdmin(okHandler)(admin))
}
