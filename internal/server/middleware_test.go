// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"codeberg.org/oliverandrich/nanobanana/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(&config.SessionConfig{CookieName: "nb_session", MaxAge: 3600}, false)
	require.NoError(t, err)
	return mgr
}

func TestRequireAuth_NoSession(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/sessions", nil), rec)

	err := requireAuth(newTestManager(t))(okHandler)(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication required")
}

func TestRequireAuth_ValidSession(t *testing.T) {
	mgr := newTestManager(t)

	e := echo.New()
	loginRec := httptest.NewRecorder()
	loginCtx := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), loginRec)
	require.NoError(t, mgr.Login(loginCtx, session.User{ID: 1, Username: "testuser"}))
	cookies := loginRec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := requireAuth(mgr)(okHandler)(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdmin_NonAdminRejected(t *testing.T) {
	mgr := newTestManager(t)

	e := echo.New()
	loginRec := httptest.NewRecorder()
	loginCtx := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), loginRec)
	require.NoError(t, mgr.Login(loginCtx, session.User{ID: 1, Username: "testuser"}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(loginRec.Result().Cookies()[0])
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := requireAuth(mgr)(requireAdmin()(okHandler))(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAdmin_AdminAllowed(t *testing.T) {
	mgr := newTestManager(t)

	e := echo.New()
	loginRec := httptest.NewRecorder()
	loginCtx := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), loginRec)
	require.NoError(t, mgr.Login(loginCtx, session.User{ID: 1, Username: "admin", IsAdmin: true}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(loginRec.Result().Cookies()[0])
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := requireAuth(mgr)(requireAdmin()(okHandler))(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
