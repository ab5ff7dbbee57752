package origindefense

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAllowed(t *testing.T) {
	a, err := New(quiet(), []string{"127.0.0.1", "10.0.0.0/8", "2001:db8::/32"}, "")
	require.NoError(t, err)
	assert.True(t, a.Allowed(net.ParseIP("127.0.0.1")))
	assert.True(t, a.Allowed(net.ParseIP("10.20.30.40")))
	assert.True(t, a.Allowed(net.ParseIP("2001:db8::1")))
	assert.False(t, a.Allowed(net.ParseIP("192.168.1.1")))
	assert.False(t, a.Allowed(nil))
}

func TestDuplicateCIDRsCollapse(t *testing.T) {
	a, err := New(quiet(), []string{"192.168.0.0/16", " 192.168.0.0/16 "}, "")
	require.NoError(t, err)
	assert.Len(t, a.allowCIDRs, 1)
	assert.True(t, a.Allowed(net.ParseIP("192.168.1.1")))
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New(quiet(), []string{"10.0.0.0/33"}, "")
	assert.Error(t, err)
	_, err = New(quiet(), []string{"not-an-ip"}, "")
	assert.Error(t, err)
	a, err := New(quiet(), nil, "")
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestBlankEntriesLeaveRouteOpen(t *testing.T) {
	a, err := New(quiet(), []string{" ", ""}, "")
	require.NoError(t, err)
	assert.Nil(t, a)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", a.Gin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGinHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(quiet(), []string{"10.0.0.0/8"}, "X-Real-IP")
	require.NoError(t, err)
	r := gin.New()
	r.GET("/admin", a.Gin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req.Header.Set("X-Real-IP", "10.1.2.3")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var open *Allowlist
	r2 := gin.New()
	r2.GET("/admin", open.Gin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
