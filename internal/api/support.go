package api

import (
	"net/http"
	"strings"

	"civic-api/internal/middleware"

	"github.com/gin-gonic/gin"
)

// deviceID prefers the X-Device-ID header, then a JSON body or query deviceId.
func deviceID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(middleware.DeviceHeader)); id != "" {
		return id
	}
	if id := c.Query("deviceId"); id != "" {
		return id
	}
	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if c.Request.ContentLength != 0 && c.ShouldBindJSON(&body) == nil {
		return body.DeviceID
	}
	return ""
}

func (h *handler) addSupport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	it, err := h.Support.Support(c.Request.Context(), id, deviceID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"supported": true, "issue": it})
}

func (h *handler) revokeSupport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	it, err := h.Support.Revoke(c.Request.Context(), id, deviceID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"supported": false, "issue": it})
}

func (h *handler) supportStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	supported, err := h.Support.IsSupported(c.Request.Context(), id, deviceID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"supported": supported})
}
