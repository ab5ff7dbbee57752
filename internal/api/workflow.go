package api

import (
	"io"
	"net/http"

	"civic-api/internal/relay"

	"github.com/gin-gonic/gin"
)

const maxRelayBody = 1 << 20

func (h *handler) workflow(c *gin.Context) {
	if h.Relay == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "workflow relay not configured"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRelayBody+1))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	if len(body) > maxRelayBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}
	resp, err := h.Relay.Forward(c.Request.Context(), relay.Request{
		Method:  c.Request.Method,
		Path:    c.Param("path"),
		Query:   c.Request.URL.Query(),
		Body:    body,
		Headers: c.Request.Header,
	})
	if err != nil {
		h.Logger.Warn("workflow_relay_error", "path", c.Param("path"), "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "workflow engine unavailable"})
		return
	}
	for k, vs := range resp.Headers {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
}
