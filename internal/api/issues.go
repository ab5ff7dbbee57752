package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"civic-api/internal/geo"
	"civic-api/internal/iplocate"
	"civic-api/internal/issue"
	"civic-api/internal/metrics"
	"civic-api/internal/middleware"
	"civic-api/internal/submit"

	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "issue id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *handler) createIssue(c *gin.Context) {
	var in issue.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "malformed JSON body")
		return
	}
	if err := issue.ValidateInput(in); err != nil {
		h.writeError(c, err)
		return
	}
	sender := strings.TrimSpace(c.GetHeader(middleware.DeviceHeader))
	if sender == "" {
		sender = "ip:" + iplocate.ClientIP(c.Request)
	}
	ctx := c.Request.Context()
	resv, first, err := h.Deduper.Reserve(ctx, submit.Fingerprint(sender, in))
	if err != nil {
		h.Logger.Warn("dedupe_redis_error", "err", err)
	} else if !first {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate submission", "kind": "conflict"})
		return
	}
	res, err := h.Submit.Submit(ctx, in)
	if err != nil {
		if rerr := h.Deduper.Release(context.WithoutCancel(ctx), resv); rerr != nil {
			h.Logger.Warn("dedupe_release_error", "err", rerr)
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handler) listIssues(c *gin.Context) {
	all, err := h.Repo.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if s := c.Query("status"); s != "" {
		status := issue.Status(s)
		if !status.Valid() {
			badRequest(c, "unknown status")
			return
		}
		filtered := all[:0]
		for _, it := range all {
			if it.Status == status {
				filtered = append(filtered, it)
			}
		}
		all = filtered
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		if n < len(all) {
			all = all[:n]
		}
	}
	c.JSON(http.StatusOK, gin.H{"issues": all, "count": len(all)})
}

func (h *handler) getIssue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	it, err := h.Repo.GetByID(c.Request.Context(), id)
	h.respondIssue(c, it, err)
}

func (h *handler) getByReportID(c *gin.Context) {
	it, err := h.Repo.GetByReportID(c.Request.Context(), strings.ToUpper(c.Param("reportId")))
	h.respondIssue(c, it, err)
}

func (h *handler) respondIssue(c *gin.Context, it *issue.Issue, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	if it == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "issue not found", "kind": "not_found"})
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *handler) updateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body struct {
		Status issue.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed JSON body")
		return
	}
	it, err := h.Repo.UpdateStatus(c.Request.Context(), id, body.Status)
	if err == nil && it != nil {
		h.Logger.Info("issue_status_updated", "issue_id", id, "status", it.Status)
	}
	h.respondIssue(c, it, err)
}

// coordinate reads lat/lng query parameters, falling back to the caller's
// approximate location. ok is false once a response has been written.
func (h *handler) coordinate(c *gin.Context) (geo.Coordinate, iplocate.Source, bool) {
	latS, lngS := c.Query("lat"), c.Query("lng")
	if latS == "" && lngS == "" {
		p, src := h.Locator.FromRequest(c.Request)
		if src == iplocate.SourceNone {
			badRequest(c, "lat and lng are required")
			return geo.Coordinate{}, src, false
		}
		return p, src, true
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil {
		badRequest(c, "lat and lng must be numbers")
		return geo.Coordinate{}, iplocate.SourceNone, false
	}
	p := geo.Coordinate{Latitude: lat, Longitude: lng}
	if err := p.Validate(); err != nil {
		h.writeError(c, err)
		return geo.Coordinate{}, iplocate.SourceNone, false
	}
	return p, iplocate.SourceClient, true
}

func (h *handler) nearby(c *gin.Context) {
	center, src, ok := h.coordinate(c)
	if !ok {
		return
	}
	radius := issue.DefaultNearbyRadiusKm
	if s := c.Query("radius"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			badRequest(c, "radius must be a number of kilometres")
			return
		}
		radius = r
	}
	all, err := h.Repo.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	metrics.NearbyQueriesTotal.Inc()
	found := issue.FindNearby(all, center, radius)
	c.JSON(http.StatusOK, gin.H{
		"center":   center,
		"source":   src,
		"radiusKm": radius,
		"issues":   found,
		"count":    len(found),
	})
}
