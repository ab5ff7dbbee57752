package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

func (h *handler) municipality(c *gin.Context) {
	p, src, ok := h.coordinate(c)
	if !ok {
		return
	}
	resp := gin.H{"municipality": h.Registry.Info(p), "coordinate": p, "source": src}
	if category := c.Query("category"); category != "" {
		resp["recipients"] = h.Registry.DepartmentEmails(p, category)
	}
	c.JSON(http.StatusOK, resp)
}

type municipalitySummary struct {
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	Categories []string `json:"categories"`
}

// municipalities lists the registry in precedence order.
func (h *handler) municipalities(c *gin.Context) {
	all := h.Registry.All()
	out := make([]municipalitySummary, 0, len(all))
	for _, m := range all {
		cats := make([]string, 0, len(m.DepartmentRouting))
		for k := range m.DepartmentRouting {
			cats = append(cats, k)
		}
		sort.Strings(cats)
		out = append(out, municipalitySummary{Name: m.Name, Code: m.Code, Categories: cats})
	}
	c.JSON(http.StatusOK, gin.H{"municipalities": out})
}
