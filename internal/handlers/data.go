package handlers

import (
	"errors"
	"net/http"
	"strings"

	"helmbridge/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      List live data
// @Description  Returns every known (path, source) data point.
// @Tags         data
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, points"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/data [get]
// @Security     BearerAuth
func (h *Handler) listData(c *gin.Context) {
	points := h.services.Monitoring.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"count":  len(points),
		"points": points,
	})
}

// @Summary      Get one data point
// @Description  Returns the latest value for a dotted path, with unit conversion for numeric paths. ?units=metric|imperial|nautical overrides the configured default.
// @Tags         data
// @Produce      json
// @Param        path   path   string  true   "Dotted data path"  example(navigation.speedThroughWater)
// @Param        units  query  string  false  "Unit system"  Enums(metric,imperial,nautical)
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/data/{path} [get]
// @Security     BearerAuth
func (h *Handler) getData(c *gin.Context) {
	ctx := c.Request.Context()

	// Gin's wildcard keeps the leading slash.
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing data path"})
		return
	}

	dv, err := h.services.Monitoring.Get(ctx, path, c.Query("units"))
	if err != nil {
		if errors.Is(err, service.ErrPathNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no value for path " + path})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetValue, "data_get_failed", err, "path", path)
		return
	}
	c.JSON(http.StatusOK, dv)
}
