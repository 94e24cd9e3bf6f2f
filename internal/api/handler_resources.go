package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetResourceLevels handles GET /api/resources/levels.
func (h *Handler) GetResourceLevels(c *gin.Context) {
	levels, err := h.store.ResourceLevels(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, levels)
}

type levelRequest struct {
	NewLevel *float64 `json:"new_level" binding:"required"`
}

// UpdateResourceLevel handles PUT /api/resources/:resource_id/level.
func (h *Handler) UpdateResourceLevel(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "new_level is required"})
		return
	}
	if *req.NewLevel < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "new_level must not be negative"})
		return
	}

	result, err := h.engine.UpdateResourceLevel(c.Request.Context(), c.Param("resource_id"), *req.NewLevel)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetConsumptionRate handles GET /api/resources/:resource_id/consumption.
func (h *Handler) GetConsumptionRate(c *gin.Context) {
	rate, err := h.store.ConsumptionRate(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}
