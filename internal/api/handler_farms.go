package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListFarms handles GET /api/farms.
func (h *Handler) ListFarms(c *gin.Context) {
	farms, err := h.store.ListFarms(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, farms)
}

// GetFarm handles GET /api/farms/:farm_id.
func (h *Handler) GetFarm(c *gin.Context) {
	farm, err := h.store.GetFarm(c.Request.Context(), c.Param("farm_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, farm)
}

// ListFields handles GET /api/fields.
func (h *Handler) ListFields(c *gin.Context) {
	fields, err := h.store.ListFields(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// GetFieldSensors handles GET /api/fields/:field_id/sensors.
func (h *Handler) GetFieldSensors(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.store.GetField(ctx, c.Param("field_id")); err != nil {
		h.abortError(c, err)
		return
	}
	sensors, err := h.store.SensorsByField(ctx, c.Param("field_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, sensors)
}

// GetSensor handles GET /api/sensors/:sensor_id.
func (h *Handler) GetSensor(c *gin.Context) {
	sensor, err := h.store.GetSensor(c.Request.Context(), c.Param("sensor_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, sensor)
}

// GetFieldActuators handles GET /api/fields/:field_id/actuators.
func (h *Handler) GetFieldActuators(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.store.GetField(ctx, c.Param("field_id")); err != nil {
		h.abortError(c, err)
		return
	}
	actuators, err := h.store.ActuatorsByField(ctx, c.Param("field_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, actuators)
}

// GetSummary handles GET /api/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.store.Summary(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
