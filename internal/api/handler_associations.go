package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type pairRequest struct {
	A string
	B string
}

// bindPair reads a two-field association body by the given JSON keys.
func bindPair(c *gin.Context, aKey, bKey string) (pairRequest, bool) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return pairRequest{}, false
	}
	req := pairRequest{A: body[aKey], B: body[bKey]}
	if req.A == "" || req.B == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": aKey + " and " + bKey + " are required",
		})
		return pairRequest{}, false
	}
	return req, true
}

// LinkPumpValve handles POST /api/associations/pump-valve.
func (h *Handler) LinkPumpValve(c *gin.Context) {
	req, ok := bindPair(c, "pump_id", "valve_id")
	if !ok {
		return
	}
	if err := h.store.LinkPumpValve(c.Request.Context(), req.A, req.B); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pump_id": req.A, "valve_id": req.B, "linked": true})
}

// AssignSensorField handles POST /api/associations/sensor-field.
func (h *Handler) AssignSensorField(c *gin.Context) {
	req, ok := bindPair(c, "sensor_id", "field_id")
	if !ok {
		return
	}
	if err := h.store.AssignSensorField(c.Request.Context(), req.A, req.B); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensor_id": req.A, "field_id": req.B, "assigned": true})
}

// LinkFieldResource handles POST /api/associations/field-resource.
func (h *Handler) LinkFieldResource(c *gin.Context) {
	req, ok := bindPair(c, "field_id", "resource_id")
	if !ok {
		return
	}
	if err := h.store.LinkFieldResource(c.Request.Context(), req.A, req.B); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field_id": req.A, "resource_id": req.B, "linked": true})
}

// LinkActuatorResource handles POST /api/associations/actuator-resource.
func (h *Handler) LinkActuatorResource(c *gin.Context) {
	req, ok := bindPair(c, "actuator_id", "resource_id")
	if !ok {
		return
	}
	if err := h.store.LinkActuatorResource(c.Request.Context(), req.A, req.B); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actuator_id": req.A, "resource_id": req.B, "linked": true})
}

// SyncDevices handles POST /api/sync/devices.
func (h *Handler) SyncDevices(c *gin.Context) {
	report, err := h.engine.SyncDevices(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
