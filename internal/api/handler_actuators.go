package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"farm-control-backend/internal/model"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ControlActuator handles POST /api/actuators/:actuator_id/status.
func (h *Handler) ControlActuator(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	result, err := h.engine.SetActuatorStatus(c.Request.Context(), c.Param("actuator_id"), req.Status)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetActuator handles GET /api/actuators/:actuator_id.
func (h *Handler) GetActuator(c *gin.Context) {
	actuator, err := h.store.GetActuator(c.Request.Context(), c.Param("actuator_id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, actuator)
}

// GetActiveActuators handles GET /api/actuators/active.
func (h *Handler) GetActiveActuators(c *gin.Context) {
	actuators, err := h.store.ActuatorsByStatus(c.Request.Context(), model.StatusOpen)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(actuators), "actuators": actuators})
}

type batchStatusRequest struct {
	ActuatorType string `json:"actuator_type"`
	Status       string `json:"status" binding:"required"`
}

// BatchControlActuators handles POST /api/fields/:field_id/actuators/status.
// Every matching actuator is attempted independently; per-actuator
// outcomes are reported side by side.
func (h *Handler) BatchControlActuators(c *gin.Context) {
	var req batchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	ctx := c.Request.Context()
	fieldID := c.Param("field_id")
	if _, err := h.store.GetField(ctx, fieldID); err != nil {
		h.abortError(c, err)
		return
	}
	actuators, err := h.store.ActuatorsByField(ctx, fieldID)
	if err != nil {
		h.abortError(c, err)
		return
	}

	// "all" and an omitted actuator_type both select every actuator.
	matchAll := req.ActuatorType == "" || req.ActuatorType == "all"

	var ids []string
	for _, a := range actuators {
		if matchAll || a.Type == req.ActuatorType {
			ids = append(ids, a.ID)
		}
	}
	results := h.engine.BatchSetStatus(ctx, ids, req.Status)
	c.JSON(http.StatusOK, gin.H{"field_id": fieldID, "results": results})
}

type irrigationRequest struct {
	FieldName string `json:"field_name" binding:"required"`
	Action    string `json:"action" binding:"required"`
}

// Irrigation handles POST /api/irrigation: start or stop every water
// valve on the named field.
func (h *Handler) Irrigation(c *gin.Context) {
	var req irrigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "field_name and action are required"})
		return
	}

	var status string
	switch req.Action {
	case "start":
		status = model.StatusOpen
	case "stop":
		status = model.StatusClose
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "action must be \"start\" or \"stop\""})
		return
	}

	ctx := c.Request.Context()
	field, err := h.store.GetFieldByName(ctx, req.FieldName)
	if err != nil {
		h.abortError(c, err)
		return
	}

	var ids []string
	for _, a := range field.Actuators {
		if a.Type == model.TypeWaterValves {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "no water valves on field " + field.Name,
		})
		return
	}

	results := h.engine.BatchSetStatus(ctx, ids, status)
	c.JSON(http.StatusOK, gin.H{
		"field":   field.Name,
		"action":  req.Action,
		"results": results,
	})
}

// EmergencyStop handles POST /api/emergency-stop.
func (h *Handler) EmergencyStop(c *gin.Context) {
	results, err := h.engine.EmergencyStopAll(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": len(results), "results": results})
}

// GetActiveOperations handles GET /api/operations/active.
func (h *Handler) GetActiveOperations(c *gin.Context) {
	ops := h.engine.ActiveOperations()
	c.JSON(http.StatusOK, gin.H{"count": len(ops), "operations": ops})
}
