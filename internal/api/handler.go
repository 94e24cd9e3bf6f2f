// Package api exposes the farm control operations as a closed set of
// typed HTTP routes.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"farm-control-backend/internal/engine"
	"farm-control-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store  store.Store
	engine *engine.Engine
	log    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, eng *engine.Engine, log *zap.Logger) *Handler {
	return &Handler{
		store:  s,
		engine: eng,
		log:    log,
	}
}

// abortError maps domain errors onto HTTP status codes.
func (h *Handler) abortError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConstraintViolation):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
