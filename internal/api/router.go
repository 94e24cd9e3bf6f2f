package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"farm-control-backend/config"
	"farm-control-backend/internal/engine"
	"farm-control-backend/internal/mw"
	"farm-control-backend/internal/store"
)

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, eng *engine.Engine, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))

	handler := NewHandler(s, eng, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Responses for the read endpoints are cached briefly; control
	// mutations invalidate nothing, so the TTL stays short.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/actuators/:actuator_id/status", handler.ControlActuator)
		api.GET("/actuators/active", handler.GetActiveActuators)
		api.GET("/actuators/:actuator_id", handler.GetActuator)

		api.POST("/fields/:field_id/actuators/status", handler.BatchControlActuators)
		api.POST("/irrigation", handler.Irrigation)
		api.POST("/emergency-stop", handler.EmergencyStop)
		api.GET("/operations/active", handler.GetActiveOperations)

		api.GET("/resources/levels", handler.GetResourceLevels)
		api.PUT("/resources/:resource_id/level", handler.UpdateResourceLevel)
		api.GET("/resources/:resource_id/consumption", handler.GetConsumptionRate)

		api.GET("/farms", caching, handler.ListFarms)
		api.GET("/farms/:farm_id", caching, handler.GetFarm)
		api.GET("/fields", caching, handler.ListFields)
		api.GET("/fields/:field_id/sensors", caching, handler.GetFieldSensors)
		api.GET("/sensors/:sensor_id", caching, handler.GetSensor)
		api.GET("/fields/:field_id/actuators", caching, handler.GetFieldActuators)
		api.GET("/summary", caching, handler.GetSummary)

		api.POST("/associations/pump-valve", handler.LinkPumpValve)
		api.POST("/associations/sensor-field", handler.AssignSensorField)
		api.POST("/associations/field-resource", handler.LinkFieldResource)
		api.POST("/associations/actuator-resource", handler.LinkActuatorResource)

		api.POST("/sync/devices", handler.SyncDevices)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
