package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"farm-control-backend/internal/consumption"
	"farm-control-backend/internal/model"
	"farm-control-backend/internal/thingsboard"
)

// SyncDevices provisions every sensor, actuator and resource as a
// device on the telemetry platform, stores the assigned platform ids,
// and pushes each device's current state. Entities that fail to
// provision are reported and skipped; the sync continues.
func (e *Engine) SyncDevices(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{}

	var sensors []model.Sensor
	if err := e.db.WithContext(ctx).Find(&sensors).Error; err != nil {
		return nil, err
	}
	for _, sensor := range sensors {
		entry := e.syncDevice(ctx, sensor.ID, sensor.ThingsboardID,
			thingsboard.DeviceDefinition{
				Name:  fmt.Sprintf("Sensor-%s", sensor.ID),
				Type:  sensor.Type,
				Label: fmt.Sprintf("%s %s", labelize(sensor.Type), sensor.ID),
				AdditionalInfo: map[string]any{
					"description": fmt.Sprintf("%s sensor for field %s", sensor.Type, sensor.FieldID),
					"unit":        sensor.Unit,
				},
			},
			&model.Sensor{ID: sensor.ID},
			map[string]any{"status": sensor.Status})
		report.Sensors = append(report.Sensors, entry)
	}

	var actuators []model.Actuator
	if err := e.db.WithContext(ctx).Find(&actuators).Error; err != nil {
		return nil, err
	}
	for _, actuator := range actuators {
		entry := e.syncDevice(ctx, actuator.ID, actuator.ThingsboardID,
			thingsboard.DeviceDefinition{
				Name:  fmt.Sprintf("Actuator-%s", actuator.ID),
				Type:  actuator.Type,
				Label: fmt.Sprintf("%s %s", labelize(actuator.Type), actuator.ID),
				AdditionalInfo: map[string]any{
					"description":    fmt.Sprintf("%s %s", actuator.Subtype, actuator.Type),
					"operation_type": actuator.OperationType,
				},
			},
			&model.Actuator{ID: actuator.ID},
			map[string]any{
				"deviceState": thingsboard.DeviceState(actuator.Status),
				"base_speed":  actuator.BaseSpeed.Value,
			})
		report.Actuators = append(report.Actuators, entry)
	}

	var resources []model.Resource
	if err := e.db.WithContext(ctx).Find(&resources).Error; err != nil {
		return nil, err
	}
	for _, resource := range resources {
		entry := e.syncDevice(ctx, resource.ID, resource.ThingsboardID,
			thingsboard.DeviceDefinition{
				Name:  fmt.Sprintf("Resource-%s", resource.ID),
				Type:  "resource",
				Label: fmt.Sprintf("%s Tank", labelize(resource.Name)),
				AdditionalInfo: map[string]any{
					"description": fmt.Sprintf("%s storage tank", resource.Content),
					"capacity":    resource.Capacity.Value,
				},
			},
			&model.Resource{ID: resource.ID},
			map[string]any{
				"current_level":   resource.CurrentLevel.Value,
				"percentage_full": consumption.PercentFull(resource.CurrentLevel.Value, resource.Capacity.Value),
			})
		report.Resources = append(report.Resources, entry)
	}

	return report, nil
}

// syncDevice provisions one entity and pushes its initial telemetry.
// record must carry the entity's primary key so the assigned platform
// id can be stored.
func (e *Engine) syncDevice(ctx context.Context, entityID, currentTBID string, def thingsboard.DeviceDefinition, record any, initial map[string]any) SyncEntry {
	tbID, err := e.gateway.EnsureDevice(ctx, def)
	if err != nil {
		e.log.Warn("device provisioning failed",
			zap.String("entity_id", entityID), zap.Error(err))
		return SyncEntry{ID: entityID, ThingsboardID: currentTBID, Status: "failed"}
	}

	if tbID != currentTBID {
		if err := e.db.WithContext(ctx).Model(record).
			Update("thingsboard_id", tbID).Error; err != nil {
			e.log.Warn("failed to store platform id",
				zap.String("entity_id", entityID), zap.Error(err))
			return SyncEntry{ID: entityID, ThingsboardID: tbID, Status: "failed"}
		}
	}

	if err := e.gateway.PushTelemetry(ctx, tbID, initial); err != nil {
		return SyncEntry{ID: entityID, ThingsboardID: tbID, Status: "provisioned, telemetry failed"}
	}
	return SyncEntry{ID: entityID, ThingsboardID: tbID, Status: "synced"}
}

// labelize turns a snake_case type label into a display label
// ("soil_moisture" -> "Soil Moisture").
func labelize(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
