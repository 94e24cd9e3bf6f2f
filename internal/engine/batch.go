package engine

import (
	"context"

	"go.uber.org/zap"

	"farm-control-backend/internal/model"
)

// BatchSetStatus applies the transition to each actuator
// independently. There is no atomicity across the batch: one failure
// does not block the others, and partial completion is reported per
// id.
func (e *Engine) BatchSetStatus(ctx context.Context, actuatorIDs []string, status string) map[string]BatchEntry {
	results := make(map[string]BatchEntry, len(actuatorIDs))
	for _, id := range actuatorIDs {
		result, err := e.SetActuatorStatus(ctx, id, status)
		if err != nil {
			results[id] = BatchEntry{Error: err.Error()}
			continue
		}
		results[id] = BatchEntry{Result: result}
	}
	return results
}

// EmergencyStopAll closes every currently open actuator through the
// single-actuator path, so consumption accounting and pump cascading
// apply as usual, then clears the display-only active-operations map.
func (e *Engine) EmergencyStopAll(ctx context.Context) (map[string]BatchEntry, error) {
	var ids []string
	if err := e.db.WithContext(ctx).Model(&model.Actuator{}).
		Where("status = ?", model.StatusOpen).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	e.log.Warn("emergency stop requested", zap.Int("open_actuators", len(ids)))
	results := e.BatchSetStatus(ctx, ids, model.StatusClose)
	e.activeOps.Flush()
	return results, nil
}
