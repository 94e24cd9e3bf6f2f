package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"farm-control-backend/internal/metrics"
	"farm-control-backend/internal/model"
	"farm-control-backend/internal/telemetry"
)

// ReconcileOpenActuators applies consumption accounting to every
// actuator currently open with a set last_state_change, then resets
// that timestamp to now without touching the status. Run periodically,
// it bounds unaccounted consumption drift to the sweep interval.
//
// Each actuator is processed in its own transaction under its own row
// lock, so the sweep interleaves safely with interactive status
// changes on other actuators. With zero elapsed time it consumes
// nothing, so back-to-back sweeps are idempotent.
func (e *Engine) ReconcileOpenActuators(ctx context.Context) (*ReconcileReport, error) {
	now := e.now()
	report := &ReconcileReport{Timestamp: now, ResourceUpdates: []ResourceDelta{}}

	var ids []string
	if err := e.db.WithContext(ctx).Model(&model.Actuator{}).
		Where("status = ? AND last_state_change IS NOT NULL", model.StatusOpen).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	for _, id := range ids {
		var pushes []resourcePush
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var actuator model.Actuator
			if err := lockForUpdate(tx).Preload("Resources").
				First(&actuator, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			// The actuator may have been closed between the listing
			// and the lock; its close already accounted the interval.
			if actuator.Status != model.StatusOpen || actuator.LastStateChange == nil {
				return nil
			}

			elapsed := now.Sub(*actuator.LastStateChange)
			deltas, resourcePushes, err := e.applyConsumption(tx, &actuator, elapsed)
			if err != nil {
				return err
			}
			if len(deltas) == 0 {
				return nil
			}

			if err := tx.Model(&actuator).Update("last_state_change", now).Error; err != nil {
				return err
			}
			report.ActuatorsUpdated++
			report.ResourceUpdates = append(report.ResourceUpdates, deltas...)
			pushes = resourcePushes
			return nil
		})
		if err != nil {
			e.log.Error("reconcile failed for actuator",
				zap.String("actuator_id", id), zap.Error(err))
			continue
		}

		for _, push := range pushes {
			if e.dispatcher != nil {
				e.dispatcher.Dispatch(telemetry.Job{DeviceID: push.ThingsboardID, Payload: push.Payload})
				continue
			}
			if err := e.gateway.PushTelemetry(ctx, push.ThingsboardID, push.Payload); err != nil {
				metrics.TelemetrySyncFailures.Inc()
			}
		}
	}

	metrics.ReconcileCycles.Inc()
	e.log.Info("reconciliation sweep complete",
		zap.Time("timestamp", now),
		zap.Int("actuators_updated", report.ActuatorsUpdated),
		zap.Int("resource_updates", len(report.ResourceUpdates)))
	return report, nil
}
