package engine

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"farm-control-backend/internal/consumption"
	"farm-control-backend/internal/metrics"
	"farm-control-backend/internal/model"
	"farm-control-backend/internal/store"
)

// UpdateResourceLevel sets a resource's current level explicitly
// (refill, manual correction). The new level is not clamped to
// capacity: an overfilled tank reports percentage_full over 100 rather
// than being silently capped. Only consumption accounting floors at
// zero.
func (e *Engine) UpdateResourceLevel(ctx context.Context, resourceID string, newLevel float64) (*LevelResult, error) {
	var (
		resource model.Resource
		original model.Quantity
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&resource, "id = ?", resourceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("resource %s: %w", resourceID, store.ErrNotFound)
			}
			return err
		}
		original = resource.CurrentLevel
		resource.CurrentLevel = model.Quantity{Value: newLevel, Unit: resource.CurrentLevel.Unit}
		if err := tx.Model(&resource).Select("current_level").Updates(&resource).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, err)
	}

	synced := true
	pct := consumption.Round(consumption.PercentFull(newLevel, resource.Capacity.Value), 1)
	if err := e.gateway.PushTelemetry(ctx, resource.ThingsboardID, map[string]any{
		"current_level":   newLevel,
		"percentage_full": pct,
	}); err != nil {
		synced = false
		metrics.TelemetrySyncFailures.Inc()
	}

	return &LevelResult{
		Resource: resource,
		LevelChange: LevelChange{
			From:              original,
			To:                resource.CurrentLevel,
			ThingsboardSynced: synced,
		},
	}, nil
}
