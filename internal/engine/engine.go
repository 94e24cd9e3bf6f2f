// Package engine is the actuator control engine: it mutates device
// state transactionally, derives resource consumption from elapsed
// activation time, cascades valve changes onto shared pumps, and keeps
// the remote telemetry platform informed on a best-effort basis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"farm-control-backend/internal/cascade"
	"farm-control-backend/internal/consumption"
	"farm-control-backend/internal/metrics"
	"farm-control-backend/internal/model"
	"farm-control-backend/internal/store"
	"farm-control-backend/internal/telemetry"
	"farm-control-backend/internal/thingsboard"
)

// Dispatcher queues asynchronous telemetry pushes. The reconciliation
// sweep uses it so sweep latency never depends on the platform.
type Dispatcher interface {
	Dispatch(telemetry.Job)
}

// Engine orchestrates status changes over the entity store.
type Engine struct {
	db         *gorm.DB
	gateway    thingsboard.Gateway
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time

	// activeOps is the ephemeral, display-only map of in-flight
	// actuator activity. Entries are added on open, removed on close,
	// and cleared wholesale by an emergency stop.
	activeOps *cache.Cache
}

// New creates a control engine over the given database and gateway.
// dispatcher may be nil, in which case reconciliation pushes telemetry
// synchronously through the gateway.
func New(db *gorm.DB, gateway thingsboard.Gateway, dispatcher Dispatcher, log *zap.Logger) *Engine {
	return &Engine{
		db:         db,
		gateway:    gateway,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
		activeOps:  cache.New(cache.NoExpiration, 0),
	}
}

// WithClock overrides the engine's time source. Tests use it to drive
// elapsed-activation accounting deterministically.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// pumpChange records a cascaded pump update for post-commit telemetry.
type pumpChange struct {
	ID            string
	ThingsboardID string
	Status        string
}

// resourcePush is a pending post-commit resource-level telemetry push.
type resourcePush struct {
	ThingsboardID string
	Payload       map[string]any
}

// SetActuatorStatus validates and applies a status transition under an
// exclusive row lock, accounts resource consumption for the activation
// interval that just ended, cascades valve changes to linked pumps,
// and verifies the persisted outcome in a fresh transaction.
//
// A transition into "changing state" deliberately leaves
// last_state_change untouched: a later close then accounts for the
// full open interval spanning the intermediate state.
func (e *Engine) SetActuatorStatus(ctx context.Context, actuatorID, requested string) (*Result, error) {
	if !model.ValidStatus(requested) {
		return nil, fmt.Errorf("status %q: %w", requested, ErrInvalidStatus)
	}

	now := e.now()
	e.log.Info("updating actuator status",
		zap.String("actuator_id", actuatorID), zap.String("status", requested))

	var (
		actuator    model.Actuator
		original    string
		deltas      []ResourceDelta
		pumpChanges []pumpChange
		pushes      []resourcePush
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Preload("Resources").
			First(&actuator, "id = ?", actuatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("actuator %s: %w", actuatorID, store.ErrNotFound)
			}
			return err
		}

		original = actuator.Status

		// Account the activation interval that is ending now.
		if original == model.StatusOpen && requested == model.StatusClose && actuator.LastStateChange != nil {
			elapsed := now.Sub(*actuator.LastStateChange)
			var err error
			deltas, pushes, err = e.applyConsumption(tx, &actuator, elapsed)
			if err != nil {
				return err
			}
		}

		updates := map[string]any{"status": requested}
		if requested == model.StatusOpen || requested == model.StatusClose {
			updates["last_state_change"] = now
		}
		if err := tx.Model(&actuator).Updates(updates).Error; err != nil {
			return err
		}

		if model.IsValveType(actuator.Type) {
			var err error
			pumpChanges, err = e.cascadeToPumps(tx, &actuator, requested)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		e.log.Error("failed to update actuator status",
			zap.String("actuator_id", actuatorID), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, err)
	}

	metrics.StatusChanges.WithLabelValues(requested).Inc()
	e.trackOperation(actuatorID, actuator.FieldID, requested)

	// Local control correctness never depends on remote availability:
	// pushes happen strictly after commit and only flip a flag.
	synced := e.pushStatusTelemetry(ctx, actuator.ThingsboardID, requested, pumpChanges, pushes)

	// Verify the persisted status with a fresh read.
	var verified model.Actuator
	verifyErr := e.db.WithContext(ctx).Preload("Resources").
		First(&verified, "id = ?", actuatorID).Error
	ok := verifyErr == nil && verified.Status == requested
	if !ok {
		e.log.Warn("status change verification failed",
			zap.String("actuator_id", actuatorID),
			zap.String("requested", requested),
			zap.String("stored", verified.Status))
	}

	return &Result{
		Actuator: verified,
		StatusChange: StatusChange{
			From:              original,
			To:                requested,
			Verified:          ok,
			ThingsboardSynced: synced,
		},
		ResourceUpdates: deltas,
	}, nil
}

// applyConsumption draws down every resource linked to the actuator
// for the elapsed activation interval. Malformed flow rates or levels
// degrade to zero with a warning; accounting never aborts a status
// change.
func (e *Engine) applyConsumption(tx *gorm.DB, actuator *model.Actuator, elapsed time.Duration) ([]ResourceDelta, []resourcePush, error) {
	if len(actuator.Resources) == 0 {
		return nil, nil, nil
	}

	if actuator.BaseSpeed.Malformed() {
		e.log.Warn("invalid base_speed value, treating as zero",
			zap.String("actuator_id", actuator.ID))
	}
	rate := actuator.BaseSpeed.Value

	var (
		deltas []ResourceDelta
		pushes []resourcePush
	)
	for _, resource := range actuator.Resources {
		if resource.CurrentLevel.Malformed() || resource.Capacity.Malformed() {
			e.log.Warn("invalid resource values, treating as zero",
				zap.String("resource_id", resource.ID))
		}
		level := resource.CurrentLevel.Value
		capacity := resource.Capacity.Value

		consumed, newLevel := consumption.Compute(rate, elapsed, level)
		newLevel = consumption.Round(newLevel, 2)
		pct := consumption.Round(consumption.PercentFull(newLevel, capacity), 1)

		// Column-value Update bypasses the json serializer; a struct
		// update with Select goes through it.
		resource.CurrentLevel = model.Quantity{Value: newLevel, Unit: resource.CurrentLevel.Unit}
		if err := tx.Model(resource).Select("current_level").Updates(resource).Error; err != nil {
			return nil, nil, err
		}

		deltas = append(deltas, ResourceDelta{
			ResourceID:     resource.ID,
			ResourceName:   resource.Name,
			OriginalLevel:  level,
			Consumption:    consumption.Round(consumed, 2),
			NewLevel:       newLevel,
			PercentageFull: pct,
		})
		pushes = append(pushes, resourcePush{
			ThingsboardID: resource.ThingsboardID,
			Payload: map[string]any{
				"current_level":   newLevel,
				"percentage_full": pct,
			},
		})
		metrics.ConsumedUnits.Add(consumed)

		e.log.Info("resource consumption applied",
			zap.String("resource_id", resource.ID),
			zap.Float64("consumed", consumed),
			zap.Float64("new_level", newLevel))
	}
	return deltas, pushes, nil
}

// cascadeToPumps propagates a valve transition to the pumps it feeds,
// inside the caller's transaction.
func (e *Engine) cascadeToPumps(tx *gorm.DB, valve *model.Actuator, newStatus string) ([]pumpChange, error) {
	var pumps []model.Actuator
	if err := lockForUpdate(tx).Preload("LinkedValves").
		Joins("JOIN pump_valve_association pva ON pva.pump_id = actuators.id AND pva.valve_id = ?", valve.ID).
		Find(&pumps).Error; err != nil {
		return nil, err
	}
	if len(pumps) == 0 {
		return nil, nil
	}

	snapshots := make([]cascade.PumpSnapshot, 0, len(pumps))
	byID := make(map[string]*model.Actuator, len(pumps))
	for i := range pumps {
		pump := &pumps[i]
		byID[pump.ID] = pump
		valveStatuses := make(map[string]string, len(pump.LinkedValves))
		for _, peer := range pump.LinkedValves {
			valveStatuses[peer.ID] = peer.Status
		}
		snapshots = append(snapshots, cascade.PumpSnapshot{
			ID:            pump.ID,
			Status:        pump.Status,
			ValveStatuses: valveStatuses,
		})
	}

	var changes []pumpChange
	for _, update := range cascade.Propagate(valve.ID, newStatus, snapshots) {
		pump := byID[update.PumpID]
		if err := tx.Model(pump).Update("status", update.Status).Error; err != nil {
			return nil, err
		}
		changes = append(changes, pumpChange{
			ID:            pump.ID,
			ThingsboardID: pump.ThingsboardID,
			Status:        update.Status,
		})
		e.log.Info("cascaded pump status",
			zap.String("valve_id", valve.ID),
			zap.String("pump_id", pump.ID),
			zap.String("status", update.Status))
	}
	return changes, nil
}

// pushStatusTelemetry sends the post-commit device-state updates for
// the actuator, any cascaded pumps, and any consumed resources.
// Returns false when any push failed.
func (e *Engine) pushStatusTelemetry(ctx context.Context, actuatorTBID, status string, pumps []pumpChange, resources []resourcePush) bool {
	synced := true
	push := func(deviceID string, payload map[string]any) {
		if err := e.gateway.PushTelemetry(ctx, deviceID, payload); err != nil {
			synced = false
			metrics.TelemetrySyncFailures.Inc()
		}
	}

	push(actuatorTBID, map[string]any{"deviceState": thingsboard.DeviceState(status)})
	for _, pump := range pumps {
		push(pump.ThingsboardID, map[string]any{"deviceState": thingsboard.DeviceState(pump.Status)})
	}
	for _, r := range resources {
		push(r.ThingsboardID, r.Payload)
	}
	return synced
}

// trackOperation maintains the display-only active-operations map.
func (e *Engine) trackOperation(actuatorID, fieldID, status string) {
	if status == model.StatusOpen {
		e.activeOps.Set(actuatorID, Operation{Type: "actuator", Status: "active", FieldID: fieldID}, cache.NoExpiration)
		return
	}
	e.activeOps.Delete(actuatorID)
}

// ActiveOperations returns a snapshot of the display-only operations
// map.
func (e *Engine) ActiveOperations() map[string]Operation {
	items := e.activeOps.Items()
	ops := make(map[string]Operation, len(items))
	for id, item := range items {
		ops[id] = item.Object.(Operation)
	}
	return ops
}

// lockForUpdate adds an exclusive row lock on dialects that support
// it. SQLite has no FOR UPDATE; its single-writer model serializes
// writes anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
