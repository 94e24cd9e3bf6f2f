package engine

import (
	"errors"
	"time"

	"farm-control-backend/internal/model"
)

// Failure modes raised by the engine, in addition to the store's
// ErrNotFound. VerificationFailed and a failed telemetry sync are not
// errors: they are reported inside the Result.
var (
	// ErrInvalidStatus means the requested status is not one of the
	// three valid literals.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrTransactionFailed wraps any failure inside the locked
	// read-modify-write; the transaction is fully rolled back.
	ErrTransactionFailed = errors.New("transaction failed")
)

// StatusChange reports the outcome of a single transition.
type StatusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Verified is the result of re-reading the actuator in a fresh
	// transaction after commit.
	Verified bool `json:"verified"`
	// ThingsboardSynced reports whether every best-effort telemetry
	// push for this transition reached the platform.
	ThingsboardSynced bool `json:"thingsboard_synced"`
}

// ResourceDelta is the per-resource consumption report attached to an
// open-to-close transition.
type ResourceDelta struct {
	ResourceID     string  `json:"resource_id"`
	ResourceName   string  `json:"resource_name"`
	OriginalLevel  float64 `json:"original_level"`
	Consumption    float64 `json:"consumption"`
	NewLevel       float64 `json:"new_level"`
	PercentageFull float64 `json:"percentage_full"`
}

// Result is the verified confirmation returned by SetActuatorStatus.
type Result struct {
	Actuator        model.Actuator  `json:"actuator"`
	StatusChange    StatusChange    `json:"status_change"`
	ResourceUpdates []ResourceDelta `json:"resource_updates,omitempty"`
}

// BatchEntry is one actuator's outcome inside a batch operation.
// Exactly one of Result and Error is set.
type BatchEntry struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ReconcileReport summarizes one background reconciliation sweep.
type ReconcileReport struct {
	Timestamp        time.Time       `json:"timestamp"`
	ActuatorsUpdated int             `json:"actuators_updated"`
	ResourceUpdates  []ResourceDelta `json:"resource_updates"`
}

// Operation is an entry in the ephemeral active-operations cache,
// tracked purely for display. It is not part of the durable model.
type Operation struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	FieldID string `json:"field,omitempty"`
}

// LevelChange reports an explicit resource level set.
type LevelChange struct {
	From              model.Quantity `json:"from"`
	To                model.Quantity `json:"to"`
	ThingsboardSynced bool           `json:"thingsboard_synced"`
}

// LevelResult is returned by UpdateResourceLevel.
type LevelResult struct {
	Resource    model.Resource `json:"resource"`
	LevelChange LevelChange    `json:"level_change"`
}

// SyncReport summarizes a full device sync against the platform.
type SyncReport struct {
	Sensors   []SyncEntry `json:"sensors"`
	Actuators []SyncEntry `json:"actuators"`
	Resources []SyncEntry `json:"resources"`
}

// SyncEntry is one entity's provisioning outcome.
type SyncEntry struct {
	ID            string `json:"id"`
	ThingsboardID string `json:"thingsboard_id,omitempty"`
	Status        string `json:"status"`
}
