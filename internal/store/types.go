package store

import (
	"errors"

	"farm-control-backend/internal/model"
)

// Failure modes surfaced by the store. Callers match with errors.Is.
var (
	// ErrNotFound means an entity id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation means an association would break a
	// referential or type constraint (e.g. linking a non-valve as a
	// valve).
	ErrConstraintViolation = errors.New("constraint violation")
)

// ResourceLevel is the per-resource entry returned by ResourceLevels.
type ResourceLevel struct {
	Name         string         `json:"name"`
	Capacity     model.Quantity `json:"capacity"`
	CurrentLevel model.Quantity `json:"current_level"`
}

// ActuatorDraw describes one open actuator's contribution to a
// resource's consumption rate.
type ActuatorDraw struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	FlowRate float64 `json:"flow_rate"`
}

// ConsumptionRate projects how fast a resource is draining given the
// actuators currently open on it.
type ConsumptionRate struct {
	ResourceID      string         `json:"resource_id"`
	ResourceName    string         `json:"resource_name"`
	CurrentLevel    float64        `json:"current_level"`
	RatePerHour     float64        `json:"consumption_rate_per_hour"`
	RatePerMinute   float64        `json:"consumption_rate_per_minute"`
	HoursUntilEmpty *float64       `json:"hours_until_empty"`
	OpenActuators   []ActuatorDraw `json:"open_actuators"`
}

// FarmSummary aggregates entity counts for the overview endpoint.
type FarmSummary struct {
	TotalFields     int64 `json:"total_fields"`
	TotalSensors    int64 `json:"total_sensors"`
	TotalActuators  int64 `json:"total_actuators"`
	TotalResources  int64 `json:"total_resources"`
	ActiveDevices   int64 `json:"active_devices"`
	InactiveDevices int64 `json:"inactive_devices"`
}
