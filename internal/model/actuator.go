package model

import "time"

// Actuator status literals. Transitions are restricted to this set;
// anything else is rejected before it reaches storage.
const (
	StatusOpen          = "open"
	StatusClose         = "close"
	StatusChangingState = "changing state"
)

// Actuator type labels. Only actuators of TypePumps may sit on the pump
// side of the pump/valve relation; only valve types on the valve side.
const (
	TypePumps                = "pumps"
	TypeWaterValves          = "water_valves"
	TypeFertilizerDispensers = "fertilizer_dispensers"
)

// ValidStatus reports whether s is one of the three allowed literals.
func ValidStatus(s string) bool {
	return s == StatusOpen || s == StatusClose || s == StatusChangingState
}

// IsValveType reports whether t is a valve-like actuator type that can
// drive linked pumps.
func IsValveType(t string) bool {
	return t == TypeWaterValves || t == TypeFertilizerDispensers
}

// Actuator is a controllable device (pump, water valve, fertilizer
// dispenser). LastStateChange is set on every transition into "open" or
// "close" and is the sole basis for elapsed-activation accounting; a
// transition into "changing state" leaves it untouched so a later close
// still accounts for the full open interval.
type Actuator struct {
	ID              string   `gorm:"primaryKey;size:64"`
	Name            string   `gorm:"size:256;not null"`
	ThingsboardID   string   `gorm:"size:64"`
	FieldID         string   `gorm:"index;size:64"`
	Type            string   `gorm:"size:64;not null"`
	Subtype         string   `gorm:"size:64"`
	OperationType   string   `gorm:"size:64"`
	Status          string   `gorm:"size:32"`
	BaseSpeed       Quantity `gorm:"serializer:json"` // flow rate, units per hour
	LastStateChange *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Associations
	Resources []*Resource `gorm:"many2many:actuator_resource_association;"`
	// Valves feeding this actuator when it is a pump.
	LinkedValves []*Actuator `gorm:"many2many:pump_valve_association;joinForeignKey:PumpID;joinReferences:ValveID"`
	// Pumps driven by this actuator when it is a valve.
	LinkedPumps []*Actuator `gorm:"many2many:pump_valve_association;joinForeignKey:ValveID;joinReferences:PumpID"`
}
