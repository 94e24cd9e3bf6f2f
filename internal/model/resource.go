package model

import "time"

// Resource is a consumable tracked by level and capacity (water tank,
// fertilizer reservoir). CurrentLevel only ever decreases through
// consumption accounting, floored at zero; the explicit level-set path
// does not clamp to capacity.
type Resource struct {
	ID            string   `gorm:"primaryKey;size:64"`
	FarmID        string   `gorm:"index;size:64"`
	FieldID       string   `gorm:"index;size:64"`
	ThingsboardID string   `gorm:"size:64"`
	Name          string   `gorm:"size:256;not null"`
	Content       string   `gorm:"size:128"`
	Capacity      Quantity `gorm:"serializer:json"`
	CurrentLevel  Quantity `gorm:"serializer:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Associations
	Fields    []*Field    `gorm:"many2many:field_resource_association;"`
	Actuators []*Actuator `gorm:"many2many:actuator_resource_association;"`
}
