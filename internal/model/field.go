package model

import "time"

// Field represents a cultivated parcel inside a farm. Field names are
// assumed unique so name-based lookups resolve to a single row.
type Field struct {
	ID          string `gorm:"primaryKey;size:64"`
	FarmID      string `gorm:"index;size:64"`
	Name        string `gorm:"uniqueIndex;size:256;not null"`
	Crop        string `gorm:"size:128"`
	Area        string `gorm:"size:64"`
	BoundaryGPS string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Sensors   []Sensor    `gorm:"foreignKey:FieldID"`
	Actuators []Actuator  `gorm:"foreignKey:FieldID"`
	Resources []*Resource `gorm:"many2many:field_resource_association;"`
}
