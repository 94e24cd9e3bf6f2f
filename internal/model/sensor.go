package model

import "time"

// Sensor is a read-only measurement device attached to a field. The
// control engine never mutates sensors; telemetry ingestion does.
type Sensor struct {
	ID            string `gorm:"primaryKey;size:64"`
	ThingsboardID string `gorm:"size:64"`
	FieldID       string `gorm:"index;size:64"`
	Type          string `gorm:"size:64;not null"`
	Status        string `gorm:"size:32"`
	Unit          string `gorm:"size:32"`
	GPSLat        float64
	GPSLong       float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
