package model

import "time"

// Farm represents a farm site and owns its fields.
type Farm struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:256;not null"`
	Address   string `gorm:"size:512"`
	GPSLat    float64
	GPSLong   float64
	TotalArea string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Fields []Field `gorm:"foreignKey:FarmID"`
}
