package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"farm-control-backend/internal/consumption"
	"farm-control-backend/internal/model"
)

// Store defines the read and association operations over the entity
// tables. Status-changing mutations live in the control engine, which
// owns its own transaction and locking discipline.
type Store interface {
	DB() *gorm.DB

	ListFarms(ctx context.Context) ([]model.Farm, error)
	GetFarm(ctx context.Context, id string) (*model.Farm, error)
	ListFields(ctx context.Context) ([]model.Field, error)
	GetField(ctx context.Context, id string) (*model.Field, error)
	GetFieldByName(ctx context.Context, name string) (*model.Field, error)
	SensorsByField(ctx context.Context, fieldID string) ([]model.Sensor, error)
	GetSensor(ctx context.Context, id string) (*model.Sensor, error)
	ActuatorsByField(ctx context.Context, fieldID string) ([]model.Actuator, error)
	GetActuator(ctx context.Context, id string) (*model.Actuator, error)
	ActuatorsByStatus(ctx context.Context, status string) ([]model.Actuator, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ResourceLevels(ctx context.Context) (map[string]ResourceLevel, error)
	ConsumptionRate(ctx context.Context, resourceID string) (*ConsumptionRate, error)
	Summary(ctx context.Context) (*FarmSummary, error)

	AssignSensorField(ctx context.Context, sensorID, fieldID string) error
	LinkFieldResource(ctx context.Context, fieldID, resourceID string) error
	LinkActuatorResource(ctx context.Context, actuatorID, resourceID string) error
	LinkPumpValve(ctx context.Context, pumpID, valveID string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log *zap.Logger) Store {
	return &gormStore{db: db, log: log}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) ListFarms(ctx context.Context) ([]model.Farm, error) {
	var farms []model.Farm
	err := s.db.WithContext(ctx).
		Preload("Fields.Sensors").
		Preload("Fields.Actuators").
		Preload("Fields.Resources").
		Find(&farms).Error
	return farms, err
}

func (s *gormStore) GetFarm(ctx context.Context, id string) (*model.Farm, error) {
	var farm model.Farm
	err := s.db.WithContext(ctx).
		Preload("Fields.Sensors").
		Preload("Fields.Actuators").
		Preload("Fields.Resources").
		First(&farm, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("farm %s: %w", id, ErrNotFound)
	}
	return &farm, err
}

func (s *gormStore) ListFields(ctx context.Context) ([]model.Field, error) {
	var fields []model.Field
	err := s.db.WithContext(ctx).
		Preload("Sensors").Preload("Actuators").Preload("Resources").
		Find(&fields).Error
	return fields, err
}

func (s *gormStore) GetField(ctx context.Context, id string) (*model.Field, error) {
	return s.fieldBy(ctx, "id = ?", id)
}

func (s *gormStore) GetFieldByName(ctx context.Context, name string) (*model.Field, error) {
	return s.fieldBy(ctx, "name = ?", name)
}

func (s *gormStore) fieldBy(ctx context.Context, cond, arg string) (*model.Field, error) {
	var field model.Field
	err := s.db.WithContext(ctx).
		Preload("Sensors").Preload("Actuators").Preload("Resources").
		First(&field, cond, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("field %s: %w", arg, ErrNotFound)
	}
	return &field, err
}

func (s *gormStore) SensorsByField(ctx context.Context, fieldID string) ([]model.Sensor, error) {
	var sensors []model.Sensor
	err := s.db.WithContext(ctx).Where("field_id = ?", fieldID).Find(&sensors).Error
	return sensors, err
}

func (s *gormStore) GetSensor(ctx context.Context, id string) (*model.Sensor, error) {
	var sensor model.Sensor
	err := s.db.WithContext(ctx).First(&sensor, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sensor %s: %w", id, ErrNotFound)
	}
	return &sensor, err
}

func (s *gormStore) ActuatorsByField(ctx context.Context, fieldID string) ([]model.Actuator, error) {
	var actuators []model.Actuator
	err := s.db.WithContext(ctx).
		Preload("Resources").
		Where("field_id = ?", fieldID).
		Find(&actuators).Error
	return actuators, err
}

func (s *gormStore) GetActuator(ctx context.Context, id string) (*model.Actuator, error) {
	var actuator model.Actuator
	err := s.db.WithContext(ctx).
		Preload("Resources").Preload("LinkedValves").Preload("LinkedPumps").
		First(&actuator, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("actuator %s: %w", id, ErrNotFound)
	}
	return &actuator, err
}

func (s *gormStore) ActuatorsByStatus(ctx context.Context, status string) ([]model.Actuator, error) {
	var actuators []model.Actuator
	err := s.db.WithContext(ctx).
		Preload("Resources").
		Where("status = ?", status).
		Find(&actuators).Error
	return actuators, err
}

func (s *gormStore) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	var resource model.Resource
	err := s.db.WithContext(ctx).
		Preload("Actuators").
		First(&resource, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return &resource, err
}

func (s *gormStore) ResourceLevels(ctx context.Context) (map[string]ResourceLevel, error) {
	var resources []model.Resource
	if err := s.db.WithContext(ctx).Find(&resources).Error; err != nil {
		return nil, err
	}
	levels := make(map[string]ResourceLevel, len(resources))
	for _, r := range resources {
		levels[r.ID] = ResourceLevel{
			Name:         r.Name,
			Capacity:     r.Capacity,
			CurrentLevel: r.CurrentLevel,
		}
	}
	return levels, nil
}

// ConsumptionRate sums the hourly draw of every open actuator on the
// resource and projects hours until empty (nil when nothing is open).
func (s *gormStore) ConsumptionRate(ctx context.Context, resourceID string) (*ConsumptionRate, error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	rate := &ConsumptionRate{
		ResourceID:   resource.ID,
		ResourceName: resource.Name,
		CurrentLevel: resource.CurrentLevel.Value,
	}
	for _, act := range resource.Actuators {
		if act.Status != model.StatusOpen {
			continue
		}
		if act.BaseSpeed.Malformed() {
			s.log.Warn("invalid base_speed on open actuator, treating as zero",
				zap.String("actuator_id", act.ID))
		}
		rate.RatePerHour += act.BaseSpeed.Value
		rate.OpenActuators = append(rate.OpenActuators, ActuatorDraw{
			ID:       act.ID,
			Name:     act.Name,
			Type:     act.Type,
			FlowRate: act.BaseSpeed.Value,
		})
	}

	rate.RatePerHour = consumption.Round(rate.RatePerHour, 2)
	rate.RatePerMinute = consumption.Round(rate.RatePerHour/60, 2)
	if rate.RatePerHour > 0 {
		hours := consumption.Round(rate.CurrentLevel/rate.RatePerHour, 1)
		rate.HoursUntilEmpty = &hours
	}
	return rate, nil
}

func (s *gormStore) Summary(ctx context.Context) (*FarmSummary, error) {
	var summary FarmSummary
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Field{}).Count(&summary.TotalFields).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Sensor{}).Count(&summary.TotalSensors).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Actuator{}).Count(&summary.TotalActuators).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Resource{}).Count(&summary.TotalResources).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Actuator{}).Where("status = ?", model.StatusOpen).Count(&summary.ActiveDevices).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Actuator{}).Where("status = ?", model.StatusClose).Count(&summary.InactiveDevices).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// AssignSensorField moves a sensor onto a field. Both endpoints must
// exist.
func (s *gormStore) AssignSensorField(ctx context.Context, sensorID, fieldID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sensor model.Sensor
		if err := tx.First(&sensor, "id = ?", sensorID).Error; err != nil {
			return notFoundOr("sensor", sensorID, err)
		}
		if err := tx.First(&model.Field{}, "id = ?", fieldID).Error; err != nil {
			return notFoundOr("field", fieldID, err)
		}
		return tx.Model(&sensor).Update("field_id", fieldID).Error
	})
}

func (s *gormStore) LinkFieldResource(ctx context.Context, fieldID, resourceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field model.Field
		if err := tx.First(&field, "id = ?", fieldID).Error; err != nil {
			return notFoundOr("field", fieldID, err)
		}
		var resource model.Resource
		if err := tx.First(&resource, "id = ?", resourceID).Error; err != nil {
			return notFoundOr("resource", resourceID, err)
		}
		return tx.Model(&field).Association("Resources").Append(&resource)
	})
}

func (s *gormStore) LinkActuatorResource(ctx context.Context, actuatorID, resourceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var actuator model.Actuator
		if err := tx.First(&actuator, "id = ?", actuatorID).Error; err != nil {
			return notFoundOr("actuator", actuatorID, err)
		}
		var resource model.Resource
		if err := tx.First(&resource, "id = ?", resourceID).Error; err != nil {
			return notFoundOr("resource", resourceID, err)
		}
		return tx.Model(&actuator).Association("Resources").Append(&resource)
	})
}

// LinkPumpValve associates a valve with the pump it feeds. The type
// constraint is enforced here: pump-to-pump and valve-to-valve links
// are rejected before anything is written.
func (s *gormStore) LinkPumpValve(ctx context.Context, pumpID, valveID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pump model.Actuator
		if err := tx.First(&pump, "id = ?", pumpID).Error; err != nil {
			return notFoundOr("pump", pumpID, err)
		}
		var valve model.Actuator
		if err := tx.First(&valve, "id = ?", valveID).Error; err != nil {
			return notFoundOr("valve", valveID, err)
		}
		if pump.Type != model.TypePumps {
			return fmt.Errorf("actuator %s is not a pump type: %w", pumpID, ErrConstraintViolation)
		}
		if !model.IsValveType(valve.Type) {
			return fmt.Errorf("actuator %s is not a valve type: %w", valveID, ErrConstraintViolation)
		}
		return tx.Model(&pump).Association("LinkedValves").Append(&valve)
	})
}

func notFoundOr(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}
