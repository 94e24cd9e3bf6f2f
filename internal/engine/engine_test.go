package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"farm-control-backend/internal/db"
	"farm-control-backend/internal/model"
	"farm-control-backend/internal/store"
	"farm-control-backend/internal/thingsboard"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakePush records one telemetry push.
type fakePush struct {
	DeviceID string
	Payload  map[string]any
}

// fakeGateway records pushes and can be made to fail or stall per
// device.
type fakeGateway struct {
	mu       sync.Mutex
	pushes   []fakePush
	failAll  bool
	delayFor map[string]time.Duration
}

func (g *fakeGateway) PushTelemetry(_ context.Context, deviceID string, payload map[string]any) error {
	g.mu.Lock()
	delay := g.delayFor[deviceID]
	fail := g.failAll
	g.pushes = append(g.pushes, fakePush{DeviceID: deviceID, Payload: payload})
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return errors.New("platform unreachable")
	}
	return nil
}

func (g *fakeGateway) EnsureDevice(_ context.Context, def thingsboard.DeviceDefinition) (string, error) {
	if g.failAll {
		return "", errors.New("platform unreachable")
	}
	return "tb-" + def.Name, nil
}

func (g *fakeGateway) pushed() []fakePush {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]fakePush, len(g.pushes))
	copy(out, g.pushes)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, *fakeGateway, *fakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	gateway := &fakeGateway{delayFor: map[string]time.Duration{}}
	clock := newFakeClock()
	e := New(gormDB, gateway, nil, zap.NewNop()).WithClock(clock.Now)
	return e, gormDB, gateway, clock
}

// seedValveWithResource creates the FD-0900 scenario: a 120 u/h water
// valve drawing on a 200-capacity tank at level 100.
func seedValveWithResource(t *testing.T, gormDB *gorm.DB) {
	t.Helper()
	require.NoError(t, gormDB.Create(&model.Actuator{
		ID: "FD-0900", Name: "Valve 900", Type: model.TypeWaterValves,
		Status: model.StatusClose, ThingsboardID: "tb-fd-0900",
		BaseSpeed: model.Quantity{Value: 120, Unit: "l/h"},
	}).Error)
	require.NoError(t, gormDB.Create(&model.Resource{
		ID: "R1", Name: "Water tank", ThingsboardID: "tb-r1",
		Capacity:     model.Quantity{Value: 200, Unit: "l"},
		CurrentLevel: model.Quantity{Value: 100, Unit: "l"},
	}).Error)
	s := store.NewGormStore(gormDB, zap.NewNop())
	require.NoError(t, s.LinkActuatorResource(context.Background(), "FD-0900", "R1"))
}

func TestSetActuatorStatusInvalid(t *testing.T) {
	e, gormDB, _, _ := newTestEngine(t)
	seedValveWithResource(t, gormDB)

	_, err := e.SetActuatorStatus(context.Background(), "FD-0900", "invalid_value")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	var actuator model.Actuator
	require.NoError(t, gormDB.First(&actuator, "id = ?", "FD-0900").Error)
	assert.Equal(t, model.StatusClose, actuator.Status, "stored status must be untouched")
}

func TestSetActuatorStatusNotFound(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	_, err := e.SetActuatorStatus(context.Background(), "missing", model.StatusOpen)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenCloseConsumption(t *testing.T) {
	e, gormDB, gateway, clock := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	ctx := context.Background()

	openResult, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusOpen)
	require.NoError(t, err)
	assert.True(t, openResult.StatusChange.Verified)
	assert.True(t, openResult.StatusChange.ThingsboardSynced)
	assert.Empty(t, openResult.ResourceUpdates, "opening consumes nothing")

	clock.Advance(30 * time.Second)

	closeResult, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusClose)
	require.NoError(t, err)
	assert.True(t, closeResult.StatusChange.Verified)
	require.Len(t, closeResult.ResourceUpdates, 1)

	delta := closeResult.ResourceUpdates[0]
	assert.Equal(t, "R1", delta.ResourceID)
	assert.InDelta(t, 100.0, delta.OriginalLevel, 1e-9)
	assert.InDelta(t, 1.0, delta.Consumption, 1e-9)
	assert.InDelta(t, 99.0, delta.NewLevel, 1e-9)
	assert.InDelta(t, 49.5, delta.PercentageFull, 1e-9)

	// The persisted level round-trips through the json serializer with
	// its unit intact.
	var resource model.Resource
	require.NoError(t, gormDB.First(&resource, "id = ?", "R1").Error)
	assert.InDelta(t, 99.0, resource.CurrentLevel.Value, 1e-9)
	assert.Equal(t, "l", resource.CurrentLevel.Unit)

	// Device state and the new resource level both went out.
	var states []int
	var levels []float64
	for _, p := range gateway.pushed() {
		if v, ok := p.Payload["deviceState"].(int); ok {
			states = append(states, v)
		}
		if v, ok := p.Payload["current_level"].(float64); ok {
			levels = append(levels, v)
		}
	}
	assert.Equal(t, []int{1, 0}, states)
	assert.Equal(t, []float64{99.0}, levels)
}

func TestChangingStatePreservesConsumptionTimer(t *testing.T) {
	e, gormDB, _, clock := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	ctx := context.Background()

	_, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusOpen)
	require.NoError(t, err)

	var opened model.Actuator
	require.NoError(t, gormDB.First(&opened, "id = ?", "FD-0900").Error)
	require.NotNil(t, opened.LastStateChange)
	openedAt := *opened.LastStateChange

	clock.Advance(10 * time.Second)
	_, err = e.SetActuatorStatus(ctx, "FD-0900", model.StatusChangingState)
	require.NoError(t, err)

	var intermediate model.Actuator
	require.NoError(t, gormDB.First(&intermediate, "id = ?", "FD-0900").Error)
	require.NotNil(t, intermediate.LastStateChange)
	assert.True(t, intermediate.LastStateChange.Equal(openedAt),
		"changing state must not reset the timer")

	clock.Advance(20 * time.Second)
	result, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusClose)
	require.NoError(t, err)
	require.Len(t, result.ResourceUpdates, 1)
	// 30 seconds of the full open interval are accounted, spanning the
	// intermediate state.
	assert.InDelta(t, 1.0, result.ResourceUpdates[0].Consumption, 1e-9)
}

func seedPumpWithValves(t *testing.T, gormDB *gorm.DB) {
	t.Helper()
	require.NoError(t, gormDB.Create(&model.Actuator{
		ID: "P1", Name: "Shared pump", Type: model.TypePumps,
		Status: model.StatusClose, ThingsboardID: "tb-p1",
	}).Error)
	for _, id := range []string{"V1", "V2"} {
		require.NoError(t, gormDB.Create(&model.Actuator{
			ID: id, Name: "Valve " + id, Type: model.TypeWaterValves,
			Status: model.StatusClose,
		}).Error)
	}
	s := store.NewGormStore(gormDB, zap.NewNop())
	require.NoError(t, s.LinkPumpValve(context.Background(), "P1", "V1"))
	require.NoError(t, s.LinkPumpValve(context.Background(), "P1", "V2"))
}

func pumpStatus(t *testing.T, gormDB *gorm.DB) string {
	t.Helper()
	var pump model.Actuator
	require.NoError(t, gormDB.First(&pump, "id = ?", "P1").Error)
	return pump.Status
}

func TestValveCascade(t *testing.T) {
	e, gormDB, gateway, _ := newTestEngine(t)
	seedPumpWithValves(t, gormDB)
	ctx := context.Background()

	// Opening V1 opens the shared pump.
	_, err := e.SetActuatorStatus(ctx, "V1", model.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, pumpStatus(t, gormDB))

	// Opening V2 leaves the already-open pump alone.
	before := len(gateway.pushed())
	_, err = e.SetActuatorStatus(ctx, "V2", model.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, pumpStatus(t, gormDB))
	// Only the valve's own push went out, no redundant pump push.
	assert.Len(t, gateway.pushed(), before+1)

	// Closing V1 while V2 is open keeps the pump running.
	_, err = e.SetActuatorStatus(ctx, "V1", model.StatusClose)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, pumpStatus(t, gormDB))

	// Closing the last open valve shuts the pump down.
	_, err = e.SetActuatorStatus(ctx, "V2", model.StatusClose)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClose, pumpStatus(t, gormDB))
}

func TestTelemetryFailureDoesNotRollBack(t *testing.T) {
	e, gormDB, gateway, _ := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	gateway.failAll = true

	result, err := e.SetActuatorStatus(context.Background(), "FD-0900", model.StatusOpen)
	require.NoError(t, err, "gateway failure is not an engine failure")
	assert.True(t, result.StatusChange.Verified)
	assert.False(t, result.StatusChange.ThingsboardSynced)

	var actuator model.Actuator
	require.NoError(t, gormDB.First(&actuator, "id = ?", "FD-0900").Error)
	assert.Equal(t, model.StatusOpen, actuator.Status, "local mutation survives")
}

func TestBatchSetStatusIsIndependentPerActuator(t *testing.T) {
	e, gormDB, _, _ := newTestEngine(t)
	seedValveWithResource(t, gormDB)

	results := e.BatchSetStatus(context.Background(), []string{"FD-0900", "missing"}, model.StatusOpen)
	require.Len(t, results, 2)
	assert.NotNil(t, results["FD-0900"].Result)
	assert.Empty(t, results["FD-0900"].Error)
	assert.Nil(t, results["missing"].Result)
	assert.Contains(t, results["missing"].Error, "not found")

	assert.Equal(t, model.StatusOpen, func() string {
		var a model.Actuator
		require.NoError(t, gormDB.First(&a, "id = ?", "FD-0900").Error)
		return a.Status
	}())
}

func TestEmergencyStopAll(t *testing.T) {
	e, gormDB, _, _ := newTestEngine(t)
	seedPumpWithValves(t, gormDB)
	require.NoError(t, gormDB.Create(&model.Actuator{
		ID: "FD-0900", Name: "Valve 900", Type: model.TypeWaterValves,
		Status: model.StatusClose,
	}).Error)
	ctx := context.Background()

	for _, id := range []string{"V1", "V2", "FD-0900"} {
		_, err := e.SetActuatorStatus(ctx, id, model.StatusOpen)
		require.NoError(t, err)
	}
	assert.Len(t, e.ActiveOperations(), 3)

	results, err := e.EmergencyStopAll(ctx)
	require.NoError(t, err)
	// Three valves plus the cascaded pump were open.
	assert.Len(t, results, 4)

	var stillOpen int64
	require.NoError(t, gormDB.Model(&model.Actuator{}).
		Where("status = ?", model.StatusOpen).Count(&stillOpen).Error)
	assert.Zero(t, stillOpen)
	assert.Empty(t, e.ActiveOperations())
}

func TestReconcileOpenActuators(t *testing.T) {
	e, gormDB, _, clock := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	ctx := context.Background()

	_, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusOpen)
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	report, err := e.ReconcileOpenActuators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ActuatorsUpdated)
	require.Len(t, report.ResourceUpdates, 1)
	assert.InDelta(t, 2.0, report.ResourceUpdates[0].Consumption, 1e-9)

	var resource model.Resource
	require.NoError(t, gormDB.First(&resource, "id = ?", "R1").Error)
	assert.InDelta(t, 98.0, resource.CurrentLevel.Value, 1e-9)

	// Status is untouched and the timer is reset to the sweep time.
	var actuator model.Actuator
	require.NoError(t, gormDB.First(&actuator, "id = ?", "FD-0900").Error)
	assert.Equal(t, model.StatusOpen, actuator.Status)
	require.NotNil(t, actuator.LastStateChange)
	assert.True(t, actuator.LastStateChange.Equal(clock.Now()))

	// Immediate re-run with no elapsed time consumes nothing more.
	report, err = e.ReconcileOpenActuators(ctx)
	require.NoError(t, err)
	require.NoError(t, gormDB.First(&resource, "id = ?", "R1").Error)
	assert.InDelta(t, 98.0, resource.CurrentLevel.Value, 1e-9)

	// A later close accounts only the interval since the sweep.
	clock.Advance(30 * time.Second)
	result, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusClose)
	require.NoError(t, err)
	require.Len(t, result.ResourceUpdates, 1)
	assert.InDelta(t, 1.0, result.ResourceUpdates[0].Consumption, 1e-9)
}

func TestResourceLevelNeverNegative(t *testing.T) {
	e, gormDB, _, clock := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	ctx := context.Background()

	_, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusOpen)
	require.NoError(t, err)

	// 120 u/h for a week drains far past the 100 units available.
	clock.Advance(7 * 24 * time.Hour)
	result, err := e.SetActuatorStatus(ctx, "FD-0900", model.StatusClose)
	require.NoError(t, err)
	require.Len(t, result.ResourceUpdates, 1)
	assert.Zero(t, result.ResourceUpdates[0].NewLevel)

	var resource model.Resource
	require.NoError(t, gormDB.First(&resource, "id = ?", "R1").Error)
	assert.Zero(t, resource.CurrentLevel.Value)
}

func TestUpdateResourceLevel(t *testing.T) {
	e, gormDB, gateway, _ := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	ctx := context.Background()

	result, err := e.UpdateResourceLevel(ctx, "R1", 150)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.LevelChange.From.Value)
	assert.Equal(t, 150.0, result.LevelChange.To.Value)
	assert.True(t, result.LevelChange.ThingsboardSynced)

	var stored model.Resource
	require.NoError(t, gormDB.First(&stored, "id = ?", "R1").Error)
	assert.Equal(t, 150.0, stored.CurrentLevel.Value)
	assert.Equal(t, "l", stored.CurrentLevel.Unit)

	// No upper clamp: overfilling past capacity is preserved.
	result, err = e.UpdateResourceLevel(ctx, "R1", 250)
	require.NoError(t, err)
	assert.Equal(t, 250.0, result.Resource.CurrentLevel.Value)

	last := gateway.pushed()[len(gateway.pushed())-1]
	assert.Equal(t, 250.0, last.Payload["current_level"])
	assert.Equal(t, 125.0, last.Payload["percentage_full"])

	_, err = e.UpdateResourceLevel(ctx, "missing", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentControlOfDifferentActuators(t *testing.T) {
	e, gormDB, gateway, _ := newTestEngine(t)
	require.NoError(t, gormDB.Create(&model.Actuator{
		ID: "A1", Name: "Slow valve", Type: model.TypeWaterValves,
		Status: model.StatusClose, ThingsboardID: "tb-slow",
	}).Error)
	require.NoError(t, gormDB.Create(&model.Actuator{
		ID: "A2", Name: "Fast valve", Type: model.TypeWaterValves,
		Status: model.StatusClose, ThingsboardID: "tb-fast",
	}).Error)
	// A1's telemetry push stalls; its transaction is already committed
	// by then, so A2 must not wait behind it.
	gateway.mu.Lock()
	gateway.delayFor["tb-slow"] = 500 * time.Millisecond
	gateway.mu.Unlock()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := e.SetActuatorStatus(ctx, "A1", model.StatusOpen)
		done <- err
	}()
	// Let A1 commit and park inside the slow push.
	time.Sleep(150 * time.Millisecond)

	start := time.Now()
	_, err := e.SetActuatorStatus(ctx, "A2", model.StatusOpen)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	require.NoError(t, <-done)
}

func TestSetActuatorStatusTransactionFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	e := New(gormDB, &fakeGateway{}, nil, zap.NewNop())
	_, err = e.SetActuatorStatus(context.Background(), "FD-0900", model.StatusOpen)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncDevices(t *testing.T) {
	e, gormDB, _, _ := newTestEngine(t)
	seedValveWithResource(t, gormDB)
	require.NoError(t, gormDB.Create(&model.Sensor{
		ID: "S-01", Type: "soil_moisture", Unit: "%",
	}).Error)

	report, err := e.SyncDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sensors, 1)
	require.Len(t, report.Actuators, 1)
	require.Len(t, report.Resources, 1)
	assert.Equal(t, "synced", report.Sensors[0].Status)
	assert.Equal(t, "tb-Sensor-S-01", report.Sensors[0].ThingsboardID)

	var sensor model.Sensor
	require.NoError(t, gormDB.First(&sensor, "id = ?", "S-01").Error)
	assert.Equal(t, "tb-Sensor-S-01", sensor.ThingsboardID)
}
