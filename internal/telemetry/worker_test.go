package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farm-control-backend/internal/thingsboard"

	"go.uber.org/zap"
)

// mockGateway records pushes for assertions.
type mockGateway struct {
	mu     sync.Mutex
	pushes []Job
	done   chan struct{}
}

func (m *mockGateway) PushTelemetry(_ context.Context, deviceID string, payload map[string]any) error {
	m.mu.Lock()
	m.pushes = append(m.pushes, Job{DeviceID: deviceID, Payload: payload})
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return nil
}

func (m *mockGateway) EnsureDevice(context.Context, thingsboard.DeviceDefinition) (string, error) {
	return "", nil
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, &mockGateway{}, zap.NewNop())

	wp.Dispatch(Job{DeviceID: "TB-1", Payload: map[string]any{"current_level": 99.0}})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "TB-1", job.DeviceID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerDrainsJobs(t *testing.T) {
	gw := &mockGateway{done: make(chan struct{}, 2)}
	wp := NewWorkerPool(2, gw, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(Job{DeviceID: "TB-1", Payload: map[string]any{"current_level": 50.0}})
	wp.Dispatch(Job{DeviceID: "TB-2", Payload: map[string]any{"current_level": 40.0}})

	for i := 0; i < 2; i++ {
		select {
		case <-gw.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for worker to process job")
		}
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Len(t, gw.pushes, 2)
}

func TestWorkerPool_DropsWhenFull(t *testing.T) {
	// No workers running, queue capacity is size*4.
	wp := NewWorkerPool(1, &mockGateway{}, zap.NewNop())
	for i := 0; i < 10; i++ {
		wp.Dispatch(Job{DeviceID: "TB-1"})
	}
	assert.Len(t, wp.Jobs(), 4, "overflow jobs are dropped, not blocked on")
}
