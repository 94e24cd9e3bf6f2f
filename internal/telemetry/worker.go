// Package telemetry decouples background resource-level pushes from
// the reconciliation sweep: the sweep's transaction latency must never
// depend on the remote platform.
package telemetry

import (
	"context"

	"go.uber.org/zap"

	"farm-control-backend/internal/thingsboard"
)

// Job is one pending telemetry push.
type Job struct {
	DeviceID string
	Payload  map[string]any
}

// WorkerPool manages a pool of workers draining telemetry pushes.
type WorkerPool struct {
	size    int
	jobs    chan Job
	gateway thingsboard.Gateway
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, gateway thingsboard.Gateway, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		gateway: gateway,
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("telemetry worker started", zap.Int("worker", id))
	for {
		select {
		case job := <-wp.jobs:
			// Gateway failures are already logged and never retried
			// here; the pool just drains.
			_ = wp.gateway.PushTelemetry(ctx, job.DeviceID, job.Payload)
		case <-ctx.Done():
			wp.log.Debug("telemetry worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a push. When the queue is full the job is dropped
// with a warning rather than blocking the caller; the next sweep will
// publish a fresh level anyway.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		wp.log.Warn("telemetry queue full, dropping push",
			zap.String("device_id", job.DeviceID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}
