// Package reconciler runs the periodic consumption sweep: while an
// actuator stays open across a sweep interval, its resource draw is
// accounted incrementally instead of only at close time.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"farm-control-backend/config"
	"farm-control-backend/internal/engine"
)

// Service drives the reconciliation loop.
type Service struct {
	cfg    *config.ReconcilerConfig
	engine *engine.Engine
	log    *zap.Logger
}

// NewService creates the reconciliation service.
func NewService(cfg *config.ReconcilerConfig, eng *engine.Engine, log *zap.Logger) *Service {
	return &Service{cfg: cfg, engine: eng, log: log}
}

// Run executes one sweep immediately, then loops on the configured
// interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("reconciler is disabled, not starting")
		return
	}
	s.log.Info("starting reconciler", zap.Duration("interval", s.cfg.Interval))

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce performs a single reconciliation cycle.
func (s *Service) SweepOnce(ctx context.Context) {
	report, err := s.engine.ReconcileOpenActuators(ctx)
	if err != nil {
		s.log.Error("reconciliation sweep failed", zap.Error(err))
		return
	}
	if report.ActuatorsUpdated > 0 {
		s.log.Info("reconciliation sweep applied consumption",
			zap.Int("actuators", report.ActuatorsUpdated),
			zap.Int("resource_updates", len(report.ResourceUpdates)))
	}
}
