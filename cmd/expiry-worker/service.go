package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rflexhq/license-server/pkg/config"
	"github.com/rflexhq/license-server/pkg/db/models"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/metrics"
)

type expiringLister interface {
	ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]models.License, error)
}

type auditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs the periodic housekeeping jobs: flagging licenses that expire
// soon and trimming the validation audit trail to its retention window.
type Sweeper struct {
	licenses expiringLister
	logs     auditPurger
	metrics  *metrics.JobMetrics
	logg     *logger.Logger
	cfg      config.SweepConfig
	now      func() time.Time
}

// NewSweeper builds the sweep service.
func NewSweeper(licenses expiringLister, logs auditPurger, m *metrics.JobMetrics, logg *logger.Logger, cfg config.SweepConfig) (*Sweeper, error) {
	if licenses == nil {
		return nil, fmt.Errorf("license lister required")
	}
	if logs == nil {
		return nil, fmt.Errorf("audit purger required")
	}
	return &Sweeper{
		licenses: licenses,
		logs:     logs,
		metrics:  m,
		logg:     logg,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Run executes a sweep immediately and then on every tick until the context
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes both housekeeping jobs. Each job reports its own metrics
// and a failure in one never blocks the other.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.runJob(ctx, "expiry_sweep", s.sweepExpiring)
	s.runJob(ctx, "log_retention", s.purgeAuditLogs)
}

func (s *Sweeper) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	started := s.now()
	err := fn(ctx)
	s.metrics.ObserveDuration(name, s.now().Sub(started))
	if err != nil {
		s.metrics.IncFailure(name)
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "job", name), "sweep job failed", err)
		}
		return
	}
	s.metrics.IncSuccess(name)
}

func (s *Sweeper) sweepExpiring(ctx context.Context) error {
	if s.cfg.ExpiringSoonDays <= 0 {
		return nil
	}
	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, s.cfg.ExpiringSoonDays)

	rows, err := s.licenses.ListExpiringBefore(ctx, now, cutoff)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if s.logg == nil {
			continue
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"license_id":  row.ID.String(),
			"customer_id": row.CustomerID,
			"expires_at":  row.ExpiresAt,
		})
		s.logg.Warn(logCtx, "license.expiring_soon")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"count":       len(rows),
			"window_days": s.cfg.ExpiringSoonDays,
		})
		s.logg.Info(logCtx, "expiry sweep completed")
	}
	return nil
}

func (s *Sweeper) purgeAuditLogs(ctx context.Context) error {
	if s.cfg.LogRetentionDays <= 0 {
		return nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.LogRetentionDays)

	removed, err := s.logs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if s.logg != nil && removed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"removed":        removed,
			"retention_days": s.cfg.LogRetentionDays,
		})
		s.logg.Info(logCtx, "validation log retention applied")
	}
	return nil
}
