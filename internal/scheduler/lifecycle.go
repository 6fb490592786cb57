// Package scheduler drives time-based event transitions and the startup
// reconciliation pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-fest/internal/attendance"
	eventdb "ms-fest/internal/events/db"
	events "ms-fest/internal/events/service"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	regdb "ms-fest/internal/registrations/db"

	"github.com/go-co-op/gocron/v2"
	"github.com/uptrace/bun"
)

// Advancer performs one guarded event transition with its cascade.
type Advancer interface {
	AdvanceStatus(ctx context.Context, id string, from, to models.EventStatus) (bool, error)
}

type Config struct {
	Interval        time.Duration
	PerEventTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: time.Minute, PerEventTimeout: 10 * time.Second}
}

type Lifecycle struct {
	DB            *bun.DB
	Events        *eventdb.DB
	Registrations *regdb.DB
	Advancer      Advancer
	Stats         attendance.StatsRefresher
	Config        Config
	Logger        *logger.Logger
	Now           func() time.Time
}

func NewLifecycle(db *bun.DB, advancer Advancer, cfg Config, log *logger.Logger) *Lifecycle {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.PerEventTimeout <= 0 {
		cfg.PerEventTimeout = DefaultConfig().PerEventTimeout
	}
	return &Lifecycle{
		DB:            db,
		Events:        &eventdb.DB{Bun: db},
		Registrations: &regdb.DB{Bun: db},
		Advancer:      advancer,
		Stats:         attendance.NoCache{},
		Config:        cfg,
		Logger:        log,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

type TickReport struct {
	Started   int
	Completed int
	Errors    []error
}

func (r TickReport) Err() error {
	return errors.Join(r.Errors...)
}

type ReconcileReport struct {
	PurgedRegistrations int
	PurgedAuditEntries  int
	Healed              int
	Errors              []error
}

func (r ReconcileReport) Err() error {
	return errors.Join(r.Errors...)
}

// Tick starts PUBLISHED events whose start date has passed, then completes
// ONGOING events whose end date has passed. An event due for both moves
// through both in the same tick. A failing event is logged and skipped.
func (l *Lifecycle) Tick(ctx context.Context) TickReport {
	var report TickReport
	now := l.Now()

	report.Started = l.advanceDue(ctx, models.EventPublished, models.EventOngoing, "start_date", now, &report.Errors)
	report.Completed = l.advanceDue(ctx, models.EventOngoing, models.EventCompleted, "end_date", now, &report.Errors)

	if report.Started > 0 || report.Completed > 0 || len(report.Errors) > 0 {
		l.Logger.LogScheduler("TICK", fmt.Sprintf("started %d, completed %d, failed %d",
			report.Started, report.Completed, len(report.Errors)))
	}
	return report
}

func (l *Lifecycle) advanceDue(ctx context.Context, from, to models.EventStatus, column string, now time.Time, errs *[]error) int {
	due, err := l.Events.ListDue(ctx, from, column, now)
	if err != nil {
		*errs = append(*errs, err)
		l.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to list due %s events: %v", from, err))
		return 0
	}

	moved := 0
	for _, ev := range due {
		ok, err := l.withEventTimeout(ctx, func(ctx context.Context) (bool, error) {
			return l.Advancer.AdvanceStatus(ctx, ev.ID, from, to)
		})
		if err != nil {
			*errs = append(*errs, fmt.Errorf("event %s %s -> %s: %w", ev.ID, from, to, err))
			l.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to move event %s to %s: %v", ev.ID, to, err))
			continue
		}
		if ok {
			moved++
		}
	}
	return moved
}

// Reconcile purges registrations whose event is gone and re-runs the
// cascade for every event in a terminal or completed state, so an
// interrupted or out-of-band status change is finished.
func (l *Lifecycle) Reconcile(ctx context.Context) ReconcileReport {
	var report ReconcileReport

	regs, audits, err := l.Registrations.PurgeOrphans(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err)
		l.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to purge orphans: %v", err))
	}
	report.PurgedRegistrations, report.PurgedAuditEntries = regs, audits

	settled, err := l.Events.ListByStatus(ctx, models.EventCompleted, models.EventClosed, models.EventCancelled)
	if err != nil {
		report.Errors = append(report.Errors, err)
		l.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to list settled events: %v", err))
		return report
	}
	now := l.Now()
	for _, ev := range settled {
		var healed int
		_, err := l.withEventTimeout(ctx, func(ctx context.Context) (bool, error) {
			var err error
			healed, err = events.Cascade(ctx, l.DB, ev.ID, ev.Status, now)
			return healed > 0, err
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("reconcile event %s: %w", ev.ID, err))
			l.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to reconcile event %s: %v", ev.ID, err))
			continue
		}
		if healed > 0 {
			l.Logger.Warn("SCHEDULER", fmt.Sprintf("Healed %d registrations of %s event %s", healed, ev.Status, ev.ID))
			l.Stats.RefreshStats(ctx, ev.ID)
		}
		report.Healed += healed
	}

	l.Logger.LogScheduler("RECONCILE", fmt.Sprintf("purged %d registrations and %d audit entries, healed %d registrations",
		report.PurgedRegistrations, report.PurgedAuditEntries, report.Healed))
	return report
}

func (l *Lifecycle) withEventTimeout(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Config.PerEventTimeout)
	defer cancel()
	return fn(ctx)
}

// Run reconciles once, then ticks on the configured interval until ctx is
// done.
func (l *Lifecycle) Run(ctx context.Context) error {
	l.Reconcile(ctx)

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(l.Config.Interval),
		gocron.NewTask(func() { l.Tick(ctx) }),
		gocron.WithName("event-lifecycle"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule lifecycle job: %w", err)
	}

	s.Start()
	l.Logger.LogScheduler("START", fmt.Sprintf("lifecycle tick every %s", l.Config.Interval))

	<-ctx.Done()
	l.Logger.LogScheduler("STOP", "shutting down lifecycle scheduler")
	return s.Shutdown()
}
