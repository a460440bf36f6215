package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/services"
	"github.com/carecircle/carecircle/pkg/logger"
	"github.com/carecircle/carecircle/pkg/metrics"
)

const (
	defaultMedicationSpec  = "*/5 * * * *"
	defaultAppointmentSpec = "0 18 * * *"
	defaultSweepSpec       = "30 0 * * *"
	defaultWeeklySpec      = "0 9 * * 1"
	defaultRetentionSpec   = "0 2 * * *"

	defaultRetentionDays       = 30
	defaultLedgerRetentionDays = 7
)

// Scheduler owns the registry of periodic reminder and sweep jobs. Each job
// body is fault-isolated: a failing run is logged and never prevents other
// jobs or future runs.
type Scheduler struct {
	db       *gorm.DB
	notifier *services.NotificationService
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger

	medicationSpec  string
	appointmentSpec string
	sweepSpec       string
	weeklySpec      string
	retentionSpec   string

	retentionDays       int
	ledgerRetentionDays int
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for time-window comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetentionDays adjusts how long notifications are retained.
func WithRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// WithMedicationSchedule overrides the cron expression for the medication scan.
func WithMedicationSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.medicationSpec = spec
		}
	}
}

// WithAppointmentSchedule overrides the cron expression for appointment reminders.
func WithAppointmentSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.appointmentSpec = spec
		}
	}
}

// WithSweepSchedule overrides the cron expression for the daily sweeps.
func WithSweepSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.sweepSpec = spec
		}
	}
}

// WithWeeklySchedule overrides the cron expression for the adherence report.
func WithWeeklySchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.weeklySpec = spec
		}
	}
}

// WithRetentionSchedule overrides the cron expression for the retention sweep.
func WithRetentionSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.retentionSpec = spec
		}
	}
}

// New constructs a Scheduler with default cadences.
func New(db *gorm.DB, notifier *services.NotificationService, opts ...Option) (*Scheduler, error) {
	if db == nil {
		return nil, errors.New("scheduler: db is required")
	}
	if notifier == nil {
		return nil, errors.New("scheduler: notification service is required")
	}

	s := &Scheduler{
		db:                  db,
		notifier:            notifier,
		now:                 time.Now,
		log:                 logger.WithModule("scheduler"),
		medicationSpec:      defaultMedicationSpec,
		appointmentSpec:     defaultAppointmentSpec,
		sweepSpec:           defaultSweepSpec,
		weeklySpec:          defaultWeeklySpec,
		retentionSpec:       defaultRetentionSpec,
		retentionDays:       defaultRetentionDays,
		ledgerRetentionDays: defaultLedgerRetentionDays,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return s, nil
}

// Start registers all jobs with the cron scheduler and launches it.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) error
	}{
		{s.medicationSpec, "medication_scan", s.RunMedicationScan},
		{s.appointmentSpec, "appointment_reminders", s.RunAppointmentReminders},
		{s.sweepSpec, "medication_expiry_sweep", s.RunMedicationExpirySweep},
		{s.sweepSpec, "appointment_status_sweep", s.RunAppointmentStatusSweep},
		{s.weeklySpec, "weekly_adherence_report", s.RunWeeklyAdherenceReport},
		{s.retentionSpec, "retention_sweep", s.RunRetentionSweep},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			s.runJob(job.name, job.fn)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every job body sequentially. Primarily used in tests and
// during graceful shutdown.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	errs = multierr.Append(errs, s.RunMedicationScan(ctx))
	errs = multierr.Append(errs, s.RunAppointmentReminders(ctx))
	errs = multierr.Append(errs, s.RunMedicationExpirySweep(ctx))
	errs = multierr.Append(errs, s.RunAppointmentStatusSweep(ctx))
	errs = multierr.Append(errs, s.RunWeeklyAdherenceReport(ctx))
	errs = multierr.Append(errs, s.RunRetentionSweep(ctx))
	return errs
}

// runJob isolates a single cron-triggered execution.
func (s *Scheduler) runJob(name string, fn func(context.Context) error) {
	s.log.Debug("job started", zap.String("job", name))
	if err := fn(context.Background()); err != nil {
		metrics.SchedulerRuns.WithLabelValues(name, "error").Inc()
		s.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	metrics.SchedulerRuns.WithLabelValues(name, "success").Inc()
}
