package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/pkg/logger"
	"github.com/charlesng35/refledger/pkg/metrics"
)

const (
	JobCreditGauge  = "credit_gauge"
	JobJournalPrune = "journal_prune"

	defaultJournalRetentionDays = 90
	defaultGaugeSpec            = "@every 1m"
	defaultPruneSpec            = "@daily"
)

// CreditCounter reports stored credits per community.
type CreditCounter interface {
	CreditTotals(ctx context.Context) (map[string]int64, error)
}

// Scheduler runs background jobs: refreshing the stored-credit gauge and pruning
// the membership journal. The gauge is observability only and never feeds queries.
type Scheduler struct {
	db        *gorm.DB
	credits   CreditCounter
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	gaugeSchedule string
	pruneSchedule string
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

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJournalRetentionDays adjusts how long journal entries are kept. Zero keeps them forever.
func WithJournalRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days >= 0 {
			s.retention = days
		}
	}
}

// WithGaugeSchedule overrides the cron specification of the gauge refresh.
func WithGaugeSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.gaugeSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron specification of the journal prune.
func WithPruneSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.pruneSchedule = spec
		}
	}
}

// WithJobTracker records job runs for the health endpoint.
func WithJobTracker(tracker *monitoring.JobTracker) Option {
	return func(s *Scheduler) {
		s.tracker = tracker
	}
}

// NewScheduler constructs a Scheduler. A nil db or counter disables the corresponding job.
func NewScheduler(db *gorm.DB, credits CreditCounter, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:            db,
		credits:       credits,
		now:           time.Now,
		retention:     defaultJournalRetentionDays,
		gaugeSchedule: defaultGaugeSpec,
		pruneSchedule: defaultPruneSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the enabled jobs and launches the cron scheduler.
func (s *Scheduler) Start() error {
	if s.credits != nil {
		s.tracker.Register(JobCreditGauge)
		if _, err := s.cron.AddFunc(s.gaugeSchedule, func() {
			s.run(context.Background(), JobCreditGauge, s.refreshGauge)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobCreditGauge, err)
		}
	}

	if s.db != nil && s.retention > 0 {
		s.tracker.Register(JobJournalPrune)
		if _, err := s.cron.AddFunc(s.pruneSchedule, func() {
			s.run(context.Background(), JobJournalPrune, s.pruneJournal)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobJournalPrune, err)
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

// RunOnce executes all enabled jobs sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.credits != nil {
		errs = multierr.Append(errs, s.run(ctx, JobCreditGauge, s.refreshGauge))
	}
	if s.db != nil && s.retention > 0 {
		errs = multierr.Append(errs, s.run(ctx, JobJournalPrune, s.pruneJournal))
	}
	return errs
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s.tracker.Record(job, err, time.Since(start))
	if err != nil {
		s.log.Warn("maintenance job failed", zap.String("job", job), zap.Error(err))
	}
	return err
}

func (s *Scheduler) refreshGauge(ctx context.Context) error {
	return RefreshCreditGauge(ctx, s.credits)
}

func (s *Scheduler) pruneJournal(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retention)
	removed, err := PruneJournal(ctx, s.db, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Info("journal pruned", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}

// RefreshCreditGauge publishes the stored credit count of every community.
func RefreshCreditGauge(ctx context.Context, counter CreditCounter) error {
	if counter == nil {
		return errors.New("refresh credit gauge: counter is required")
	}
	totals, err := counter.CreditTotals(ctx)
	if err != nil {
		return fmt.Errorf("refresh credit gauge: %w", err)
	}
	for community, total := range totals {
		metrics.StoredCredits.WithLabelValues(community).Set(float64(total))
	}
	return nil
}

// PruneJournal deletes journal entries created before cutoff. Credits are never touched.
func PruneJournal(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune journal: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.MembershipEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune journal: %w", result.Error)
	}
	return result.RowsAffected, nil
}
