package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 10 * time.Minute

// Bills is the billing work run on a timer.
type Bills interface {
	RefreshStatuses(ctx context.Context) (int, error)
	RollRecurringBills(ctx context.Context) (int, error)
	SendDueReminders(ctx context.Context) (int, error)
}

// Statements produces monthly account statements.
type Statements interface {
	GenerateMonthlyStatements(ctx context.Context, month time.Time) (int, error)
}

// ActivityLogs is the audit trail maintenance.
type ActivityLogs interface {
	Flush(ctx context.Context) (int, error)
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron       *cron.Cron
	bills      Bills
	statements Statements
	logs       ActivityLogs
	archive    func(ctx context.Context) error
	now        func() time.Time
	ctx        context.Context
}

// Cron schedules in the application time zone.
const (
	CronRefreshStatuses = "5 * * * *"
	CronRollRecurring   = "15 0 * * *"
	CronDueReminders    = "0 8 * * *"
	CronStatements      = "30 1 1 * *"
	CronFlushLogs       = "*/5 * * * *"
	CronArchiveLogs     = "0 3 * * 0"
)

func New(loc *time.Location, bills Bills, statements Statements, logs ActivityLogs, archive func(ctx context.Context) error) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{
		cron:       c,
		bills:      bills,
		statements: statements,
		logs:       logs,
		archive:    archive,
		now:        func() time.Time { return time.Now().In(loc) },
		ctx:        context.Background(),
	}
}

type job struct {
	schedule string
	name     string
	run      func(ctx context.Context) (int, error)
}

func (s *Scheduler) jobs() []job {
	jobs := []job{
		{CronRefreshStatuses, "refresh_bill_statuses", s.bills.RefreshStatuses},
		{CronRollRecurring, "roll_recurring_bills", s.bills.RollRecurringBills},
		{CronDueReminders, "bill_due_reminders", s.bills.SendDueReminders},
		{CronStatements, "monthly_statements", s.lastMonthStatements},
	}
	if s.logs != nil {
		jobs = append(jobs, job{CronFlushLogs, "flush_activity_logs", s.logs.Flush})
	}
	if s.archive != nil {
		archive := s.archive
		jobs = append(jobs, job{CronArchiveLogs, "archive_activity_logs", func(ctx context.Context) (int, error) {
			return 0, archive(ctx)
		}})
	}
	return jobs
}

// Register adds every job. It fails only on an invalid cron expression.
func (s *Scheduler) Register() error {
	for _, j := range s.jobs() {
		if _, err := s.cron.AddFunc(j.schedule, s.wrap(j.name, j.run)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) lastMonthStatements(ctx context.Context) (int, error) {
	now := s.now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.statements.GenerateMonthlyStatements(ctx, firstOfMonth.AddDate(0, -1, 0))
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()
		start := time.Now()
		n, err := run(ctx)
		entry := logrus.WithFields(logrus.Fields{"job": name, "count": n, "duration": time.Since(start).String()})
		if err != nil {
			entry.WithError(err).Error("Scheduled job failed")
			return
		}
		entry.Info("Scheduled job finished")
	}
}

// Start runs the scheduler until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	logrus.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("Scheduler stopped")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
