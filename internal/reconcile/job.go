package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the report every five minutes.
const DefaultSchedule = "@every 5m"

// Summary aggregates open inconsistencies.
type Summary struct {
	Count  int       `json:"count"`
	Amount int64     `json:"amount"`
	Oldest time.Time `json:"oldest,omitempty"`
}

// Summarize totals the unresolved records in list.
func Summarize(list []Inconsistency) Summary {
	var s Summary
	for _, in := range list {
		if in.Resolved {
			continue
		}
		s.Count++
		s.Amount += in.Amount
		if s.Oldest.IsZero() || in.CreatedAt.Before(s.Oldest) {
			s.Oldest = in.CreatedAt
		}
	}
	return s
}

// Job periodically reports unresolved inconsistencies so operators are alerted
// while money is in flight.
type Job struct {
	store    Store
	logger   *slog.Logger
	cron     *cron.Cron
	schedule string
}

// NewJob validates schedule and builds a job. Start must be called to run it.
func NewJob(store Store, schedule string, logger *slog.Logger) (*Job, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Job{
		store:    store,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		schedule: schedule,
	}, nil
}

// RunOnce loads the open records and logs them. Any open record is logged at
// error level.
func (j *Job) RunOnce(ctx context.Context) (Summary, error) {
	list, err := j.store.List(ctx, Filter{UnresolvedOnly: true})
	if err != nil {
		j.logger.ErrorContext(ctx, "reconciliation report failed", slog.String("error", err.Error()))
		return Summary{}, err
	}
	sum := Summarize(list)
	if sum.Count == 0 {
		j.logger.DebugContext(ctx, "no funds in flight")
		return sum, nil
	}
	j.logger.ErrorContext(ctx, "funds in indeterminate state",
		slog.Int("count", sum.Count),
		slog.Int64("amount", sum.Amount),
		slog.Time("oldest", sum.Oldest),
	)
	for _, in := range list {
		j.logger.ErrorContext(ctx, "unresolved inconsistency",
			slog.String("id", in.ID.String()),
			slog.String("flow", in.Flow),
			slog.Int64("wallet_id", in.WalletID),
			slog.Int64("owner_id", in.OwnerID),
			slog.Int64("amount", in.Amount),
			slog.String("reason", in.Reason),
		)
	}
	return sum, nil
}

// Start schedules the report.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	j.logger.Info("scheduled reconciliation report", slog.String("schedule", j.schedule))
	j.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running report up to ctx.
func (j *Job) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
