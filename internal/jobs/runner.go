package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/germanbot/internal/quiz"
	"github.com/example/germanbot/internal/store"
)

// Notifier delivers job-initiated messages to a learner.
type Notifier interface {
	SendText(learner int64, text string) error
	SendReminder(learner int64, due int) error
}

// Config tunes the background jobs.
type Config struct {
	// Reminders go out only between these hours (inclusive, UTC). A
	// window with start > end wraps past midnight, e.g. 22-6.
	ReminderStartHour int
	ReminderEndHour   int
}

// Runner owns the periodic jobs: the inactivity sweep, hourly review
// reminders and pending-save reconciliation.
type Runner struct {
	scheduler *gocron.Scheduler
	engine    *quiz.Engine
	store     store.Store
	notifier  Notifier
	cfg       Config
	log       *slog.Logger
}

// New creates a runner. Start schedules the jobs.
func New(engine *quiz.Engine, st store.Store, notifier Notifier, cfg Config, log *slog.Logger) *Runner {
	return &Runner{
		scheduler: gocron.NewScheduler(time.UTC),
		engine:    engine,
		store:     st,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
	}
}

// Start schedules all jobs and runs them in the background.
func (r *Runner) Start() {
	r.scheduler.Every(1).Minute().Do(r.sweepIdleSessions)
	r.scheduler.Every(1).Hour().Do(r.sendReminders)
	r.scheduler.Every(5).Minutes().Do(r.reconcile)
	r.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs.
func (r *Runner) Stop() {
	r.scheduler.Stop()
}

// sweepIdleSessions closes rounds that sat inactive past the window and
// delivers their partial summaries.
func (r *Runner) sweepIdleSessions() {
	for _, exp := range r.engine.ExpireIdle(time.Now()) {
		if err := r.notifier.SendText(exp.Learner, exp.Text); err != nil {
			r.log.Error("sending timeout summary failed", "learner", exp.Learner, "error", err)
		}
	}
}

// sendReminders nudges every known learner who has due items, but only
// inside the configured hours.
func (r *Runner) sendReminders() {
	now := time.Now()
	if !withinHours(now.Hour(), r.cfg.ReminderStartHour, r.cfg.ReminderEndHour) {
		r.log.Debug("outside reminder hours, skipping",
			"hour", now.Hour(), "start", r.cfg.ReminderStartHour, "end", r.cfg.ReminderEndHour)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	learners, err := r.store.Learners(ctx)
	if err != nil {
		r.log.Error("listing learners failed", "error", err)
		return
	}
	for _, learner := range learners {
		due, err := r.engine.DueCount(ctx, learner)
		if err != nil {
			r.log.Error("counting due items failed", "learner", learner, "error", err)
			continue
		}
		if due == 0 {
			continue
		}
		if err := r.notifier.SendReminder(learner, due); err != nil {
			r.log.Error("sending reminder failed", "learner", learner, "error", err)
		}
	}
}

// reconcile drains saves left over from degraded rounds and flushes the
// store.
func (r *Runner) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.engine.Reconcile(ctx); err != nil {
		r.log.Warn("reconciliation pass failed", "error", err)
	}
}

func withinHours(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	// Window wraps past midnight.
	return hour >= start || hour <= end
}
