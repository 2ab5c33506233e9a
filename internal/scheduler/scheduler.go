package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is a unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each task once at startup and then on its interval. A task
// still running when its next tick fires skips that tick.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// NewScheduler creates a scheduler for tasks.
func NewScheduler(tasks []Task, logger *slog.Logger) *Scheduler {
	return &Scheduler{tasks: tasks, logger: logger}
}

// Run starts the loop. It runs one immediate cycle of every task in order,
// then hands them to cron. It returns nil when ctx is cancelled, after
// in-flight tasks finish.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if t.Interval <= 0 {
			return fmt.Errorf("task %s: interval must be positive", t.Name)
		}
	}

	logger := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(logger))

	// The startup cycle calls these directly, so recovery lives on each job
	// rather than on the cron instance.
	jobs := make([]cron.Job, len(s.tasks))
	for i, t := range s.tasks {
		jobs[i] = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(s.job(ctx, t))
		c.Schedule(every(t.Interval), jobs[i])
		s.logger.Info("scheduled task", "task", t.Name, "interval", t.Interval.String())
	}

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		j.Run()
	}

	c.Start()
	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) job(ctx context.Context, t Task) cron.FuncJob {
	return func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := t.Run(ctx); err != nil {
			s.logger.Error("task failed", "task", t.Name, "error", err)
			return
		}
		s.logger.Debug("task finished", "task", t.Name, "took", time.Since(start).String())
	}
}

// every is a fixed-delay schedule. Unlike cron.Every it keeps sub-second
// precision.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
