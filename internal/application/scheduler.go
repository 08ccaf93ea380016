package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/metrics"
)

// ErrInvalidSchedule is returned by Start when the configured time-of-day or
// timezone cannot be parsed. The scheduler never silently falls back to a
// default schedule.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ErrNoTask is returned when the scheduler has no delivery task, which
// happens when the process runs without a configured reading plan.
var ErrNoTask = errors.New("no delivery task configured")

// TaskFunc is the delivery task the scheduler drives. A non-nil error (or a
// panic, which is absorbed) marks the attempt as failed and triggers the
// retry loop.
type TaskFunc func(ctx context.Context) error

// SchedulerConfig tunes the delivery scheduler.
type SchedulerConfig struct {
	Schedule model.Schedule

	// MaxRetries is the number of additional attempts after a failed firing.
	MaxRetries int

	// RetryDelay is the fixed spacing between attempts. Fixed rather than
	// exponential: the workload is one delivery per day, not a high-QPS
	// service.
	RetryDelay time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Minute
	}
	return c
}

// SchedulerStatus is a point-in-time snapshot of the scheduler.
type SchedulerStatus struct {
	Running        bool
	TaskConfigured bool
	NextExecution  *time.Time
	SendTime       string
	Timezone       string
	LastAttempt    *model.SendAttempt
}

// DeliveryScheduler fires the delivery task once per day at the configured
// local time, with a bounded fixed-delay retry loop on failure. There is no
// catch-up: if the process was down at the scheduled time, the next firing
// is simply the next future occurrence.
type DeliveryScheduler struct {
	task   TaskFunc
	cfg    SchedulerConfig
	logger *slog.Logger

	mu      sync.Mutex
	sched   gocron.Scheduler
	job     gocron.Job
	running bool
	last    *model.SendAttempt

	runCtx    context.Context
	runCancel context.CancelFunc

	// firing serializes attempts: one logical firing in flight at a time,
	// whether timer-driven or manual.
	firing sync.Mutex
}

// NewDeliveryScheduler creates a scheduler for the given task.
func NewDeliveryScheduler(task TaskFunc, cfg SchedulerConfig, logger *slog.Logger) *DeliveryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryScheduler{
		task:   task,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Start validates the schedule, computes the next fire time, and arms the
// daily timer. Idempotent: a running scheduler is left untouched. Malformed
// configuration fails here, synchronously, never at fire time.
func (s *DeliveryScheduler) Start() error {
	if s.task == nil {
		return ErrNoTask
	}
	hour, minute, err := parseSendTime(s.cfg.Schedule.SendTime)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(s.cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, s.cfg.Schedule.Timezone, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	ctx := s.runCtx

	job, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() { s.runFiring(ctx, time.Now().In(loc)) }),
		gocron.WithName("daily-delivery"),
	)
	if err != nil {
		_ = sched.Shutdown()
		s.runCancel()
		return fmt.Errorf("create daily job: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.job = job
	s.running = true

	if next, err := job.NextRun(); err == nil {
		s.logger.Info("delivery scheduler started",
			"send_time", s.cfg.Schedule.SendTime,
			"timezone", s.cfg.Schedule.Timezone,
			"next_execution", next,
		)
	}
	return nil
}

// Stop disarms the timer and cancels any in-flight retry wait. Idempotent.
// Shutdown runs outside the mutex: it waits for running jobs, and a firing
// that is finishing up needs the mutex to record its attempt.
func (s *DeliveryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	sched := s.sched
	s.sched = nil
	s.job = nil
	s.running = false
	s.mu.Unlock()

	if err := sched.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown error", "error", err)
	}
	s.logger.Info("delivery scheduler stopped")
}

// ExecuteNow runs the delivery task immediately, bypassing the timer but
// sharing the scheduled firing's success/failure/retry handling. Without a
// configured task it returns ErrNoTask and records no attempt.
func (s *DeliveryScheduler) ExecuteNow(ctx context.Context) error {
	if s.task == nil {
		return ErrNoTask
	}
	s.runFiring(ctx, time.Now())
	return nil
}

// Status reports the scheduler's current state.
func (s *DeliveryScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Running:        s.running,
		TaskConfigured: s.task != nil,
		SendTime:       s.cfg.Schedule.SendTime,
		Timezone:       s.cfg.Schedule.Timezone,
	}
	if s.last != nil {
		attempt := *s.last
		st.LastAttempt = &attempt
	}
	if s.job != nil {
		if next, err := s.job.NextRun(); err == nil {
			st.NextExecution = &next
		}
	}
	return st
}

// runFiring executes one logical firing: the initial attempt plus up to
// MaxRetries re-invocations at fixed RetryDelay spacing. The loop stops on
// the first success; exhaustion logs a terminal failure and waits for the
// next scheduled firing, with no carry-over.
func (s *DeliveryScheduler) runFiring(ctx context.Context, scheduledFor time.Time) {
	s.firing.Lock()
	defer s.firing.Unlock()

	start := time.Now()
	maxAttempts := s.cfg.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.invoke(ctx)
		if err == nil {
			s.recordAttempt(scheduledFor, attempt, model.OutcomeSuccess, time.Since(start))
			metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			s.logger.Info("delivery succeeded", "scheduled_for", scheduledFor, "attempt", attempt)
			return
		}

		metrics.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()
		s.logger.Error("delivery attempt failed",
			"scheduled_for", scheduledFor,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			s.logger.Info("retrying delivery", "delay", s.cfg.RetryDelay, "next_attempt", attempt+1)
			sleepCtx(ctx, s.cfg.RetryDelay)
			if ctx.Err() != nil {
				s.recordAttempt(scheduledFor, attempt, model.OutcomeFailure, time.Since(start))
				s.logger.Warn("delivery retry canceled", "scheduled_for", scheduledFor)
				return
			}
		}
	}

	s.recordAttempt(scheduledFor, maxAttempts, model.OutcomeFailure, time.Since(start))
	s.logger.Error("delivery failed for the day, giving up until next scheduled firing",
		"scheduled_for", scheduledFor,
		"attempts", maxAttempts,
	)
}

// invoke calls the task, converting a panic into a failed attempt so one bad
// firing cannot take the scheduler down.
func (s *DeliveryScheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("delivery task panic: %v", v)
		}
	}()
	return s.task(ctx)
}

func (s *DeliveryScheduler) recordAttempt(scheduledFor time.Time, attempt int, outcome model.AttemptOutcome, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &model.SendAttempt{
		ScheduledFor: scheduledFor,
		Attempt:      attempt,
		Outcome:      outcome,
		Duration:     d,
	}
}

// parseSendTime parses a 24-hour "HH:MM" time of day. Fields must be plain
// digits; Atoi alone would also let sign prefixes like "+6" through.
func parseSendTime(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: send time %q is not HH:MM", ErrInvalidSchedule, v)
	}
	hour, err = atoiDigits(parts[0])
	if err != nil || hour > 23 {
		return 0, 0, fmt.Errorf("%w: send time %q has invalid hour", ErrInvalidSchedule, v)
	}
	minute, err = atoiDigits(parts[1])
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("%w: send time %q has invalid minute", ErrInvalidSchedule, v)
	}
	return hour, minute, nil
}

func atoiDigits(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.Atoi(s)
}
