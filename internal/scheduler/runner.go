package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

// Job outcomes recorded in metrics and run history.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

const (
	defaultTick         = time.Minute
	defaultRetryBackoff = 5 * time.Minute
	defaultMaxBackoff   = time.Hour
)

// JobFunc executes one run and returns a summary for logs and the admin API.
type JobFunc func(ctx context.Context) (interface{}, error)

// Schedule is either a fixed interval or a standard five-field cron expression evaluated in the
// runner's location unless it carries its own CRON_TZ prefix.
type Schedule struct {
	Interval time.Duration
	Cron     string
}

func (s Schedule) String() string {
	if s.Interval > 0 {
		return "every " + s.Interval.String()
	}
	return "cron " + s.Cron
}

// Job is a named unit of batch work.
type Job struct {
	Name     string
	Schedule Schedule
	Run      JobFunc
	// CatchUp replaces Run when the process starts. Jobs without it are not run at startup.
	CatchUp JobFunc
}

// Locker serialises runs of the same job across processes.
type Locker interface {
	Acquire(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, token string) error
}

// Metrics receives one observation per run.
type Metrics interface {
	ObserveJobRun(job, outcome string, duration time.Duration)
}

// Config wires the runner's collaborators.
type Config struct {
	Clock    clock.Clock
	Location *time.Location
	Locks    Locker
	LockTTL  time.Duration
	Metrics  Metrics
	Logger   *zap.Logger
	// Tick is how often Start checks for due jobs.
	Tick time.Duration
	// RetryBackoff delays the first retry of a failed job and doubles per consecutive failure up
	// to MaxBackoff. A retry never lands later than the job's next regular slot.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

type entry struct {
	job      Job
	cron     cron.Schedule
	next     time.Time
	failures int
	last     *dto.JobRun
}

// Runner executes registered jobs when they fall due. It holds no global state; the clock
// drives it explicitly.
type Runner struct {
	clock   clock.Clock
	loc     *time.Location
	locks   Locker
	lockTTL time.Duration
	metrics Metrics
	logger  *zap.Logger
	tick    time.Duration
	backoff time.Duration
	maxWait time.Duration

	mu    sync.Mutex
	jobs  map[string]*entry
	order []string
	wg    sync.WaitGroup
}

// NewRunner constructs an empty runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	return &Runner{
		clock:   cfg.Clock,
		loc:     cfg.Location,
		locks:   cfg.Locks,
		lockTTL: cfg.LockTTL,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		tick:    cfg.Tick,
		backoff: cfg.RetryBackoff,
		maxWait: cfg.MaxBackoff,
		jobs:    make(map[string]*entry),
	}
}

// Register adds a job. Its first run is one interval, or the next cron slot, after now.
func (r *Runner) Register(job Job) error {
	name := strings.TrimSpace(job.Name)
	if name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job name and run function are required")
	}
	e := &entry{job: job}
	switch {
	case job.Schedule.Interval > 0:
	case strings.TrimSpace(job.Schedule.Cron) != "":
		sched, err := cron.ParseStandard(strings.TrimSpace(job.Schedule.Cron))
		if err != nil {
			return fmt.Errorf("scheduler: job %s: invalid cron %q: %w", name, job.Schedule.Cron, err)
		}
		e.cron = sched
	default:
		return fmt.Errorf("scheduler: job %s has no schedule", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", name)
	}
	e.job.Name = name
	e.next = r.following(e, r.clock.Now())
	if e.next.IsZero() {
		return fmt.Errorf("scheduler: job %s never fires", name)
	}
	r.jobs[name] = e
	r.order = append(r.order, name)
	return nil
}

// Start checks for due jobs on every tick until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.tick)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				r.RunDue(ctx)
			}
		}
	}()
	r.logger.Info("job runner started", zap.Int("jobs", len(r.order)), zap.Duration("tick", r.tick))
}

// Wait blocks until the loop started by Start has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunDue runs every job whose next run time has passed, sequentially in registration order.
// A failed job is retried after a growing backoff; other outcomes advance its schedule.
func (r *Runner) RunDue(ctx context.Context) []dto.JobRun {
	now := r.clock.Now()
	var due []*entry
	r.mu.Lock()
	for _, name := range r.order {
		if e := r.jobs[name]; !e.next.After(now) {
			due = append(due, e)
		}
	}
	r.mu.Unlock()

	runs := make([]dto.JobRun, 0, len(due))
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		run, _ := r.execute(ctx, e, e.job.Run)
		r.mu.Lock()
		e.next = r.reschedule(e, run.Outcome, r.clock.Now())
		r.mu.Unlock()
		runs = append(runs, run)
	}
	return runs
}

// RunNow executes a job immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) (dto.JobRun, error) {
	r.mu.Lock()
	e, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return dto.JobRun{}, appErrors.Clone(appErrors.ErrNotFound, "unknown job: "+name)
	}
	return r.execute(ctx, e, e.job.Run)
}

// CatchUp runs the startup variant of every job that has one. Used once after downtime.
func (r *Runner) CatchUp(ctx context.Context) []dto.JobRun {
	r.mu.Lock()
	var startup []*entry
	for _, name := range r.order {
		if e := r.jobs[name]; e.job.CatchUp != nil {
			startup = append(startup, e)
		}
	}
	r.mu.Unlock()

	runs := make([]dto.JobRun, 0, len(startup))
	for _, e := range startup {
		run, _ := r.execute(ctx, e, e.job.CatchUp)
		runs = append(runs, run)
	}
	return runs
}

// Status lists the registered jobs with their schedule, next run and last outcome.
func (r *Runner) Status() []dto.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dto.JobStatus, 0, len(r.order))
	for _, name := range r.order {
		e := r.jobs[name]
		status := dto.JobStatus{Name: name, Schedule: e.job.Schedule.String(), NextRun: e.next}
		if e.last != nil {
			last := *e.last
			status.LastRun = &last
		}
		out = append(out, status)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Runner) execute(ctx context.Context, e *entry, fn JobFunc) (dto.JobRun, error) {
	name := e.job.Name
	run := dto.JobRun{Job: name, StartedAt: r.clock.Now()}

	token := uuid.NewString()
	if r.locks != nil {
		acquired, err := r.locks.Acquire(ctx, "job:"+name, token, r.lockTTL)
		if err != nil {
			return r.finish(e, run, nil, appErrors.Internal(err, "failed to acquire job lock"))
		}
		if !acquired {
			run.Outcome = OutcomeSkipped
			run.Error = appErrors.ErrLockNotAcquired.Message
			if r.metrics != nil {
				r.metrics.ObserveJobRun(name, OutcomeSkipped, 0)
			}
			r.logger.Info("job skipped, lock held elsewhere", zap.String("job", name))
			r.record(e, run)
			return run, appErrors.ErrLockNotAcquired
		}
		defer func() {
			if err := r.locks.Release(context.WithoutCancel(ctx), "job:"+name, token); err != nil {
				r.logger.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	r.logger.Info("job started", zap.String("job", name))
	result, err := safeRun(ctx, fn)
	return r.finish(e, run, result, err)
}

func (r *Runner) finish(e *entry, run dto.JobRun, result interface{}, err error) (dto.JobRun, error) {
	run.Duration = r.clock.Now().Sub(run.StartedAt)
	run.Result = result
	if err != nil {
		run.Outcome = OutcomeFailure
		run.Error = err.Error()
		r.logger.Error("job aborted", zap.String("job", run.Job), zap.Duration("duration", run.Duration), zap.Error(err))
	} else {
		run.Outcome = OutcomeSuccess
		r.logger.Info("job finished", zap.String("job", run.Job), zap.Duration("duration", run.Duration), zap.Any("result", result))
	}
	if r.metrics != nil {
		r.metrics.ObserveJobRun(run.Job, run.Outcome, run.Duration)
	}
	r.record(e, run)
	return run, err
}

func (r *Runner) record(e *entry, run dto.JobRun) {
	r.mu.Lock()
	e.last = &run
	r.mu.Unlock()
}

// following returns the first scheduled instant strictly after t.
func (r *Runner) following(e *entry, t time.Time) time.Time {
	if e.job.Schedule.Interval > 0 {
		return t.Add(e.job.Schedule.Interval)
	}
	return e.cron.Next(t.In(r.loc))
}

// reschedule picks the next run after an outcome observed at now. Callers hold r.mu.
func (r *Runner) reschedule(e *entry, outcome string, now time.Time) time.Time {
	regular := r.following(e, now)
	if outcome != OutcomeFailure {
		e.failures = 0
		return regular
	}
	e.failures++
	wait := r.backoff
	for i := 1; i < e.failures && wait < r.maxWait; i++ {
		wait *= 2
	}
	if wait > r.maxWait {
		wait = r.maxWait
	}
	if retry := now.Add(wait); retry.Before(regular) {
		return retry
	}
	return regular
}

func safeRun(ctx context.Context, fn JobFunc) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}
