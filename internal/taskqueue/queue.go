// Package taskqueue is a single-process delayed executor with exponential
// retry. It decouples the request path from flaky side effects: a job that
// fails is re-scheduled with backoff until it succeeds or exhausts its
// retries, and a permanently failed job is dropped with a log line. Nothing
// is persisted; a restart loses every pending job.
package taskqueue

import (
	"context"
	"sync"
	"time"

	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunFunc is a unit of work. A non-nil error schedules a retry.
type RunFunc func(ctx context.Context) error

type job struct {
	id         string
	key        string // set by EnqueueOnce, empty otherwise
	run        RunFunc
	tries      int
	maxRetries int
	baseDelay  time.Duration
	nextAt     time.Time
}

// Option tunes a single enqueued job.
type Option func(*job)

// WithMaxRetries caps how many times a failed job is re-attempted.
func WithMaxRetries(n int) Option {
	return func(j *job) { j.maxRetries = n }
}

// WithBaseDelay sets the first retry delay; later retries double it.
func WithBaseDelay(d time.Duration) Option {
	return func(j *job) { j.baseDelay = d }
}

// WithStartAfter delays the first attempt.
func WithStartAfter(d time.Duration) Option {
	return func(j *job) { j.nextAt = j.nextAt.Add(d) }
}

// Queue owns the tick loop and all pending jobs.
type Queue struct {
	mu      sync.Mutex
	jobs    []*job
	pending map[string]struct{} // EnqueueOnce keys currently queued or in flight

	tick       time.Duration
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a stopped queue. Zero values fall back to a 200ms tick,
// 5 retries and a 1s base delay.
func New(tick time.Duration, maxRetries int, baseDelay time.Duration) *Queue {
	if tick <= 0 {
		tick = 200 * time.Millisecond
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Queue{
		pending:    make(map[string]struct{}),
		tick:       tick,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		now:        time.Now,
		stop:       make(chan struct{}),
		logger:     util.NamedLogger("taskqueue"),
	}
}

// Start runs the tick loop until ctx is cancelled or Shutdown is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.runTick(ctx)
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			}
		}
	}()
}

// Shutdown stops the loop and waits for an in-flight tick to drain.
// Pending jobs are discarded.
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}

// Enqueue schedules a job. The id is for logging only; enqueueing the same
// id twice runs the job twice. Callers that need at-most-once scheduling
// use EnqueueOnce.
func (q *Queue) Enqueue(id string, run RunFunc, opts ...Option) string {
	if id == "" {
		id = uuid.NewString()
	}
	q.add(&job{id: id, run: run}, opts...)
	return id
}

// EnqueueOnce schedules a job only if no job with the same key is pending
// or in flight. The key frees up once the job succeeds or exhausts its
// retries, so later re-enqueues for settled work are allowed. Returns
// whether the job was accepted.
func (q *Queue) EnqueueOnce(key, id string, run RunFunc, opts ...Option) bool {
	if id == "" {
		id = uuid.NewString()
	}
	q.mu.Lock()
	if _, dup := q.pending[key]; dup {
		q.mu.Unlock()
		q.logger.Debug("duplicate job suppressed", zap.String("key", key))
		return false
	}
	q.pending[key] = struct{}{}
	q.mu.Unlock()

	q.add(&job{id: id, key: key, run: run}, opts...)
	return true
}

func (q *Queue) add(j *job, opts ...Option) {
	j.maxRetries = q.maxRetries
	j.baseDelay = q.baseDelay
	j.nextAt = q.now()
	for _, opt := range opts {
		opt(j)
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	depth := len(q.jobs)
	q.mu.Unlock()

	util.QueueJobsEnqueuedTotal.Inc()
	util.QueueDepth.Set(float64(depth))
}

// Len returns the number of jobs waiting for execution.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// runTick pulls every due job and executes them sequentially. Jobs that
// fail with retries left are re-scheduled with exponential backoff.
func (q *Queue) runTick(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	var due, rest []*job
	for _, j := range q.jobs {
		if !j.nextAt.After(now) {
			due = append(due, j)
		} else {
			rest = append(rest, j)
		}
	}
	q.jobs = rest
	q.mu.Unlock()

	for _, j := range due {
		q.execute(ctx, j)
	}

	q.mu.Lock()
	util.QueueDepth.Set(float64(len(q.jobs)))
	q.mu.Unlock()
}

func (q *Queue) execute(ctx context.Context, j *job) {
	err := j.run(ctx)
	if err == nil {
		util.QueueJobAttemptsTotal.WithLabelValues("success").Inc()
		q.settle(j)
		return
	}

	j.tries++
	util.QueueJobAttemptsTotal.WithLabelValues("failure").Inc()

	if j.tries > j.maxRetries {
		util.QueueJobsExhaustedTotal.Inc()
		q.logger.Error("job failed permanently",
			zap.String("job_id", j.id),
			zap.Int("tries", j.tries),
			zap.Error(err))
		q.settle(j)
		return
	}

	delay := j.baseDelay << (j.tries - 1)
	j.nextAt = q.now().Add(delay)

	q.logger.Warn("job failed, retrying",
		zap.String("job_id", j.id),
		zap.Int("try", j.tries),
		zap.Duration("retry_in", delay),
		zap.Error(err))

	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

// settle releases the EnqueueOnce key of a terminally finished job.
func (q *Queue) settle(j *job) {
	if j.key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, j.key)
	q.mu.Unlock()
}
