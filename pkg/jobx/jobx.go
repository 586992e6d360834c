package jobx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
)

// HandlerFunc processes a job. Return nil on success, an error to trigger
// retry, or Permanent(err) to fail without retrying.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// JobEnqueuer enqueues jobs for processing.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error)
}

// JobStatusReader reads job status.
type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// JobProcessor provides backend operations for the worker loop.
type JobProcessor interface {
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string, result []byte) error
	// Fail records the failure. It reports whether the job has retry budget
	// left; retryable=false exhausts it immediately.
	Fail(ctx context.Context, jobID string, errMsg string, retryable bool) (retry bool, err error)
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queues []string) error
}

// Queue combines all backend operations.
type Queue interface {
	JobEnqueuer
	JobStatusReader
	JobProcessor
}

// Client is the main entry point for enqueuing and processing jobs.
type Client struct {
	queue    Queue
	opts     WorkerOptions
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	running  bool
}

// NewClient creates a new job processing client.
func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Client{
		queue:    queue,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a given job type.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[jobType] = handler
}

// Enqueue enqueues a job for immediate processing.
func (c *Client) Enqueue(ctx context.Context, job Job) (string, error) {
	job = c.withDefaults(job)
	if job.Type == "" {
		return "", jobxErrors.New(ErrInvalidJob).WithDetail("reason", "type is required")
	}
	return c.queue.Enqueue(ctx, job)
}

// EnqueueDelayed enqueues a job with a delay before it becomes available.
func (c *Client) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error) {
	job = c.withDefaults(job)
	if job.Type == "" {
		return "", jobxErrors.New(ErrInvalidJob).WithDetail("reason", "type is required")
	}
	return c.queue.EnqueueDelayed(ctx, job, delay)
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.GetJob(ctx, jobID)
}

func (c *Client) withDefaults(job Job) Job {
	if job.Queue == "" {
		job.Queue = "default"
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = c.opts.MaxRetries
	}
	return job
}

// Start runs the scheduler and Concurrency workers until ctx is cancelled,
// then waits up to ShutdownTimeout for in-flight jobs.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logx.WithFields(logx.Fields{
		"workers": c.opts.Concurrency,
		"queues":  c.opts.Queues,
	}).Info("jobx: starting workers")

	var g errgroup.Group
	g.Go(func() error {
		c.schedulerLoop(ctx)
		return nil
	})
	for i := range c.opts.Concurrency {
		g.Go(func() error {
			c.workerLoop(ctx, i)
			return nil
		})
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
		return nil
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
		return jobxErrors.New(ErrShutdownTimeout)
	}
}

func (c *Client) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.PromoteScheduled(ctx, c.opts.Queues); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("jobx: failed to promote scheduled jobs")
			}
		}
	}
}

func (c *Client) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %d dequeue error", id)
			time.Sleep(c.opts.PollInterval)
			continue
		}
		if job == nil {
			continue
		}

		// Jobs already picked up run to completion on a context that ignores
		// shutdown; ShutdownTimeout bounds the wait.
		c.processJob(context.WithoutCancel(ctx), job)
	}
}

func (c *Client) processJob(ctx context.Context, job *JobInfo) {
	start := time.Now()
	outcome := c.execute(ctx, job)
	metrics.JobsTotal.WithLabelValues(job.Type, outcome).Inc()
	metrics.JobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
}

// execute runs one job and settles it in the queue. It returns the outcome
// label recorded for the run.
func (c *Client) execute(ctx context.Context, job *JobInfo) string {
	c.mu.RLock()
	handler, ok := c.handlers[job.Type]
	c.mu.RUnlock()

	log := logx.WithFields(logx.Fields{"job_id": job.ID, "job_type": job.Type, "attempt": job.Attempts})

	if !ok {
		log.Warn("jobx: no handler registered")
		_, _ = c.queue.Fail(ctx, job.ID, jobxErrors.New(ErrNoHandler).Error(), false)
		return "no_handler"
	}

	err := c.runHandler(ctx, handler, job)
	if err == nil {
		if cerr := c.queue.Complete(ctx, job.ID, nil); cerr != nil {
			log.WithError(cerr).Error("jobx: failed to complete job")
		}
		log.Debug("jobx: job completed")
		return "completed"
	}

	log = log.WithError(err)
	retry, ferr := c.queue.Fail(ctx, job.ID, err.Error(), !IsPermanent(err))
	if ferr != nil {
		log.WithField("fail_error", ferr.Error()).Error("jobx: failed to record job failure")
		return "failed"
	}
	if !retry {
		log.Warn("jobx: job failed permanently")
		return "failed"
	}

	delay := c.retryDelay(job.Attempts)
	if rerr := c.queue.Retry(ctx, job.ID, delay); rerr != nil {
		log.WithField("retry_error", rerr.Error()).Error("jobx: failed to schedule retry")
		return "failed"
	}
	log.WithField("retry_in", delay.String()).Warn("jobx: job failed, retry scheduled")
	return "retried"
}

func (c *Client) runHandler(ctx context.Context, handler HandlerFunc, job *JobInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// retryDelay doubles the base delay per completed attempt.
func (c *Client) retryDelay(attempts int) time.Duration {
	d := c.opts.DefaultRetryDelay
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	return d
}
