package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/courier/internal/email"
	"github.com/dukerupert/courier/internal/telemetry"
)

// StatsOrder selects the order in which completions feed the statistics.
type StatsOrder string

const (
	// OrderCompletion consumes results as tasks finish.
	OrderCompletion StatsOrder = "completion"
	// OrderSubmission releases results in input order, holding back tasks
	// that finish before an earlier one.
	OrderSubmission StatsOrder = "submission"
)

// Task is the unit of work for one recipient. Attachments and Posters are
// shared by every task of a run and must not be modified.
type Task struct {
	Index       int
	Recipient   string
	Subject     string
	Body        string
	Attachments []string
	Posters     []string
	PosterURL   string
}

// Executor builds and delivers the message for one task.
type Executor interface {
	Execute(ctx context.Context, task Task) email.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) email.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, task Task) email.Outcome { return f(ctx, task) }

// Result is the recorded outcome of one task.
type Result struct {
	Task     Task
	Outcome  email.Outcome
	Duration time.Duration

	// Fault is set when the executor panicked.
	Fault bool
	// Skipped is set when the task was never submitted because the run was cancelled.
	Skipped bool
}

// Config holds scheduler configuration
type Config struct {
	// RunID tags every progress event and log line
	RunID string

	// MaxConcurrency is the maximum number of sends in flight
	MaxConcurrency int

	// StatsOrder controls how completions feed ETA and throughput
	StatsOrder StatsOrder

	// Metrics is optional
	Metrics *telemetry.DispatchMetrics
}

// Scheduler runs send tasks on a bounded pool and reports progress.
type Scheduler struct {
	config   Config
	executor Executor
	sink     ProgressSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a new dispatch scheduler
func NewScheduler(executor Executor, sink ProgressSink, config Config, logger *slog.Logger) *Scheduler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.StatsOrder == "" {
		config.StatsOrder = OrderCompletion
	}
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config:   config,
		executor: executor,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes every task and returns one Result per task in the order the
// statistics consumed them. It returns only after all submitted tasks have
// finished. Once ctx is done no further tasks are submitted; those are
// reported as failed with reason "cancelled" without being executed.
//
// onResult, if non-nil, is called for each result on the single goroutine
// that owns the statistics, so it may write to shared state without locking.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, onResult func(Result)) []Result {
	total := len(tasks)
	if total == 0 {
		return nil
	}

	s.logger.Info("dispatch starting",
		"run_id", s.config.RunID,
		"tasks", total,
		"max_concurrency", s.config.MaxConcurrency,
		"stats_order", s.config.StatsOrder,
	)

	stats := NewStats(total, s.config.MaxConcurrency, s.now())
	completions := make(chan Result, total)

	go s.submit(ctx, tasks, completions)

	order := newReorder(s.config.StatsOrder)
	results := make([]Result, 0, total)
	for res := range completions {
		for _, r := range order.push(res) {
			snap := stats.Record(r.Outcome.OK(), r.Duration, !r.Skipped, s.now())
			s.publish(completionEvent(s.config.RunID, r, snap))
			if onResult != nil {
				onResult(r)
			}
			results = append(results, r)
		}
	}

	final := stats.Snapshot(s.now())
	s.logger.Info("dispatch finished",
		"run_id", s.config.RunID,
		"sent", final.Succeeded,
		"failed", final.Failed,
		"elapsed", final.Elapsed,
	)

	return results
}

// submit feeds tasks to the pool in input order and closes completions once
// every task has produced a result.
func (s *Scheduler) submit(ctx context.Context, tasks []Task, completions chan<- Result) {
	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrency)

	submitted := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		s.publish(queuedEvent(s.config.RunID, task, len(tasks)))
		g.Go(func() error {
			completions <- s.execute(ctx, task)
			return nil
		})
		submitted++
	}
	_ = g.Wait()

	if submitted < len(tasks) {
		s.logger.Warn("dispatch cancelled before all tasks were submitted",
			"run_id", s.config.RunID,
			"submitted", submitted,
			"skipped", len(tasks)-submitted,
		)
	}
	for _, task := range tasks[submitted:] {
		s.config.Metrics.Cancelled()
		completions <- Result{Task: task, Outcome: email.Failed(email.ReasonCancelled), Skipped: true}
	}
	close(completions)
}

// execute runs one task, converting a panic into a failed result so sibling
// tasks keep running.
func (s *Scheduler) execute(ctx context.Context, task Task) (res Result) {
	start := s.now()
	s.config.Metrics.SendStarted()

	defer func() {
		if r := recover(); r != nil {
			d := s.now().Sub(start)
			s.logger.Error("send task panicked",
				"run_id", s.config.RunID,
				"recipient", task.Recipient,
				"panic", r,
			)
			telemetry.CaptureTaskFault(s.config.RunID, task.Recipient, r)
			s.config.Metrics.Fault()
			s.config.Metrics.SendFinished("fault", d)
			res = Result{
				Task:     task,
				Outcome:  email.Failed(fmt.Sprintf("unexpected fault: %v", r)),
				Duration: d,
				Fault:    true,
			}
		}
	}()

	outcome := s.executor.Execute(ctx, task)
	d := s.now().Sub(start)
	s.config.Metrics.SendFinished(outcome.Reason, d)

	return Result{Task: task, Outcome: outcome, Duration: d}
}

func (s *Scheduler) publish(ev Event) {
	s.config.Metrics.Published(string(ev.Status))
	s.sink.Publish(ev)
}

// reorder releases results either as they arrive or strictly by task index.
type reorder struct {
	byIndex bool
	next    int
	pending map[int]Result
}

func newReorder(order StatsOrder) *reorder {
	return &reorder{
		byIndex: order == OrderSubmission,
		pending: make(map[int]Result),
	}
}

func (o *reorder) push(res Result) []Result {
	if !o.byIndex {
		return []Result{res}
	}

	o.pending[res.Task.Index] = res
	var ready []Result
	for {
		r, ok := o.pending[o.next]
		if !ok {
			return ready
		}
		delete(o.pending, o.next)
		ready = append(ready, r)
		o.next++
	}
}
