// Package tasks runs background jobs one at a time and records their
// progress so callers can poll for completion.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Task kinds.
const (
	KindProcessCase = "process_case"
	KindReclassify  = "reclassify"
	KindRollup      = "rollup"
)

// ErrQueueFull is returned when the queue cannot take another task.
var ErrQueueFull = errors.New("task queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("task runner stopped")

// Func is the body of a task. Its result is stored as the task detail.
type Func func(ctx context.Context) (interface{}, error)

type job struct {
	id string
	fn Func
}

// Runner executes submitted tasks sequentially on a single worker.
type Runner struct {
	repo    *repository.TaskRepository
	queue   chan job
	now     func() time.Time
	logger  *logger.Logger
	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

func NewRunner(repo *repository.TaskRepository, size int, now func() time.Time, log *logger.Logger) *Runner {
	if size <= 0 {
		size = 64
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		repo:   repo,
		queue:  make(chan job, size),
		now:    now,
		logger: log,
		done:   make(chan struct{}),
	}
}

// Recover fails tasks a previous process left queued or running.
func (r *Runner) Recover() (int64, error) {
	n, err := r.repo.FailInterrupted("interrupted by restart")
	if n > 0 {
		r.logger.Warn("Failed interrupted tasks", "count", n)
	}
	return n, err
}

// Start runs the worker until Stop is called. Tasks still running when ctx
// is cancelled see the cancellation through their context.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for j := range r.queue {
			r.run(ctx, j)
		}
	}()
}

// Stop refuses new tasks and waits for queued ones to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// Submit queues fn as a task of kind for caseID. While a task of the same
// kind for the same case is queued or running, that task is returned
// instead and created is false.
func (r *Runner) Submit(kind string, caseID uint, fn Func) (task *database.Task, created bool, err error) {
	return r.submit(kind, caseID, fn, r.repo.FindOpen)
}

// SubmitLatest is Submit for work that must observe state the caller has
// just written. Only a task that has not started yet is reused; while one
// is running a follow-up task is queued behind it.
func (r *Runner) SubmitLatest(kind string, caseID uint, fn Func) (task *database.Task, created bool, err error) {
	return r.submit(kind, caseID, fn, r.repo.FindQueued)
}

func (r *Runner) submit(kind string, caseID uint, fn Func, find func(string, uint) (*database.Task, error)) (task *database.Task, created bool, err error) {
	const op = "tasks.Submit"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, false, apperr.Wrap(apperr.KindExternalUnavailable, op, ErrStopped)
	}

	existing, err := find(kind, caseID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	task = &database.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		CaseID:    caseID,
		Status:    database.TaskQueued,
		CreatedAt: r.now(),
	}
	if err := r.repo.Create(task); err != nil {
		return nil, false, err
	}

	select {
	case r.queue <- job{id: task.ID, fn: fn}:
	default:
		r.finish(task, nil, ErrQueueFull)
		return nil, false, apperr.Wrap(apperr.KindExternalUnavailable, op, ErrQueueFull)
	}

	r.logger.Info("Task queued", "task_id", task.ID, "kind", kind, "case_id", caseID)
	return task, true, nil
}

func (r *Runner) Get(id string) (*database.Task, error) {
	return r.repo.Get(id)
}

func (r *Runner) run(ctx context.Context, j job) {
	task, err := r.repo.Get(j.id)
	if err != nil {
		r.logger.Error("Task disappeared", "task_id", j.id, "error", err)
		return
	}

	started := r.now()
	task.Status = database.TaskRunning
	task.StartedAt = &started
	if err := r.repo.Save(task); err != nil {
		r.logger.Error("Failed to mark task running", "task_id", task.ID, "error", err)
	}

	log := r.logger.With("task_id", task.ID, "kind", task.Kind, "case_id", task.CaseID)
	log.Info("Task started")

	result, err := r.call(ctx, j.fn)
	r.finish(task, result, err)

	if err != nil {
		log.Error("Task failed", "error", err)
		return
	}
	log.Info("Task finished", "duration", r.now().Sub(started).String())
}

func (r *Runner) call(ctx context.Context, fn Func) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperr.Wrap(apperr.KindInternal, "tasks.run", fmt.Errorf("task panicked: %v", p))
		}
	}()
	return fn(ctx)
}

func (r *Runner) finish(task *database.Task, result interface{}, err error) {
	finished := r.now()
	task.FinishedAt = &finished
	if err != nil {
		task.Status = database.TaskFailed
		task.Error = apperr.Sanitize(err)
	} else {
		task.Status = database.TaskSucceeded
		if result != nil {
			if detail, mErr := json.Marshal(result); mErr == nil {
				task.Detail = string(detail)
			}
		}
	}
	if err := r.repo.Save(task); err != nil {
		r.logger.Error("Failed to save task", "task_id", task.ID, "error", err)
	}
}
