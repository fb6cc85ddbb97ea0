package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// idleWait is how long a loop pauses after an empty dequeue or a queue error
const idleWait = 100 * time.Millisecond

// Worker processes background indexing tasks from the task queue.
type Worker struct {
	taskQueue driven.TaskQueue
	indexer   driving.IndexService
	logger    *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Indexer        driving.IndexService
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		indexer:        cfg.Indexer,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start launches the processing goroutines and returns immediately.
// They run until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if w.taskQueue == nil || w.indexer == nil {
		return fmt.Errorf("%w: worker needs a task queue and an indexer", domain.ErrInvalidInput)
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	return nil
}

// Stop signals the loops and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
	w.logger.Info("worker stopped")
}

// Wait blocks until every processing goroutine has exited.
func (w *Worker) Wait() {
	w.mu.RLock()
	doneCh := w.doneCh
	w.mu.RUnlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("failed to dequeue task", "error", err)
		}
		if task == nil {
			w.pause(ctx)
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(idleWait):
	}
}

// processTask runs one task and acks or nacks it.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) *domain.TaskResult {
	logger = logger.With(
		"task_id", task.ID,
		"task_type", task.Type,
		"session_id", task.SessionID,
		"attempt", task.Attempts,
	)
	logger.Info("processing task")

	start := time.Now()
	var (
		count int
		err   error
	)

	switch task.Type {
	case domain.TaskTypeIndexDocument:
		count, err = w.handleIndexDocument(ctx, task)
	case domain.TaskTypePurgeSession:
		count, err = w.indexer.PurgeSession(ctx, task.SessionID)
	default:
		err = fmt.Errorf("%w: unknown task type %s", domain.ErrInvalidInput, task.Type)
	}

	result := &domain.TaskResult{
		TaskID:     task.ID,
		Success:    err == nil,
		Duration:   time.Since(start),
		ItemsCount: count,
	}

	if err != nil {
		result.Error = err.Error()
		logger.Error("task failed", "duration", result.Duration, "error", err)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return result
	}

	logger.Info("task completed", "duration", result.Duration, "items", count)
	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
	return result
}

func (w *Worker) handleIndexDocument(ctx context.Context, task *domain.Task) (int, error) {
	path := task.Path()
	if path == "" {
		return 0, fmt.Errorf("%w: path not found in task payload", domain.ErrInvalidInput)
	}

	result, err := w.indexer.IndexDocument(ctx, task.SessionID, path)
	if err != nil {
		return 0, err
	}
	if result.Empty {
		w.logger.Warn("document has no extractable text", "task_id", task.ID, "path", path)
	}
	return result.ChunksIndexed, nil
}

// Health is the worker health status.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{Running: running}
	if err := w.taskQueue.Ping(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}
	return health
}
