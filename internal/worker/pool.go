// Package worker runs the background prioritization pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

const defaultTick = time.Second

type Pool struct {
	tasks       repo.TaskRepository
	prioritizer suggest.Prioritizer
	logger      *zap.Logger
	count       int
	interval    time.Duration
	tick        time.Duration
	now         func() time.Time

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

type Option func(*Pool)

// WithTick sets how often each worker polls for a claimable task.
func WithTick(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.tick = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// NewPool builds a pool of count workers. A task is re-prioritized at most
// once per interval.
func NewPool(tasks repo.TaskRepository, prioritizer suggest.Prioritizer, logger *zap.Logger, count int, interval time.Duration, opts ...Option) *Pool {
	p := &Pool{
		tasks:       tasks,
		prioritizer: prioritizer,
		logger:      logger,
		count:       count,
		interval:    interval,
		tick:        defaultTick,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	if p.count <= 0 {
		p.logger.Info("Prioritization workers disabled")
		return
	}
	p.logger.Info("Starting worker pool", zap.Int("workers", p.count), zap.Duration("interval", p.interval))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals the workers and waits for them. Safe to call more than once.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.logger.Info("Stopping worker pool...")
		close(p.stop)
	})
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.processNext(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("worker error", zap.Int("worker", id), zap.Error(err))
			}
		}
	}
}

// processNext claims one stale task and re-buckets it. It reports false when
// there was nothing to claim.
func (p *Pool) processNext(ctx context.Context, workerID int) (bool, error) {
	now := p.now()

	// Забрать задачу
	task, err := p.tasks.ClaimForPrioritization(ctx, now.Add(-p.interval))
	if errors.Is(err, repo.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}

	priority := p.prioritizer.EstimatePriority(task.DueDate)
	patch := model.TaskPatch{
		AIMetadata: suggest.PrioritizationMetadata(task.AIMetadata, now),
		UpdatedAt:  now,
	}
	if priority != task.Priority {
		patch.Priority = &priority
	}
	if err := p.tasks.Update(ctx, task.ID, patch); err != nil {
		return true, fmt.Errorf("update task %s: %w", task.ID, err)
	}

	p.logger.Info("Task prioritized",
		zap.Int("worker", workerID),
		zap.String("task_id", task.ID),
		zap.String("from", string(task.Priority)),
		zap.String("to", string(priority)),
	)
	return true, nil
}
