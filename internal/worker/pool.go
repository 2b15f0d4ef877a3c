package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// JobExpirer settles marketplace jobs that outlived their listing window.
type JobExpirer interface {
	DueForExpiry(ctx context.Context, limit int) ([]int64, error)
	ExpireJob(ctx context.Context, jobID int64) (*domain.MarketplaceJob, error)
}

// CreditExpirer removes promotional credits that passed their expiry date.
type CreditExpirer interface {
	ExpireAgedCredits(ctx context.Context, limit int) (int, error)
}

// Pool runs the background sweeps: a scanner feeds due job ids into a
// bounded queue, workers drain it, and a separate ticker runs the credit
// expiry sweep. Readers racing the sweep settle jobs lazily, so a lost
// race here is expected and not an error.
type Pool struct {
	workers       int
	queue         chan int64
	jobs          JobExpirer
	credits       CreditExpirer
	logger        *zap.Logger
	wg            sync.WaitGroup
	scanWG        sync.WaitGroup
	scanInterval  time.Duration
	scanBatchSize int
}

// NewPool creates a worker pool.
func NewPool(
	workers int,
	queueSize int,
	scanInterval time.Duration,
	scanBatchSize int,
	jobs JobExpirer,
	credits CreditExpirer,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		workers:       workers,
		queue:         make(chan int64, queueSize),
		jobs:          jobs,
		credits:       credits,
		logger:        logger,
		scanInterval:  scanInterval,
		scanBatchSize: scanBatchSize,
	}
}

// Start launches the workers and the scanners.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.scanWG.Add(1)
	go p.scanner(ctx)
}

// Stop drains the pool and waits for the workers to finish. The scanner is
// the only sender, so the queue is closed only after it has exited; Stop is
// called after the pool's context is cancelled.
func (p *Pool) Stop() {
	p.scanWG.Wait()
	close(p.queue)
	p.wg.Wait()
}

// worker expires jobs from the queue.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Info("worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping", zap.Int("worker_id", id))
			return
		case jobID, ok := <-p.queue:
			if !ok {
				return
			}
			p.expireJob(ctx, jobID)
		}
	}
}

// scanner periodically enqueues due jobs and sweeps aged credits.
func (p *Pool) scanner(ctx context.Context) {
	defer p.scanWG.Done()

	ticker := time.NewTicker(p.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("scanner stopping")
			return
		case <-ticker.C:
			p.scanDueJobs(ctx)
			p.sweepCredits(ctx)
		}
	}
}

// scanDueJobs enqueues jobs whose listing window has passed.
func (p *Pool) scanDueJobs(ctx context.Context) {
	jobIDs, err := p.jobs.DueForExpiry(ctx, p.scanBatchSize)
	if err != nil {
		p.logger.Error("failed to scan jobs due for expiry", zap.Error(err))
		return
	}

	for _, jobID := range jobIDs {
		select {
		case p.queue <- jobID:
		case <-ctx.Done():
			return
		default:
			// Queue is full, the next scan picks the job up again.
			p.logger.Warn("queue is full, skipping job", zap.Int64("job_id", jobID))
		}
	}
}

// expireJob settles one job.
func (p *Pool) expireJob(ctx context.Context, jobID int64) {
	p.logger.Debug("expiring job", zap.Int64("job_id", jobID))

	if _, err := p.jobs.ExpireJob(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrInvalidStatusTransition) || errors.Is(err, domain.ErrNotFound) {
			// A reader or a concurrent sweep settled the job first.
			return
		}
		p.logger.Error("failed to expire job",
			zap.Int64("job_id", jobID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("job expired", zap.Int64("job_id", jobID))
}

// sweepCredits expires promotional credits past their date.
func (p *Pool) sweepCredits(ctx context.Context) {
	swept, err := p.credits.ExpireAgedCredits(ctx, p.scanBatchSize)
	if err != nil {
		p.logger.Error("credit expiry sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		p.logger.Info("expired aged credits", zap.Int("accounts", swept))
	}
}
