package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tradielink/backend/internal/domain"
)

// JobRepository implements domain.JobRepository. Status changes are
// conditional updates keyed on the current status, so a lost race surfaces
// as a transition conflict instead of a silent overwrite.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, client_id, job_type, location, urgency_level, estimated_budget, status, date_required, expires_at, application_count, selected_tradie_id, created_at, updated_at`

func scanJob(row pgx.Row) (*domain.MarketplaceJob, error) {
	j := &domain.MarketplaceJob{}
	err := row.Scan(&j.ID, &j.ClientID, &j.JobType, &j.Location, &j.UrgencyLevel,
		&j.EstimatedBudget, &j.Status, &j.DateRequired, &j.ExpiresAt,
		&j.ApplicationCount, &j.SelectedTradieID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CreateJob persists a new job posting in the available state.
func (r *JobRepository) CreateJob(ctx context.Context, job *domain.MarketplaceJob) (*domain.MarketplaceJob, error) {
	created, err := scanJob(r.db.QueryRow(ctx,
		`INSERT INTO marketplace_jobs
		   (client_id, job_type, location, urgency_level, estimated_budget, status, date_required, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+jobColumns,
		job.ClientID, job.JobType, job.Location, job.UrgencyLevel,
		job.EstimatedBudget, domain.JobStatusAvailable, job.DateRequired, job.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to create job for client %d: %w", job.ClientID, err)
	}
	return created, nil
}

// GetJob returns one job by id.
func (r *JobRepository) GetJob(ctx context.Context, id int64) (*domain.MarketplaceJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM marketplace_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get job %d: %w", id, err)
	}
	return job, nil
}

// ListJobsByClient returns the client's jobs, newest first.
func (r *JobRepository) ListJobsByClient(ctx context.Context, clientID int64) ([]*domain.MarketplaceJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM marketplace_jobs WHERE client_id = $1 ORDER BY created_at DESC`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list jobs for client %d: %w", clientID, err)
	}
	defer rows.Close()

	var jobs []*domain.MarketplaceJob
	for rows.Next() {
		j := &domain.MarketplaceJob{}
		err := rows.Scan(&j.ID, &j.ClientID, &j.JobType, &j.Location, &j.UrgencyLevel,
			&j.EstimatedBudget, &j.Status, &j.DateRequired, &j.ExpiresAt,
			&j.ApplicationCount, &j.SelectedTradieID, &j.CreatedAt, &j.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating jobs: %w", err)
	}

	return jobs, nil
}

// rejectOpenApplications closes every still-open application on a job inside
// tx, optionally sparing one, and returns what the refunds need.
func rejectOpenApplications(ctx context.Context, tx pgx.Tx, jobID, spareID int64) ([]domain.RejectedSibling, error) {
	rows, err := tx.Query(ctx,
		`WITH open AS (
		   SELECT id, tradie_id, credits_used, status
		   FROM job_applications
		   WHERE marketplace_job_id = $1 AND id <> $2
		     AND status IN ('submitted', 'under_review')
		   FOR UPDATE
		 )
		 UPDATE job_applications ja
		 SET status = 'rejected', updated_at = NOW()
		 FROM open
		 WHERE ja.id = open.id
		 RETURNING ja.id, open.tradie_id, open.credits_used, open.status`,
		jobID, spareID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reject open applications for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var rejected []domain.RejectedSibling
	for rows.Next() {
		var s domain.RejectedSibling
		if err := rows.Scan(&s.ApplicationID, &s.TradieID, &s.CreditsUsed, &s.From); err != nil {
			return nil, fmt.Errorf("failed to scan rejected application: %w", err)
		}
		rejected = append(rejected, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejected applications: %w", err)
	}

	return rejected, nil
}

// lockJob reads a job row FOR UPDATE inside tx, serializing status changes
// against concurrent submissions and selections.
func lockJob(ctx context.Context, tx pgx.Tx, jobID int64) (*domain.MarketplaceJob, error) {
	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM marketplace_jobs WHERE id = $1 FOR UPDATE`,
		jobID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock job %d: %w", jobID, err)
	}
	return job, nil
}

// CancelJob transitions an available or assigned job to cancelled and closes
// its open applications in the same transaction, returning the status the job
// left.
func (r *JobRepository) CancelJob(ctx context.Context, jobID, clientID int64) (*domain.MarketplaceJob, domain.JobStatus, []domain.RejectedSibling, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", nil, fmt.Errorf("repository: failed to begin cancel transaction for job %d: %w", jobID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	job, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, "", nil, err
	}
	if job.ClientID != clientID {
		return nil, "", nil, domain.ErrUnauthorized
	}
	if !domain.CanJobTransition(job.Status, domain.JobStatusCancelled) {
		return nil, "", nil, domain.ErrInvalidStatusTransition
	}
	from := job.Status

	cancelled, err := scanJob(tx.QueryRow(ctx,
		`UPDATE marketplace_jobs
		 SET status = 'cancelled', selected_tradie_id = NULL, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+jobColumns,
		jobID,
	))
	if err != nil {
		return nil, "", nil, fmt.Errorf("repository: failed to cancel job %d: %w", jobID, err)
	}

	rejected, err := rejectOpenApplications(ctx, tx, jobID, 0)
	if err != nil {
		return nil, "", nil, fmt.Errorf("repository: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", nil, fmt.Errorf("repository: failed to commit cancel for job %d: %w", jobID, err)
	}

	cancelled.Status = domain.JobStatusCancelled
	return cancelled, from, rejected, nil
}

// CompleteJob transitions an assigned job to completed.
func (r *JobRepository) CompleteJob(ctx context.Context, jobID, clientID int64) (*domain.MarketplaceJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx,
		`UPDATE marketplace_jobs
		 SET status = 'completed', updated_at = NOW()
		 WHERE id = $1 AND client_id = $2 AND status = 'assigned'
		 RETURNING `+jobColumns,
		jobID, clientID,
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository: failed to complete job %d: %w", jobID, err)
	}

	// The conditional update missed: distinguish why.
	existing, getErr := r.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if existing.ClientID != clientID {
		return nil, domain.ErrUnauthorized
	}
	return nil, domain.ErrInvalidStatusTransition
}

// ExpireJob is the single expiry handler used by both the lazy read path and
// the periodic sweep: available -> expired with open applications closed.
func (r *JobRepository) ExpireJob(ctx context.Context, jobID int64) (*domain.MarketplaceJob, []domain.RejectedSibling, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: failed to begin expiry transaction for job %d: %w", jobID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	expired, err := scanJob(tx.QueryRow(ctx,
		`UPDATE marketplace_jobs
		 SET status = 'expired', updated_at = NOW()
		 WHERE id = $1 AND status = 'available'
		 RETURNING `+jobColumns,
		jobID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Already left available: lazy read and sweep can race here.
			return nil, nil, domain.ErrInvalidStatusTransition
		}
		return nil, nil, fmt.Errorf("repository: failed to expire job %d: %w", jobID, err)
	}

	rejected, err := rejectOpenApplications(ctx, tx, jobID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("repository: failed to commit expiry for job %d: %w", jobID, err)
	}

	return expired, rejected, nil
}

// DueForExpiry lists available jobs whose expiry window has passed.
func (r *JobRepository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM marketplace_jobs
		 WHERE status = 'available' AND expires_at <= $1
		 ORDER BY expires_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list due jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan due job id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating due jobs: %w", err)
	}

	return ids, nil
}
