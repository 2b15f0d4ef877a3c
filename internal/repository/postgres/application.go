package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tradielink/backend/internal/domain"
)

// ApplicationRepository implements domain.ApplicationRepository. Submission
// and selection are multi-statement transactions; the job row lock is always
// taken before the account advisory lock.
type ApplicationRepository struct {
	db  DBTX
	loc *time.Location
}

// NewApplicationRepository creates an ApplicationRepository. loc fixes the
// calendar boundaries for the usage-cap windows.
func NewApplicationRepository(db DBTX, loc *time.Location) *ApplicationRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &ApplicationRepository{db: db, loc: loc}
}

const applicationColumns = `id, marketplace_job_id, tradie_id, custom_quote, proposed_timeline, credits_used, status, created_at, updated_at`

func scanApplication(row pgx.Row) (*domain.JobApplication, error) {
	a := &domain.JobApplication{}
	err := row.Scan(&a.ID, &a.MarketplaceJobID, &a.TradieID, &a.CustomQuote,
		&a.ProposedTimeline, &a.CreditsUsed, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SubmitApplication performs the whole submission as one transaction: job
// availability under the row lock, cap check and debit under the account
// lock, application insert, application counter. The failed ledger row of an
// insufficient balance is the only thing committed on that path.
func (r *ApplicationRepository) SubmitApplication(ctx context.Context, app *domain.JobApplication, debit domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: failed to begin submission transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	job, err := lockJob(ctx, tx, app.MarketplaceJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("repository: %w", err)
	}
	if job.ClientID == app.TradieID {
		return nil, nil, domain.ErrUnauthorized
	}
	if job.Status != domain.JobStatusAvailable {
		return nil, nil, domain.ErrJobNotAvailable
	}
	if time.Now().After(job.ExpiresAt) {
		return nil, nil, domain.ErrJobExpired
	}

	balance, err := applyUsageDebit(ctx, tx, app.TradieID, debit, r.loc)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, nil, fmt.Errorf("repository: failed to commit failed-debit record: %w", commitErr)
			}
			return nil, nil, err
		}
		if errors.Is(err, domain.ErrUsageLimitExceeded) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("repository: %w", err)
	}

	created, err := scanApplication(tx.QueryRow(ctx,
		`INSERT INTO job_applications
		   (marketplace_job_id, tradie_id, custom_quote, proposed_timeline, credits_used, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+applicationColumns,
		app.MarketplaceJobID, app.TradieID, app.CustomQuote,
		app.ProposedTimeline, debit.Credits, domain.ApplicationStatusSubmitted,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Rolls the debit back with it.
			return nil, nil, domain.ErrDuplicateApplication
		}
		return nil, nil, fmt.Errorf("repository: failed to insert application for job %d: %w", app.MarketplaceJobID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE marketplace_jobs
		 SET application_count = application_count + 1, updated_at = NOW()
		 WHERE id = $1`,
		app.MarketplaceJobID,
	); err != nil {
		return nil, nil, fmt.Errorf("repository: failed to bump application count for job %d: %w", app.MarketplaceJobID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("repository: failed to commit submission for job %d: %w", app.MarketplaceJobID, err)
	}

	return created, balance, nil
}

// GetApplication returns one application by id.
func (r *ApplicationRepository) GetApplication(ctx context.Context, id int64) (*domain.JobApplication, error) {
	app, err := scanApplication(r.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get application %d: %w", id, err)
	}
	return app, nil
}

func (r *ApplicationRepository) listApplications(ctx context.Context, query string, arg int64) ([]*domain.JobApplication, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*domain.JobApplication
	for rows.Next() {
		a := &domain.JobApplication{}
		err := rows.Scan(&a.ID, &a.MarketplaceJobID, &a.TradieID, &a.CustomQuote,
			&a.ProposedTimeline, &a.CreditsUsed, &a.Status, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating applications: %w", err)
	}

	return apps, nil
}

// ListByJob returns a job's applications, oldest first.
func (r *ApplicationRepository) ListByJob(ctx context.Context, jobID int64) ([]*domain.JobApplication, error) {
	return r.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE marketplace_job_id = $1 ORDER BY created_at`,
		jobID,
	)
}

// ListByTradie returns a tradie's applications, newest first.
func (r *ApplicationRepository) ListByTradie(ctx context.Context, tradieID int64) ([]*domain.JobApplication, error) {
	return r.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE tradie_id = $1 ORDER BY created_at DESC`,
		tradieID,
	)
}

// diagnoseClientMiss explains why a client-scoped conditional update on an
// application matched nothing.
func (r *ApplicationRepository) diagnoseClientMiss(ctx context.Context, applicationID, clientID int64) error {
	var jobClientID int64
	err := r.db.QueryRow(ctx,
		`SELECT j.client_id
		 FROM job_applications ja
		 JOIN marketplace_jobs j ON j.id = ja.marketplace_job_id
		 WHERE ja.id = $1`,
		applicationID,
	).Scan(&jobClientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("repository: failed to inspect application %d: %w", applicationID, err)
	}
	if jobClientID != clientID {
		return domain.ErrUnauthorized
	}
	return domain.ErrInvalidStatusTransition
}

// MarkUnderReview moves a submitted application to under_review on behalf of
// the job's client.
func (r *ApplicationRepository) MarkUnderReview(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, error) {
	app, err := scanApplication(r.db.QueryRow(ctx,
		`UPDATE job_applications ja
		 SET status = 'under_review', updated_at = NOW()
		 FROM marketplace_jobs j
		 WHERE ja.id = $1 AND j.id = ja.marketplace_job_id
		   AND j.client_id = $2 AND ja.status = 'submitted'
		 RETURNING ja.id, ja.marketplace_job_id, ja.tradie_id, ja.custom_quote,
		           ja.proposed_timeline, ja.credits_used, ja.status, ja.created_at, ja.updated_at`,
		applicationID, clientID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.diagnoseClientMiss(ctx, applicationID, clientID)
		}
		return nil, fmt.Errorf("repository: failed to mark application %d under review: %w", applicationID, err)
	}
	return app, nil
}

// RejectApplication closes one open application on behalf of the job's
// client, returning the status it left for the refund decision.
func (r *ApplicationRepository) RejectApplication(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
	var from domain.ApplicationStatus
	a := &domain.JobApplication{}
	err := r.db.QueryRow(ctx,
		`WITH target AS (
		   SELECT ja.id, ja.status
		   FROM job_applications ja
		   JOIN marketplace_jobs j ON j.id = ja.marketplace_job_id
		   WHERE ja.id = $1 AND j.client_id = $2
		     AND ja.status IN ('submitted', 'under_review')
		   FOR UPDATE OF ja
		 )
		 UPDATE job_applications ja
		 SET status = 'rejected', updated_at = NOW()
		 FROM target
		 WHERE ja.id = target.id
		 RETURNING ja.id, ja.marketplace_job_id, ja.tradie_id, ja.custom_quote,
		           ja.proposed_timeline, ja.credits_used, ja.status, ja.created_at, ja.updated_at,
		           target.status`,
		applicationID, clientID,
	).Scan(&a.ID, &a.MarketplaceJobID, &a.TradieID, &a.CustomQuote,
		&a.ProposedTimeline, &a.CreditsUsed, &a.Status, &a.CreatedAt, &a.UpdatedAt, &from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", r.diagnoseClientMiss(ctx, applicationID, clientID)
		}
		return nil, "", fmt.Errorf("repository: failed to reject application %d: %w", applicationID, err)
	}
	return a, from, nil
}

// SelectApplication marks the winner: the application becomes selected, the
// job moves available -> assigned with the tradie recorded, and every other
// open application on the job is rejected, all in one transaction. Returns
// the status the winning application left.
func (r *ApplicationRepository) SelectApplication(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, *domain.MarketplaceJob, []domain.RejectedSibling, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("repository: failed to begin selection transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	app, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE id = $1 FOR UPDATE`,
		applicationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil, nil, domain.ErrNotFound
		}
		return nil, "", nil, nil, fmt.Errorf("repository: failed to lock application %d: %w", applicationID, err)
	}

	job, err := lockJob(ctx, tx, app.MarketplaceJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", nil, nil, err
		}
		return nil, "", nil, nil, fmt.Errorf("repository: %w", err)
	}
	if job.ClientID != clientID {
		return nil, "", nil, nil, domain.ErrUnauthorized
	}
	if !domain.CanApplicationTransition(app.Status, domain.ApplicationStatusSelected) {
		return nil, "", nil, nil, domain.ErrInvalidStatusTransition
	}
	if !domain.CanJobTransition(job.Status, domain.JobStatusAssigned) {
		return nil, "", nil, nil, domain.ErrJobNotAvailable
	}
	from := app.Status

	selected, err := scanApplication(tx.QueryRow(ctx,
		`UPDATE job_applications
		 SET status = 'selected', updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+applicationColumns,
		applicationID,
	))
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("repository: failed to select application %d: %w", applicationID, err)
	}

	assigned, err := scanJob(tx.QueryRow(ctx,
		`UPDATE marketplace_jobs
		 SET status = 'assigned', selected_tradie_id = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+jobColumns,
		job.ID, app.TradieID,
	))
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("repository: failed to assign job %d: %w", job.ID, err)
	}

	rejected, err := rejectOpenApplications(ctx, tx, job.ID, applicationID)
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("repository: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", nil, nil, fmt.Errorf("repository: failed to commit selection for job %d: %w", job.ID, err)
	}

	return selected, from, assigned, rejected, nil
}

// WithdrawApplication closes the tradie's own open application, returning the
// status it left for the refund decision.
func (r *ApplicationRepository) WithdrawApplication(ctx context.Context, applicationID, tradieID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
	var from domain.ApplicationStatus
	a := &domain.JobApplication{}
	err := r.db.QueryRow(ctx,
		`WITH target AS (
		   SELECT id, status
		   FROM job_applications
		   WHERE id = $1 AND tradie_id = $2
		     AND status IN ('submitted', 'under_review')
		   FOR UPDATE
		 )
		 UPDATE job_applications ja
		 SET status = 'withdrawn', updated_at = NOW()
		 FROM target
		 WHERE ja.id = target.id
		 RETURNING ja.id, ja.marketplace_job_id, ja.tradie_id, ja.custom_quote,
		           ja.proposed_timeline, ja.credits_used, ja.status, ja.created_at, ja.updated_at,
		           target.status`,
		applicationID, tradieID,
	).Scan(&a.ID, &a.MarketplaceJobID, &a.TradieID, &a.CustomQuote,
		&a.ProposedTimeline, &a.CreditsUsed, &a.Status, &a.CreatedAt, &a.UpdatedAt, &from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.GetApplication(ctx, applicationID)
			if getErr != nil {
				return nil, "", getErr
			}
			if existing.TradieID != tradieID {
				return nil, "", domain.ErrUnauthorized
			}
			return nil, "", domain.ErrInvalidStatusTransition
		}
		return nil, "", fmt.Errorf("repository: failed to withdraw application %d: %w", applicationID, err)
	}
	return a, from, nil
}
