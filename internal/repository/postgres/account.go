package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tradielink/backend/internal/domain"
)

// AccountRepository implements domain.AccountRepository.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, login, password_hash, role, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.Login, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAccount registers a new account. A taken login maps to
// ErrAccountExists.
func (r *AccountRepository) CreateAccount(ctx context.Context, login, passwordHash string, role domain.AccountRole) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO accounts (login, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING `+accountColumns,
		login, passwordHash, role,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrAccountExists
		}
		return nil, fmt.Errorf("repository: failed to create account %s: %w", login, err)
	}
	return account, nil
}

// GetAccountByLogin returns the account with the given login.
func (r *AccountRepository) GetAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE login = $1`,
		login,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get account by login %s: %w", login, err)
	}
	return account, nil
}

// GetAccountByID returns the account with the given id.
func (r *AccountRepository) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get account %d: %w", id, err)
	}
	return account, nil
}
