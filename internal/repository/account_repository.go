package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bank-accounts/internal/domain"
	"bank-accounts/internal/errors"
)

const (
	pqUniqueViolation   = "23505"
	pqLockNotAvailable  = "55P03"
	pqDeadlockDetected  = "40P01"
	pqSerializationFail = "40001"
)

// AccountRepository is the postgres-backed store. Row locks come from
// SELECT ... FOR UPDATE and are scoped to the surrounding transaction;
// lock waits are bounded by lock_timeout set at the start of each
// transaction.
type AccountRepository struct {
	db          SQLExecutor
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewAccountRepository(db DB, lockTimeout time.Duration, logger *slog.Logger) *AccountRepository {
	return &AccountRepository{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

func (r *AccountRepository) CreateAccount(account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now()
	_, err := r.db.Exec(
		query,
		account.ID,
		account.Balance.String(),
		now,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return errors.NewAppError(errors.StorageFailure, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now

	r.logger.Info("Account created", "account_id", account.ID)
	return nil
}

func (r *AccountRepository) GetAccount(id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, balance, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	return r.scanAccount(query, id)
}

func (r *AccountRepository) GetAccountForUpdate(id uuid.UUID) (*domain.Account, error) {
	if _, inTx := r.db.(*sql.Tx); !inTx {
		return nil, errors.ErrNoTransaction
	}

	query := `
		SELECT id, balance, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`

	return r.scanAccount(query, id)
}

func (r *AccountRepository) scanAccount(query string, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRow(query, id).Scan(
		&account.ID,
		&balanceStr,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "account_id", id)
			return nil, errors.NotFound(id)
		}
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqLockNotAvailable {
			r.logger.Warn("Lock wait timed out", "account_id", id)
			return nil, errors.ErrLockTimeout.WithDetails(err.Error())
		}
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, errors.NewAppError(errors.StorageFailure, "failed to get account").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_id", id, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}

func (r *AccountRepository) UpdateAccountBalance(id uuid.UUID, newBalance decimal.Decimal) error {
	if _, inTx := r.db.(*sql.Tx); !inTx {
		return errors.ErrNoTransaction
	}

	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(query, newBalance.String(), time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_id", id, "error", err)
		return errors.NewAppError(errors.StorageFailure, "failed to update account balance").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.StorageFailure, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_id", id)
		return errors.NotFound(id)
	}

	return nil
}

// WithTransaction runs fn as one unit of work. Every row lock taken through
// the callback repository is released when this method returns, on the
// commit and rollback paths both.
func (r *AccountRepository) WithTransaction(fn func(repo domain.AccountRepository) error) error {
	db, ok := r.db.(DB)
	if !ok {
		return errors.NewAppError(errors.InternalError, "nested transactions are not supported")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewAppError(errors.StorageFailure, "failed to begin transaction").WithDetails(err.Error())
	}

	// Bound the FOR UPDATE wait so a contended unit of work fails with a
	// retryable storage error instead of queueing forever.
	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(timeout); err != nil {
			tx.Rollback()
			return errors.NewAppError(errors.StorageFailure, "failed to set lock timeout").WithDetails(err.Error())
		}
	}

	txRepo := &AccountRepository{
		db:          tx,
		lockTimeout: r.lockTimeout,
		logger:      r.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txRepo); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch string(pqErr.Code) {
			case pqDeadlockDetected, pqSerializationFail:
				return errors.NewAppError(errors.StorageFailure, "transaction aborted").WithDetails(err.Error())
			}
		}
		return errors.NewAppError(errors.StorageFailure, "failed to commit transaction").WithDetails(err.Error())
	}
	return nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
