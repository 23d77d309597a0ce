// Package memory implements the account store over a process-local map.
// It keeps the same unit-of-work and row-locking contract as the postgres
// store: one exclusive lock per account id, bounded lock waits, and balance
// writes that become visible only when the unit of work commits.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-accounts/internal/domain"
	"bank-accounts/internal/errors"
)

const DefaultLockTimeout = 5 * time.Second

// record pairs the committed account value with its row lock. The lock
// channel holds at most one token; whoever placed the token owns the row.
// mu guards the account value itself so plain reads stay race-free while
// a commit is writing.
type record struct {
	lock    chan struct{}
	mu      sync.RWMutex
	account domain.Account
}

func (rec *record) snapshot() *domain.Account {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	cp := rec.account
	return &cp
}

type AccountRepository struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]*record
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewAccountRepository(lockTimeout time.Duration, logger *slog.Logger) *AccountRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &AccountRepository{
		accounts:    make(map[uuid.UUID]*record),
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

func (r *AccountRepository) CreateAccount(account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
		return errors.ErrDuplicateAccount
	}

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	r.accounts[account.ID] = &record{
		lock:    make(chan struct{}, 1),
		account: *account,
	}

	r.logger.Info("Account created", "account_id", account.ID)
	return nil
}

func (r *AccountRepository) GetAccount(id uuid.UUID) (*domain.Account, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.snapshot(), nil
}

// GetAccountForUpdate outside a unit of work has no lock scope to bind to.
func (r *AccountRepository) GetAccountForUpdate(id uuid.UUID) (*domain.Account, error) {
	return nil, errors.ErrNoTransaction
}

func (r *AccountRepository) UpdateAccountBalance(id uuid.UUID, newBalance decimal.Decimal) error {
	return errors.ErrNoTransaction
}

// WithTransaction runs fn against a session that stages balance writes.
// Staged writes are applied to the committed records only after fn returns
// nil, while the row locks are still held; an error or panic discards them.
// Locks are released on every exit path.
func (r *AccountRepository) WithTransaction(fn func(repo domain.AccountRepository) error) error {
	uow := &unitOfWork{
		repo:   r,
		held:   make(map[uuid.UUID]*record),
		staged: make(map[uuid.UUID]decimal.Decimal),
	}

	defer func() {
		if p := recover(); p != nil {
			uow.release()
			panic(p)
		}
	}()

	if err := fn(uow); err != nil {
		uow.release()
		return err
	}

	uow.commit()
	uow.release()
	return nil
}

func (r *AccountRepository) lookup(id uuid.UUID) (*record, error) {
	r.mu.RLock()
	rec, ok := r.accounts[id]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Account not found", "account_id", id)
		return nil, errors.NotFound(id)
	}
	return rec, nil
}

// unitOfWork is the transactional view of the repository. It tracks which
// row locks it owns and the balance writes staged against them.
type unitOfWork struct {
	repo    *AccountRepository
	held    map[uuid.UUID]*record
	ordered []*record
	staged  map[uuid.UUID]decimal.Decimal
}

func (u *unitOfWork) CreateAccount(account *domain.Account) error {
	// Inserts take no row lock; they commit immediately as in the SQL store.
	return u.repo.CreateAccount(account)
}

func (u *unitOfWork) GetAccount(id uuid.UUID) (*domain.Account, error) {
	return u.repo.GetAccount(id)
}

func (u *unitOfWork) GetAccountForUpdate(id uuid.UUID) (*domain.Account, error) {
	rec, err := u.repo.lookup(id)
	if err != nil {
		return nil, err
	}

	if _, owned := u.held[id]; !owned {
		select {
		case rec.lock <- struct{}{}:
		case <-time.After(u.repo.lockTimeout):
			u.repo.logger.Warn("Lock wait timed out", "account_id", id)
			return nil, errors.ErrLockTimeout
		}
		u.held[id] = rec
		u.ordered = append(u.ordered, rec)
	}

	account := rec.snapshot()
	if balance, ok := u.staged[id]; ok {
		account.Balance = balance
	}
	return account, nil
}

func (u *unitOfWork) UpdateAccountBalance(id uuid.UUID, newBalance decimal.Decimal) error {
	if _, owned := u.held[id]; !owned {
		return errors.ErrNoTransaction
	}
	u.staged[id] = newBalance
	return nil
}

func (u *unitOfWork) WithTransaction(fn func(repo domain.AccountRepository) error) error {
	return errors.NewAppError(errors.InternalError, "nested transactions are not supported")
}

func (u *unitOfWork) commit() {
	now := time.Now()
	for id, balance := range u.staged {
		rec := u.held[id]
		rec.mu.Lock()
		rec.account.Balance = balance
		rec.account.UpdatedAt = now
		rec.mu.Unlock()
	}
	u.staged = make(map[uuid.UUID]decimal.Decimal)
}

func (u *unitOfWork) release() {
	// Reverse acquisition order, mirroring how nested scopes unwind.
	for i := len(u.ordered) - 1; i >= 0; i-- {
		<-u.ordered[i].lock
	}
	u.ordered = nil
	u.held = make(map[uuid.UUID]*record)
}

var (
	_ domain.AccountRepository = (*AccountRepository)(nil)
	_ domain.AccountRepository = (*unitOfWork)(nil)
)
