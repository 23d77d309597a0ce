package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID        uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountRepository is the storage port for account rows.
//
// GetAccountForUpdate and UpdateAccountBalance must only be called on the
// repository handed to the WithTransaction callback: the row lock taken by
// GetAccountForUpdate lives exactly as long as that unit of work and is
// released on commit and rollback alike.
type AccountRepository interface {
	CreateAccount(account *Account) error

	// GetAccount returns the most recently committed snapshot without
	// taking any lock. The snapshot is stale the moment it is returned.
	GetAccount(id uuid.UUID) (*Account, error)

	// GetAccountForUpdate takes the account's exclusive row lock and
	// returns the freshest committed balance. No lock is held when the
	// account does not exist.
	GetAccountForUpdate(id uuid.UUID) (*Account, error)

	UpdateAccountBalance(id uuid.UUID, newBalance decimal.Decimal) error

	// WithTransaction runs fn as one unit of work: commit when fn returns
	// nil, roll back when it returns an error or panics.
	WithTransaction(fn func(repo AccountRepository) error) error
}
