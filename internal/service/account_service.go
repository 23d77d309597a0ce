package service

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-accounts/internal/domain"
	"bank-accounts/internal/errors"
	"bank-accounts/pkg/metrics"
)

// AccountService enforces the business rules on top of the account store:
// amounts must be positive, withdrawals must be covered, and every mutation
// runs as one unit of work holding the account's exclusive row lock.
type AccountService struct {
	repo      domain.AccountRepository
	collector *metrics.Collector
	logger    *slog.Logger
}

func NewAccountService(repo domain.AccountRepository, collector *metrics.Collector, logger *slog.Logger) *AccountService {
	return &AccountService{
		repo:      repo,
		collector: collector,
		logger:    logger,
	}
}

func (s *AccountService) CreateAccount() (*domain.Account, error) {
	start := time.Now()

	account := &domain.Account{
		ID:      uuid.New(),
		Balance: decimal.Zero,
	}

	if err := s.repo.CreateAccount(account); err != nil {
		s.observe("create", start, err)
		return nil, err
	}

	s.logger.Info("Account created", "account_id", account.ID)
	s.observe("create", start, nil)
	return account, nil
}

// GetAccount returns the most recently committed snapshot. It takes no
// lock, so the value may be stale by the time the caller sees it; it must
// never feed a read-modify-write.
func (s *AccountService) GetAccount(accountID string) (*domain.Account, error) {
	start := time.Now()

	id, err := parseAccountID(accountID)
	if err != nil {
		s.observe("get", start, err)
		return nil, err
	}

	account, err := s.repo.GetAccount(id)
	s.observe("get", start, err)
	return account, err
}

func (s *AccountService) Deposit(accountID string, amount decimal.Decimal) error {
	start := time.Now()
	err := s.deposit(accountID, amount)
	s.observe("deposit", start, err)
	return err
}

func (s *AccountService) Withdraw(accountID string, amount decimal.Decimal) error {
	start := time.Now()
	err := s.withdraw(accountID, amount)
	s.observe("withdraw", start, err)
	return err
}

func (s *AccountService) deposit(accountID string, amount decimal.Decimal) error {
	id, err := parseAccountID(accountID)
	if err != nil {
		return err
	}
	if err := checkPositive(amount); err != nil {
		return err
	}

	return s.repo.WithTransaction(func(repo domain.AccountRepository) error {
		account, err := repo.GetAccountForUpdate(id)
		if err != nil {
			return err
		}

		newBalance := account.Balance.Add(amount)
		if err := repo.UpdateAccountBalance(id, newBalance); err != nil {
			return err
		}

		s.logger.Info("Deposit applied", "account_id", id, "amount", amount, "balance", newBalance)
		return nil
	})
}

func (s *AccountService) withdraw(accountID string, amount decimal.Decimal) error {
	id, err := parseAccountID(accountID)
	if err != nil {
		return err
	}
	if err := checkPositive(amount); err != nil {
		return err
	}

	return s.repo.WithTransaction(func(repo domain.AccountRepository) error {
		account, err := repo.GetAccountForUpdate(id)
		if err != nil {
			return err
		}

		// Sufficiency is checked only under the lock: the balance read
		// here is the one left by the previous committed unit of work.
		if account.Balance.LessThan(amount) {
			s.logger.Warn("Withdrawal rejected", "account_id", id, "amount", amount, "balance", account.Balance)
			return errors.ErrInsufficientFunds
		}

		newBalance := account.Balance.Sub(amount)
		if err := repo.UpdateAccountBalance(id, newBalance); err != nil {
			return err
		}

		s.logger.Info("Withdrawal applied", "account_id", id, "amount", amount, "balance", newBalance)
		return nil
	})
}

func (s *AccountService) observe(operation string, start time.Time, err error) {
	if s.collector == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "internal_error"
		if appErr, ok := err.(*errors.AppError); ok {
			outcome = string(appErr.Code)
		}
	}
	s.collector.ObserveOperation(operation, outcome, time.Since(start))
}

func parseAccountID(accountID string) (uuid.UUID, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidAccountID
	}
	return id, nil
}

func checkPositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	return nil
}
