/**
 * @description
 * This file defines the `Repository` interface for the account-service. It is the
 * contract for every ledger mutation and read. Defining an interface decouples the
 * business logic from PostgreSQL and lets tests substitute an in-memory fake.
 *
 * The mutating methods are required to be atomic: the balance precondition, the
 * balance update, and the transaction insert must happen as one unit so that two
 * concurrent withdrawals can never overdraw an account.
 */

package store

import (
	"context"
	"errors"

	"github.com/modernbank/banking/internal/account/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadySettled      = errors.New("withdrawal already settled")
)

// Repository defines the set of methods for interacting with the ledger database.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error)
	FindAccountsByCustomerID(ctx context.Context, customerID string) ([]domain.Account, error)
	GetBalance(ctx context.Context, accountNumber string) (int64, error)

	// Ledger methods. RecordDeposit and RecordWithdrawal assign the per-account
	// sequence, apply the balance delta conditionally, and append the immutable
	// transaction row in a single database transaction. A non-empty idempotency
	// key dedupes replays: the original result is returned instead of a second
	// ledger entry.
	RecordDeposit(ctx context.Context, accountNumber string, amount int64, branch, idempotencyKey string) (*domain.TransactionResult, error)
	RecordWithdrawal(ctx context.Context, accountNumber string, amount int64, branch string, pending bool, idempotencyKey string) (*domain.TransactionResult, error)

	// SettleWithdrawal transitions a pending withdrawal to completed (confirm) or
	// failed (cancel, restoring the debited amount). Terminal rows are immutable;
	// settling one returns ErrAlreadySettled.
	SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) (*domain.Transaction, error)

	ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error)
}
