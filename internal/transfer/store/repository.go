/**
 * @description
 * This file defines the data access layer contract for the transfer-service.
 * The repository owns transfer history rows and per-customer transfer limits;
 * ledger entries belong to the account-service.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/modernbank/banking/internal/transfer/domain"
)

var (
	// ErrTransferNotFound is returned when a transfer record cannot be located.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrLimitNotConfigured is returned when a customer has no transfer limits set.
	ErrLimitNotConfigured = errors.New("transfer limits not configured")
)

// Repository defines the interface for transfer data storage operations.
type Repository interface {
	// CreateTransferRecord inserts a new transfer row, assigning the next
	// per-customer sequence atomically. The record's Sequence and CreatedAt are
	// populated on return.
	CreateTransferRecord(ctx context.Context, record *domain.TransferRecord) error

	// UpdateTransferStatus moves a transfer to a new status.
	UpdateTransferStatus(ctx context.Context, customerID string, sequence int, status string) error

	// FindTransfer returns one transfer by customer and sequence.
	FindTransfer(ctx context.Context, customerID string, sequence int) (*domain.TransferRecord, error)

	// FindTransferByIdempotencyKey returns the transfer previously created with
	// the given key, or nil when the key has never been seen.
	FindTransferByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.TransferRecord, error)

	// ListTransfersByCustomer returns the customer's transfer history, newest first.
	ListTransfersByCustomer(ctx context.Context, customerID string) ([]domain.TransferRecord, error)

	// GetTransferLimit returns the customer's configured limits, or
	// ErrLimitNotConfigured.
	GetTransferLimit(ctx context.Context, customerID string) (*domain.TransferLimit, error)

	// UpsertTransferLimit creates or replaces the customer's limits.
	UpsertTransferLimit(ctx context.Context, limit *domain.TransferLimit) error

	// SumTransferAmountForDay returns the total amount of the customer's pending
	// and completed transfers created on the given day. Cancelled and failed
	// transfers never consume allowance.
	SumTransferAmountForDay(ctx context.Context, customerID string, day time.Time) (int64, error)
}
