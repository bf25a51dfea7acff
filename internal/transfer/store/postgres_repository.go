/**
 * @description
 * This file provides the PostgreSQL implementation of the transfer `Repository`
 * interface. Per-customer transfer sequences are assigned inside the insert
 * itself, and idempotency keys are protected by a unique index so concurrent
 * resubmissions collapse onto one row.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/transfer/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modernbank/banking/internal/transfer/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateTransferRecord inserts the transfer and assigns the next per-customer
// sequence in the same statement.
func (r *PostgresRepository) CreateTransferRecord(ctx context.Context, record *domain.TransferRecord) error {
	query := `
		INSERT INTO transfers (customer_id, sequence, kind, status, source_account, destination_account,
			source_transaction_sequence, sender_memo, receiver_memo, receiver_name, amount, idempotency_key, created_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
		FROM transfers WHERE customer_id = $1
		RETURNING sequence, created_at
	`
	err := r.db.QueryRow(ctx, query,
		record.CustomerID, record.Kind, record.Status,
		record.SourceAccount, record.DestinationAccount, record.SourceTransactionSeq,
		record.SenderMemo, record.ReceiverMemo, record.ReceiverName,
		record.Amount, record.IdempotencyKey,
	).Scan(&record.Sequence, &record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && record.IdempotencyKey != nil {
			// Lost an idempotency race; surface the winner's row.
			existing, lookupErr := r.FindTransferByIdempotencyKey(ctx, record.CustomerID, *record.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				*record = *existing
				return nil
			}
		}
		return err
	}
	return nil
}

// UpdateTransferStatus moves a transfer to a new status.
func (r *PostgresRepository) UpdateTransferStatus(ctx context.Context, customerID string, sequence int, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transfers SET status = $3 WHERE customer_id = $1 AND sequence = $2`,
		customerID, sequence, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

const transferColumns = `customer_id, sequence, kind, status, source_account, destination_account,
	source_transaction_sequence, sender_memo, receiver_memo, receiver_name, amount, idempotency_key, created_at`

func scanTransfer(row pgx.Row) (*domain.TransferRecord, error) {
	var record domain.TransferRecord
	err := row.Scan(
		&record.CustomerID, &record.Sequence, &record.Kind, &record.Status,
		&record.SourceAccount, &record.DestinationAccount, &record.SourceTransactionSeq,
		&record.SenderMemo, &record.ReceiverMemo, &record.ReceiverName,
		&record.Amount, &record.IdempotencyKey, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindTransfer returns one transfer by customer and sequence.
func (r *PostgresRepository) FindTransfer(ctx context.Context, customerID string, sequence int) (*domain.TransferRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE customer_id = $1 AND sequence = $2`,
		customerID, sequence,
	)
	record, err := scanTransfer(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return record, nil
}

// FindTransferByIdempotencyKey returns the transfer previously created with the
// given key, or nil when the key has never been seen.
func (r *PostgresRepository) FindTransferByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.TransferRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE customer_id = $1 AND idempotency_key = $2`,
		customerID, key,
	)
	record, err := scanTransfer(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// ListTransfersByCustomer returns the customer's transfer history, newest first.
func (r *PostgresRepository) ListTransfersByCustomer(ctx context.Context, customerID string) ([]domain.TransferRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE customer_id = $1 ORDER BY sequence DESC`,
		customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TransferRecord
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// GetTransferLimit returns the customer's configured limits.
func (r *PostgresRepository) GetTransferLimit(ctx context.Context, customerID string) (*domain.TransferLimit, error) {
	var limit domain.TransferLimit
	err := r.db.QueryRow(ctx,
		`SELECT customer_id, one_time_limit, daily_limit FROM transfer_limits WHERE customer_id = $1`,
		customerID,
	).Scan(&limit.CustomerID, &limit.OneTimeLimit, &limit.DailyLimit)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLimitNotConfigured
		}
		return nil, err
	}
	return &limit, nil
}

// UpsertTransferLimit creates or replaces the customer's limits.
func (r *PostgresRepository) UpsertTransferLimit(ctx context.Context, limit *domain.TransferLimit) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transfer_limits (customer_id, one_time_limit, daily_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET one_time_limit = $2, daily_limit = $3
	`, limit.CustomerID, limit.OneTimeLimit, limit.DailyLimit)
	return err
}

// SumTransferAmountForDay totals the customer's pending and completed transfers
// created on the given day.
func (r *PostgresRepository) SumTransferAmountForDay(ctx context.Context, customerID string, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE customer_id = $1
		  AND status IN ($2, $3)
		  AND created_at >= $4 AND created_at < $5
	`, customerID, domain.StatusPending, domain.StatusCompleted, start, end).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
